// Package sqlite implements the repository interfaces on a single SQLite
// database, opened in WAL mode and migrated on startup.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Repository implements repository.Inventory and repository.Discovery.
type Repository struct {
	db *sql.DB
}

// New opens (or creates) the database at path and migrates the schema.
func New(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	r := &Repository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return r, nil
}

// NewMemory opens a fresh in-memory database, used by tests. The pool is
// capped at one connection: each sqlite connection would otherwise see its
// own private in-memory database.
func NewMemory() (*Repository, error) {
	r, err := New(":memory:")
	if err != nil {
		return nil, err
	}
	r.db.SetMaxOpenConns(1)
	return r, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sites (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		slug TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS manufacturers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS device_types (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		manufacturer_id INTEGER NOT NULL REFERENCES manufacturers(id),
		model TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS device_roles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		color TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS tenants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		slug TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS devices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		device_type_id INTEGER NOT NULL REFERENCES device_types(id),
		role_id INTEGER NOT NULL REFERENCES device_roles(id),
		serial TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		site_id INTEGER REFERENCES sites(id),
		tenant_id INTEGER REFERENCES tenants(id),
		primary_ip4_id INTEGER REFERENCES ip_addresses(id)
	);

	CREATE TABLE IF NOT EXISTS interfaces (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		mac TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS ip_addresses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		address TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		description TEXT NOT NULL DEFAULT '',
		dns_name TEXT NOT NULL DEFAULT '',
		interface_id INTEGER REFERENCES interfaces(id),
		tenant_id INTEGER REFERENCES tenants(id)
	);

	CREATE TABLE IF NOT EXISTS vlan_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		site_id INTEGER REFERENCES sites(id)
	);

	CREATE TABLE IF NOT EXISTS vlans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		vid INTEGER NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		site_id INTEGER REFERENCES sites(id),
		group_id INTEGER REFERENCES vlan_groups(id),
		tenant_id INTEGER REFERENCES tenants(id)
	);

	CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS object_tags (
		tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		object_type TEXT NOT NULL,
		object_id INTEGER NOT NULL,
		PRIMARY KEY (tag_id, object_type, object_id)
	);

	CREATE TABLE IF NOT EXISTS sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		config TEXT NOT NULL DEFAULT '{}',
		token TEXT NOT NULL DEFAULT '',
		site_id INTEGER REFERENCES sites(id),
		scan_interval INTEGER NOT NULL DEFAULT 0,
		last_scan TIMESTAMP,
		last_scan_success INTEGER NOT NULL DEFAULT 1,
		sync_devices INTEGER NOT NULL DEFAULT 1,
		sync_clients INTEGER NOT NULL DEFAULT 1,
		sync_vlans INTEGER NOT NULL DEFAULT 1,
		created TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS scan_jobs (
		id TEXT PRIMARY KEY,
		source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
		status TEXT NOT NULL DEFAULT 'pending',
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		dry_run INTEGER NOT NULL DEFAULT 0,
		discovered_count INTEGER NOT NULL DEFAULT 0,
		created_count INTEGER NOT NULL DEFAULT 0,
		updated_count INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		log TEXT NOT NULL DEFAULT '',
		initiator TEXT NOT NULL DEFAULT '',
		created TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL REFERENCES scan_jobs(id) ON DELETE CASCADE,
		source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
		discovered_type TEXT NOT NULL,
		discovered_data TEXT NOT NULL DEFAULT '{}',
		proposed_data TEXT NOT NULL DEFAULT '{}',
		matched_type TEXT,
		matched_id INTEGER,
		diff TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'pending',
		action TEXT NOT NULL DEFAULT 'create',
		identity_key TEXT NOT NULL,
		reviewed_by TEXT NOT NULL DEFAULT '',
		reviewed_at TIMESTAMP,
		created TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS mappings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
		identity_key TEXT NOT NULL,
		object_type TEXT NOT NULL,
		object_id INTEGER NOT NULL,
		first_seen TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_seen TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		is_orphan INTEGER NOT NULL DEFAULT 0,
		UNIQUE (source_id, identity_key)
	);

	CREATE INDEX IF NOT EXISTS idx_devices_serial ON devices(serial);
	CREATE INDEX IF NOT EXISTS idx_interfaces_mac ON interfaces(mac);
	CREATE INDEX IF NOT EXISTS idx_ip_addresses_address ON ip_addresses(address);
	CREATE INDEX IF NOT EXISTS idx_results_source_key ON results(source_id, identity_key);
	CREATE INDEX IF NOT EXISTS idx_results_status ON results(status);
	CREATE INDEX IF NOT EXISTS idx_mappings_orphan ON mappings(is_orphan);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping verifies the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
