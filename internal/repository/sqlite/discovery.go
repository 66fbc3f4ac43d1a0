package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"driftsync/internal/domain"
	"driftsync/internal/repository"
)

const sourceColumns = `name, description, status, config, token, site_id, scan_interval,
	last_scan, last_scan_success, sync_devices, sync_clients, sync_vlans, created`

func scanSource(scan func(...any) error) (*domain.DiscoverySource, error) {
	s := &domain.DiscoverySource{}
	var (
		config                             string
		site                               sql.NullInt64
		lastScan                           sql.NullTime
		success, devices, clients, vlans   int
	)
	err := scan(&s.ID, &s.Name, &s.Description, &s.Status, &config, &s.Token, &site,
		&s.ScanInterval, &lastScan, &success, &devices, &clients, &vlans, &s.Created)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(config, &s.Config); err != nil {
		return nil, err
	}
	s.SiteID = idPtr(site)
	s.LastScan = timePtr(lastScan)
	s.LastScanSuccess = success != 0
	s.SyncDevices = devices != 0
	s.SyncClients = clients != 0
	s.SyncVLANs = vlans != 0
	return s, nil
}

// CreateSource inserts a discovery source and fills in its id.
func (r *Repository) CreateSource(ctx context.Context, s *domain.DiscoverySource) error {
	if s.Status == "" {
		s.Status = domain.SourceActive
	}
	if s.Created.IsZero() {
		s.Created = time.Now().UTC()
	}
	config, err := marshalJSON(s.Config)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sources (`+sourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.Name, s.Description, string(s.Status), config, s.Token, nullID(s.SiteID),
		s.ScanInterval, nullTime(s.LastScan), s.LastScanSuccess,
		s.SyncDevices, s.SyncClients, s.SyncVLANs, s.Created)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	s.ID, err = lastInsertID(res)
	return err
}

// UpdateSource writes all operator-mutable source fields.
func (r *Repository) UpdateSource(ctx context.Context, s *domain.DiscoverySource) error {
	config, err := marshalJSON(s.Config)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE sources SET name = ?, description = ?, status = ?, config = ?, token = ?,
			site_id = ?, scan_interval = ?, sync_devices = ?, sync_clients = ?, sync_vlans = ?
		WHERE id = ?
	`, s.Name, s.Description, string(s.Status), config, s.Token, nullID(s.SiteID),
		s.ScanInterval, s.SyncDevices, s.SyncClients, s.SyncVLANs, s.ID)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	return nil
}

// DeleteSource removes a source; jobs, results, and mappings cascade.
func (r *Repository) DeleteSource(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return nil
}

// GetSource retrieves a source by id.
func (r *Repository) GetSource(ctx context.Context, id int64) (*domain.DiscoverySource, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, `+sourceColumns+` FROM sources WHERE id = ?
	`, id)
	s, err := scanSource(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %d: %w", id, errNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query source: %w", err)
	}
	return s, nil
}

// ListSources returns all sources ordered by name.
func (r *Repository) ListSources(ctx context.Context) ([]domain.DiscoverySource, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, `+sourceColumns+` FROM sources ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.DiscoverySource
	for rows.Next() {
		s, err := scanSource(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, *s)
	}
	return sources, rows.Err()
}

// SetSourceScanOutcome records the terminal result of a scan.
func (r *Repository) SetSourceScanOutcome(ctx context.Context, id int64, at time.Time, success bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sources SET last_scan = ?, last_scan_success = ? WHERE id = ?
	`, at, success, id)
	if err != nil {
		return fmt.Errorf("set source scan outcome: %w", err)
	}
	return nil
}

const jobColumns = `source_id, status, started_at, completed_at, dry_run,
	discovered_count, created_count, updated_count, error_count, log, initiator, created`

func scanJob(scan func(...any) error) (*domain.ScanJob, error) {
	j := &domain.ScanJob{}
	var (
		started, completed sql.NullTime
		dryRun             int
	)
	err := scan(&j.ID, &j.SourceID, &j.Status, &started, &completed, &dryRun,
		&j.DiscoveredCount, &j.CreatedCount, &j.UpdatedCount, &j.ErrorCount,
		&j.Log, &j.Initiator, &j.Created)
	if err != nil {
		return nil, err
	}
	j.StartedAt = timePtr(started)
	j.CompletedAt = timePtr(completed)
	j.DryRun = dryRun != 0
	return j, nil
}

// CreateScanJob inserts a scan job.
func (r *Repository) CreateScanJob(ctx context.Context, j *domain.ScanJob) error {
	if j.Created.IsZero() {
		j.Created = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scan_jobs (id, `+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.SourceID, string(j.Status), nullTime(j.StartedAt), nullTime(j.CompletedAt),
		j.DryRun, j.DiscoveredCount, j.CreatedCount, j.UpdatedCount, j.ErrorCount,
		j.Log, j.Initiator, j.Created)
	if err != nil {
		return fmt.Errorf("insert scan job: %w", err)
	}
	return nil
}

// UpdateScanJob writes all runner-mutable job fields.
func (r *Repository) UpdateScanJob(ctx context.Context, j *domain.ScanJob) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE scan_jobs SET status = ?, started_at = ?, completed_at = ?,
			discovered_count = ?, created_count = ?, updated_count = ?, error_count = ?, log = ?
		WHERE id = ?
	`, string(j.Status), nullTime(j.StartedAt), nullTime(j.CompletedAt),
		j.DiscoveredCount, j.CreatedCount, j.UpdatedCount, j.ErrorCount, j.Log, j.ID)
	if err != nil {
		return fmt.Errorf("update scan job: %w", err)
	}
	return nil
}

// GetScanJob retrieves a job by id.
func (r *Repository) GetScanJob(ctx context.Context, id string) (*domain.ScanJob, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, `+jobColumns+` FROM scan_jobs WHERE id = ?
	`, id)
	j, err := scanJob(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan job %s: %w", id, errNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query scan job: %w", err)
	}
	return j, nil
}

// ListScanJobs returns the most recent jobs, newest first.
func (r *Repository) ListScanJobs(ctx context.Context, limit int) ([]domain.ScanJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, `+jobColumns+` FROM scan_jobs ORDER BY created DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query scan jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ScanJob
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// FailStaleJobs force-fails running jobs started before cutoff.
func (r *Repository) FailStaleJobs(ctx context.Context, cutoff, completedAt time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scan_jobs SET status = ?, completed_at = ?
		WHERE status = ? AND started_at IS NOT NULL AND started_at < ?
	`, string(domain.JobFailed), completedAt, string(domain.JobRunning), cutoff)
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// FailRunningJobs fails every running job regardless of age.
func (r *Repository) FailRunningJobs(ctx context.Context, completedAt time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scan_jobs SET status = ?, completed_at = ? WHERE status = ?
	`, string(domain.JobFailed), completedAt, string(domain.JobRunning))
	if err != nil {
		return 0, fmt.Errorf("fail running jobs: %w", err)
	}
	return res.RowsAffected()
}

const resultColumns = `job_id, source_id, discovered_type, discovered_data, proposed_data,
	matched_type, matched_id, diff, status, action, identity_key, reviewed_by, reviewed_at, created`

func scanResult(scan func(...any) error) (*domain.DiscoveryResult, error) {
	res := &domain.DiscoveryResult{}
	var (
		discovered, proposed, diff string
		matchedType                sql.NullString
		matchedID                  sql.NullInt64
		reviewedAt                 sql.NullTime
	)
	err := scan(&res.ID, &res.JobID, &res.SourceID, &res.DiscoveredType,
		&discovered, &proposed, &matchedType, &matchedID, &diff,
		&res.Status, &res.Action, &res.IdentityKey, &res.ReviewedBy, &reviewedAt, &res.Created)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(discovered, &res.DiscoveredData); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(proposed, &res.ProposedData); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(diff, &res.Diff); err != nil {
		return nil, err
	}
	if matchedType.Valid && matchedID.Valid {
		res.Matched = &domain.ObjectRef{
			Type: domain.ObjectType(matchedType.String),
			ID:   matchedID.Int64,
		}
	}
	res.ReviewedAt = timePtr(reviewedAt)
	return res, nil
}

// CreateResults bulk-inserts staged results in one transaction.
func (r *Repository) CreateResults(ctx context.Context, results []*domain.DiscoveryResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results (`+resultColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare result insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, res := range results {
		if res.Created.IsZero() {
			res.Created = now
		}
		discovered, err := marshalJSON(res.DiscoveredData)
		if err != nil {
			return err
		}
		proposed, err := marshalJSON(res.ProposedData)
		if err != nil {
			return err
		}
		diff, err := marshalJSON(res.Diff)
		if err != nil {
			return err
		}

		var matchedType sql.NullString
		var matchedID sql.NullInt64
		if res.Matched != nil {
			matchedType = sql.NullString{String: string(res.Matched.Type), Valid: true}
			matchedID = sql.NullInt64{Int64: res.Matched.ID, Valid: true}
		}

		out, err := stmt.ExecContext(ctx, res.JobID, res.SourceID, string(res.DiscoveredType),
			discovered, proposed, matchedType, matchedID, diff,
			string(res.Status), string(res.Action), res.IdentityKey,
			res.ReviewedBy, nullTime(res.ReviewedAt), res.Created)
		if err != nil {
			return fmt.Errorf("insert result %s: %w", res.IdentityKey, err)
		}
		if res.ID, err = lastInsertID(out); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit results: %w", err)
	}
	return nil
}

// GetResult retrieves a result by id.
func (r *Repository) GetResult(ctx context.Context, id int64) (*domain.DiscoveryResult, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, `+resultColumns+` FROM results WHERE id = ?
	`, id)
	res, err := scanResult(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result %d: %w", id, errNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query result: %w", err)
	}
	return res, nil
}

// ListResults returns results matching the filter, newest first.
func (r *Repository) ListResults(ctx context.Context, f repository.ResultFilter) ([]domain.DiscoveryResult, error) {
	var (
		where []string
		args  []any
	)
	if f.SourceID != 0 {
		where = append(where, "source_id = ?")
		args = append(args, f.SourceID)
	}
	if f.JobID != "" {
		where = append(where, "job_id = ?")
		args = append(args, f.JobID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := `SELECT id, ` + resultColumns + ` FROM results`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []domain.DiscoveryResult
	for rows.Next() {
		res, err := scanResult(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, *res)
	}
	return results, rows.Err()
}

// ClaimResult atomically transitions a pending result. The WHERE clause on
// status is what makes concurrent reviews at-most-once.
func (r *Repository) ClaimResult(ctx context.Context, id int64, status domain.ResultStatus, reviewer string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE results SET status = ?, reviewed_by = ?, reviewed_at = ?
		WHERE id = ? AND status = ?
	`, string(status), reviewer, at, id, string(domain.ResultPending))
	if err != nil {
		return false, fmt.Errorf("claim result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim result rows: %w", err)
	}
	return n == 1, nil
}

// ReleaseResult returns a claimed result to pending after a failed apply.
func (r *Repository) ReleaseResult(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE results SET status = ?, reviewed_by = '', reviewed_at = NULL WHERE id = ?
	`, string(domain.ResultPending), id)
	if err != nil {
		return fmt.Errorf("release result: %w", err)
	}
	return nil
}

func scanMapping(scan func(...any) error) (*domain.DiscoveryMapping, error) {
	m := &domain.DiscoveryMapping{}
	var orphan int
	err := scan(&m.ID, &m.SourceID, &m.IdentityKey, &m.Object.Type, &m.Object.ID,
		&m.FirstSeen, &m.LastSeen, &orphan)
	if err != nil {
		return nil, err
	}
	m.IsOrphan = orphan != 0
	return m, nil
}

const mappingColumns = `id, source_id, identity_key, object_type, object_id, first_seen, last_seen, is_orphan`

// GetMapping retrieves the mapping for (source, identity key). Returns
// (nil, nil) when no binding exists.
func (r *Repository) GetMapping(ctx context.Context, sourceID int64, identityKey string) (*domain.DiscoveryMapping, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+mappingColumns+` FROM mappings WHERE source_id = ? AND identity_key = ?
	`, sourceID, identityKey)
	m, err := scanMapping(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query mapping: %w", err)
	}
	return m, nil
}

// UpsertMapping binds (source, identity key) to an object, clearing orphan
// status and refreshing last_seen. The unique constraint keeps bindings
// at-most-once per pair.
func (r *Repository) UpsertMapping(ctx context.Context, sourceID int64, identityKey string, ref domain.ObjectRef, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mappings (source_id, identity_key, object_type, object_id, first_seen, last_seen, is_orphan)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT (source_id, identity_key) DO UPDATE SET
			object_type = excluded.object_type,
			object_id = excluded.object_id,
			last_seen = excluded.last_seen,
			is_orphan = 0
	`, sourceID, identityKey, string(ref.Type), ref.ID, at, at)
	if err != nil {
		return fmt.Errorf("upsert mapping: %w", err)
	}
	return nil
}

// ListMappings returns mappings for a source (or all sources when sourceID
// is 0), optionally filtered by orphan state.
func (r *Repository) ListMappings(ctx context.Context, sourceID int64, orphan *bool) ([]domain.DiscoveryMapping, error) {
	var (
		where []string
		args  []any
	)
	if sourceID != 0 {
		where = append(where, "source_id = ?")
		args = append(args, sourceID)
	}
	if orphan != nil {
		where = append(where, "is_orphan = ?")
		args = append(args, *orphan)
	}

	query := `SELECT ` + mappingColumns + ` FROM mappings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY source_id, identity_key"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mappings: %w", err)
	}
	defer rows.Close()

	var mappings []domain.DiscoveryMapping
	for rows.Next() {
		m, err := scanMapping(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		mappings = append(mappings, *m)
	}
	return mappings, rows.Err()
}

// seenChunkSize bounds one IN list well under SQLite's default bound
// variable limit of 999.
const seenChunkSize = 500

// UpdateOrphanFlags recomputes orphan state for one source from the
// current scan's observed key set, in one transaction.
func (r *Repository) UpdateOrphanFlags(ctx context.Context, sourceID int64, seen []string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Orphan everything, then clear the seen keys in bounded chunks so a
	// large scan's key set stays under SQLite's bound-variable limit. The
	// transaction makes the intermediate all-orphan state invisible.
	if _, err := tx.ExecContext(ctx, `
		UPDATE mappings SET is_orphan = 1 WHERE source_id = ?
	`, sourceID); err != nil {
		return fmt.Errorf("mark orphans: %w", err)
	}

	for start := 0; start < len(seen); start += seenChunkSize {
		chunk := seen[start:min(start+seenChunkSize, len(seen))]
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, 0, len(chunk)+2)
		args = append(args, at, sourceID)
		for _, key := range chunk {
			args = append(args, key)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE mappings SET is_orphan = 0, last_seen = ?
			WHERE source_id = ? AND identity_key IN (`+placeholders+`)
		`, args...); err != nil {
			return fmt.Errorf("clear orphans: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit orphan flags: %w", err)
	}
	return nil
}

// CountPendingResults returns the number of results awaiting review.
func (r *Repository) CountPendingResults(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM results WHERE status = ?
	`, string(domain.ResultPending)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending results: %w", err)
	}
	return n, nil
}

// CountOrphanMappings returns the number of orphaned mappings.
func (r *Repository) CountOrphanMappings(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM mappings WHERE is_orphan = 1
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count orphan mappings: %w", err)
	}
	return n, nil
}
