package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"driftsync/internal/domain"
)

// GetSite retrieves a site by id.
func (r *Repository) GetSite(ctx context.Context, id int64) (*domain.Site, error) {
	s := &domain.Site{ID: id}
	err := r.db.QueryRowContext(ctx, `
		SELECT name, slug FROM sites WHERE id = ?
	`, id).Scan(&s.Name, &s.Slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("site %d: %w", id, errNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query site: %w", err)
	}
	return s, nil
}

// FindSiteByName looks up a site by exact name. Returns (nil, nil) on a miss.
func (r *Repository) FindSiteByName(ctx context.Context, name string) (*domain.Site, error) {
	s := &domain.Site{Name: name}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, slug FROM sites WHERE name = ? ORDER BY id LIMIT 1
	`, name).Scan(&s.ID, &s.Slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query site by name: %w", err)
	}
	return s, nil
}

// CreateSite inserts a site. Used by fixtures and the API, not the applier.
func (r *Repository) CreateSite(ctx context.Context, s *domain.Site) error {
	if s.Slug == "" {
		s.Slug = domain.Slugify(s.Name)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sites (name, slug) VALUES (?, ?)
	`, s.Name, s.Slug)
	if err != nil {
		return fmt.Errorf("insert site: %w", err)
	}
	s.ID, err = lastInsertID(res)
	return err
}

// GetOrCreateManufacturer resolves a manufacturer by slug, creating it on
// first use.
func (r *Repository) GetOrCreateManufacturer(ctx context.Context, name string) (*domain.Manufacturer, error) {
	slug := domain.Slugify(name)
	m := &domain.Manufacturer{Slug: slug}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name FROM manufacturers WHERE slug = ?
	`, slug).Scan(&m.ID, &m.Name)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query manufacturer: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO manufacturers (name, slug) VALUES (?, ?)
	`, name, slug)
	if err != nil {
		return nil, fmt.Errorf("insert manufacturer: %w", err)
	}
	m.Name = name
	m.ID, err = lastInsertID(res)
	return m, err
}

// GetOrCreateDeviceType resolves a device type by manufacturer and model.
func (r *Repository) GetOrCreateDeviceType(ctx context.Context, manufacturerID int64, model string) (*domain.DeviceType, error) {
	dt := &domain.DeviceType{ManufacturerID: manufacturerID, Model: model}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, slug FROM device_types
		WHERE manufacturer_id = ? AND model = ?
		ORDER BY id LIMIT 1
	`, manufacturerID, model).Scan(&dt.ID, &dt.Slug)
	if err == nil {
		return dt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query device type: %w", err)
	}

	dt.Slug = domain.Slugify(fmt.Sprintf("%d-%s", manufacturerID, model))
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO device_types (manufacturer_id, model, slug) VALUES (?, ?, ?)
	`, manufacturerID, model, dt.Slug)
	if err != nil {
		return nil, fmt.Errorf("insert device type: %w", err)
	}
	dt.ID, err = lastInsertID(res)
	return dt, err
}

// GetOrCreateDeviceRole resolves a role by slug, creating it with the given
// color on first use.
func (r *Repository) GetOrCreateDeviceRole(ctx context.Context, name, color string) (*domain.DeviceRole, error) {
	slug := domain.Slugify(name)
	role := &domain.DeviceRole{Slug: slug}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, color FROM device_roles WHERE slug = ?
	`, slug).Scan(&role.ID, &role.Name, &role.Color)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query device role: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO device_roles (name, slug, color) VALUES (?, ?, ?)
	`, name, slug, color)
	if err != nil {
		return nil, fmt.Errorf("insert device role: %w", err)
	}
	role.Name = name
	role.Color = color
	role.ID, err = lastInsertID(res)
	return role, err
}

// GetOrCreateVLANGroup resolves a VLAN group by slug.
func (r *Repository) GetOrCreateVLANGroup(ctx context.Context, slug, name string, siteID *int64) (*domain.VLANGroup, error) {
	g := &domain.VLANGroup{Slug: slug}
	var site sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, site_id FROM vlan_groups WHERE slug = ?
	`, slug).Scan(&g.ID, &g.Name, &site)
	if err == nil {
		g.SiteID = idPtr(site)
		return g, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query vlan group: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO vlan_groups (name, slug, site_id) VALUES (?, ?, ?)
	`, name, slug, nullID(siteID))
	if err != nil {
		return nil, fmt.Errorf("insert vlan group: %w", err)
	}
	g.Name = name
	g.SiteID = siteID
	g.ID, err = lastInsertID(res)
	return g, err
}

// GetOrCreateTag resolves a tag by slug.
func (r *Repository) GetOrCreateTag(ctx context.Context, slug, name string) (*domain.Tag, error) {
	t := &domain.Tag{Slug: slug}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name FROM tags WHERE slug = ?
	`, slug).Scan(&t.ID, &t.Name)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query tag: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tags (name, slug) VALUES (?, ?)
	`, name, slug)
	if err != nil {
		return nil, fmt.Errorf("insert tag: %w", err)
	}
	t.Name = name
	t.ID, err = lastInsertID(res)
	return t, err
}

// FindTenantByName looks up a tenant. Tenants are never auto-created.
func (r *Repository) FindTenantByName(ctx context.Context, name string) (*domain.Tenant, error) {
	t := &domain.Tenant{Name: name}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, slug FROM tenants WHERE name = ? ORDER BY id LIMIT 1
	`, name).Scan(&t.ID, &t.Slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query tenant: %w", err)
	}
	return t, nil
}

// CreateTenant inserts a tenant. Fixture/API helper.
func (r *Repository) CreateTenant(ctx context.Context, t *domain.Tenant) error {
	if t.Slug == "" {
		t.Slug = domain.Slugify(t.Name)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tenants (name, slug) VALUES (?, ?)
	`, t.Name, t.Slug)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	t.ID, err = lastInsertID(res)
	return err
}

const deviceColumns = `name, device_type_id, role_id, serial, description, status, site_id, tenant_id, primary_ip4_id`

func (r *Repository) scanDevice(row *sql.Row) (*domain.Device, error) {
	d := &domain.Device{}
	var site, tenant, primary sql.NullInt64
	err := row.Scan(&d.ID, &d.Name, &d.DeviceTypeID, &d.RoleID, &d.Serial,
		&d.Description, &d.Status, &site, &tenant, &primary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan device: %w", err)
	}
	d.SiteID = idPtr(site)
	d.TenantID = idPtr(tenant)
	d.PrimaryIP4ID = idPtr(primary)
	return d, nil
}

// CreateDevice inserts a device and fills in its id.
func (r *Repository) CreateDevice(ctx context.Context, d *domain.Device) error {
	if d.Status == "" {
		d.Status = domain.StatusActive
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.Name, d.DeviceTypeID, d.RoleID, d.Serial, d.Description, d.Status,
		nullID(d.SiteID), nullID(d.TenantID), nullID(d.PrimaryIP4ID))
	if err != nil {
		return fmt.Errorf("insert device: %w", err)
	}
	d.ID, err = lastInsertID(res)
	return err
}

// UpdateDevice writes all mutable device fields.
func (r *Repository) UpdateDevice(ctx context.Context, d *domain.Device) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE devices SET name = ?, device_type_id = ?, role_id = ?, serial = ?,
			description = ?, status = ?, site_id = ?, tenant_id = ?, primary_ip4_id = ?
		WHERE id = ?
	`, d.Name, d.DeviceTypeID, d.RoleID, d.Serial, d.Description, d.Status,
		nullID(d.SiteID), nullID(d.TenantID), nullID(d.PrimaryIP4ID), d.ID)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	return nil
}

// GetDevice retrieves a device by id.
func (r *Repository) GetDevice(ctx context.Context, id int64) (*domain.Device, error) {
	d, err := r.scanDevice(r.db.QueryRowContext(ctx, `
		SELECT id, `+deviceColumns+` FROM devices WHERE id = ?
	`, id))
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("device %d: %w", id, errNotFound)
	}
	return d, nil
}

// FindDeviceBySerial matches a device by exact serial, lowest id first.
func (r *Repository) FindDeviceBySerial(ctx context.Context, serial string) (*domain.Device, error) {
	return r.scanDevice(r.db.QueryRowContext(ctx, `
		SELECT id, `+deviceColumns+` FROM devices WHERE serial = ? ORDER BY id LIMIT 1
	`, serial))
}

// FindDeviceByInterfaceMAC resolves the device owning an interface with the
// given MAC address.
func (r *Repository) FindDeviceByInterfaceMAC(ctx context.Context, mac string) (*domain.Device, error) {
	return r.scanDevice(r.db.QueryRowContext(ctx, `
		SELECT d.id, d.name, d.device_type_id, d.role_id, d.serial,
			d.description, d.status, d.site_id, d.tenant_id, d.primary_ip4_id
		FROM devices d
		JOIN interfaces i ON i.device_id = d.id
		WHERE i.mac = ?
		ORDER BY d.id LIMIT 1
	`, mac))
}

// FindDeviceByName matches a device by name, narrowed by site name when one
// is given.
func (r *Repository) FindDeviceByName(ctx context.Context, name, siteName string) (*domain.Device, error) {
	if siteName == "" {
		return r.scanDevice(r.db.QueryRowContext(ctx, `
			SELECT id, `+deviceColumns+` FROM devices WHERE name = ? ORDER BY id LIMIT 1
		`, name))
	}
	return r.scanDevice(r.db.QueryRowContext(ctx, `
		SELECT d.id, d.name, d.device_type_id, d.role_id, d.serial,
			d.description, d.status, d.site_id, d.tenant_id, d.primary_ip4_id
		FROM devices d
		JOIN sites s ON s.id = d.site_id
		WHERE d.name = ? AND s.name = ?
		ORDER BY d.id LIMIT 1
	`, name, siteName))
}

// CreateInterface inserts an interface and fills in its id.
func (r *Repository) CreateInterface(ctx context.Context, iface *domain.Interface) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO interfaces (device_id, name, type, mac) VALUES (?, ?, ?, ?)
	`, iface.DeviceID, iface.Name, iface.Type, iface.MAC)
	if err != nil {
		return fmt.Errorf("insert interface: %w", err)
	}
	iface.ID, err = lastInsertID(res)
	return err
}

// FindInterface looks up an interface by device and name.
func (r *Repository) FindInterface(ctx context.Context, deviceID int64, name string) (*domain.Interface, error) {
	iface := &domain.Interface{DeviceID: deviceID, Name: name}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, type, mac FROM interfaces
		WHERE device_id = ? AND name = ?
		ORDER BY id LIMIT 1
	`, deviceID, name).Scan(&iface.ID, &iface.Type, &iface.MAC)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query interface: %w", err)
	}
	return iface, nil
}

func (r *Repository) scanIPAddress(row *sql.Row) (*domain.IPAddress, error) {
	ip := &domain.IPAddress{}
	var iface, tenant sql.NullInt64
	err := row.Scan(&ip.ID, &ip.Address, &ip.Status, &ip.Description, &ip.DNSName, &iface, &tenant)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan ip address: %w", err)
	}
	ip.InterfaceID = idPtr(iface)
	ip.TenantID = idPtr(tenant)
	return ip, nil
}

// CreateIPAddress inserts an address and fills in its id.
func (r *Repository) CreateIPAddress(ctx context.Context, ip *domain.IPAddress) error {
	if ip.Status == "" {
		ip.Status = domain.StatusActive
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO ip_addresses (address, status, description, dns_name, interface_id, tenant_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ip.Address, ip.Status, ip.Description, ip.DNSName, nullID(ip.InterfaceID), nullID(ip.TenantID))
	if err != nil {
		return fmt.Errorf("insert ip address: %w", err)
	}
	ip.ID, err = lastInsertID(res)
	return err
}

// UpdateIPAddress writes all mutable address fields.
func (r *Repository) UpdateIPAddress(ctx context.Context, ip *domain.IPAddress) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE ip_addresses SET address = ?, status = ?, description = ?, dns_name = ?,
			interface_id = ?, tenant_id = ?
		WHERE id = ?
	`, ip.Address, ip.Status, ip.Description, ip.DNSName, nullID(ip.InterfaceID), nullID(ip.TenantID), ip.ID)
	if err != nil {
		return fmt.Errorf("update ip address: %w", err)
	}
	return nil
}

// GetIPAddress retrieves an address by id.
func (r *Repository) GetIPAddress(ctx context.Context, id int64) (*domain.IPAddress, error) {
	ip, err := r.scanIPAddress(r.db.QueryRowContext(ctx, `
		SELECT id, address, status, description, dns_name, interface_id, tenant_id
		FROM ip_addresses WHERE id = ?
	`, id))
	if err != nil {
		return nil, err
	}
	if ip == nil {
		return nil, fmt.Errorf("ip address %d: %w", id, errNotFound)
	}
	return ip, nil
}

// FindIPAddress matches by exact address-with-prefix, lowest id first.
func (r *Repository) FindIPAddress(ctx context.Context, address string) (*domain.IPAddress, error) {
	return r.scanIPAddress(r.db.QueryRowContext(ctx, `
		SELECT id, address, status, description, dns_name, interface_id, tenant_id
		FROM ip_addresses WHERE address = ? ORDER BY id LIMIT 1
	`, address))
}

func (r *Repository) scanVLAN(row *sql.Row) (*domain.VLAN, error) {
	v := &domain.VLAN{}
	var site, group, tenant sql.NullInt64
	err := row.Scan(&v.ID, &v.VID, &v.Name, &v.Status, &site, &group, &tenant)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan vlan: %w", err)
	}
	v.SiteID = idPtr(site)
	v.GroupID = idPtr(group)
	v.TenantID = idPtr(tenant)
	return v, nil
}

// CreateVLAN inserts a VLAN and fills in its id.
func (r *Repository) CreateVLAN(ctx context.Context, v *domain.VLAN) error {
	if v.Status == "" {
		v.Status = domain.StatusActive
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO vlans (vid, name, status, site_id, group_id, tenant_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, v.VID, v.Name, v.Status, nullID(v.SiteID), nullID(v.GroupID), nullID(v.TenantID))
	if err != nil {
		return fmt.Errorf("insert vlan: %w", err)
	}
	v.ID, err = lastInsertID(res)
	return err
}

// UpdateVLAN writes all mutable VLAN fields.
func (r *Repository) UpdateVLAN(ctx context.Context, v *domain.VLAN) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE vlans SET vid = ?, name = ?, status = ?, site_id = ?, group_id = ?, tenant_id = ?
		WHERE id = ?
	`, v.VID, v.Name, v.Status, nullID(v.SiteID), nullID(v.GroupID), nullID(v.TenantID), v.ID)
	if err != nil {
		return fmt.Errorf("update vlan: %w", err)
	}
	return nil
}

// GetVLAN retrieves a VLAN by id.
func (r *Repository) GetVLAN(ctx context.Context, id int64) (*domain.VLAN, error) {
	v, err := r.scanVLAN(r.db.QueryRowContext(ctx, `
		SELECT id, vid, name, status, site_id, group_id, tenant_id FROM vlans WHERE id = ?
	`, id))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("vlan %d: %w", id, errNotFound)
	}
	return v, nil
}

// FindVLAN matches by VLAN id, narrowed by site name when one is given.
func (r *Repository) FindVLAN(ctx context.Context, vid int, siteName string) (*domain.VLAN, error) {
	if siteName == "" {
		return r.scanVLAN(r.db.QueryRowContext(ctx, `
			SELECT id, vid, name, status, site_id, group_id, tenant_id
			FROM vlans WHERE vid = ? ORDER BY id LIMIT 1
		`, vid))
	}
	return r.scanVLAN(r.db.QueryRowContext(ctx, `
		SELECT v.id, v.vid, v.name, v.status, v.site_id, v.group_id, v.tenant_id
		FROM vlans v
		JOIN sites s ON s.id = v.site_id
		WHERE v.vid = ? AND s.name = ?
		ORDER BY v.id LIMIT 1
	`, vid, siteName))
}

// TagObject records a tag assignment. Reassigning is a no-op.
func (r *Repository) TagObject(ctx context.Context, tagID int64, ref domain.ObjectRef) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO object_tags (tag_id, object_type, object_id) VALUES (?, ?, ?)
		ON CONFLICT (tag_id, object_type, object_id) DO NOTHING
	`, tagID, string(ref.Type), ref.ID)
	if err != nil {
		return fmt.Errorf("tag object: %w", err)
	}
	return nil
}

// Resolve follows a weak (type, id) reference. Dangling references resolve
// to (nil, nil).
func (r *Repository) Resolve(ctx context.Context, ref domain.ObjectRef) (any, error) {
	switch ref.Type {
	case domain.TypeDevice:
		d, err := r.scanDevice(r.db.QueryRowContext(ctx, `
			SELECT id, `+deviceColumns+` FROM devices WHERE id = ?
		`, ref.ID))
		if err != nil || d == nil {
			return nil, err
		}
		return d, nil
	case domain.TypeVLAN:
		v, err := r.scanVLAN(r.db.QueryRowContext(ctx, `
			SELECT id, vid, name, status, site_id, group_id, tenant_id FROM vlans WHERE id = ?
		`, ref.ID))
		if err != nil || v == nil {
			return nil, err
		}
		return v, nil
	case domain.TypeIPAddress:
		ip, err := r.scanIPAddress(r.db.QueryRowContext(ctx, `
			SELECT id, address, status, description, dns_name, interface_id, tenant_id
			FROM ip_addresses WHERE id = ?
		`, ref.ID))
		if err != nil || ip == nil {
			return nil, err
		}
		return ip, nil
	}
	return nil, fmt.Errorf("resolve ref: unknown object type %q", ref.Type)
}
