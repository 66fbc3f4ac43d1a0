package domain

// Inventory records mirror the system of record that discovery writes into.
// IDs are database row ids; optional foreign keys are pointers.

// Site is a physical or logical location. Sites are lookup-only for the
// applier: discovery never creates them.
type Site struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Manufacturer is a device vendor, get-or-created by name.
type Manufacturer struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// DeviceType is a hardware model under a manufacturer.
type DeviceType struct {
	ID             int64  `json:"id"`
	ManufacturerID int64  `json:"manufacturer_id"`
	Model          string `json:"model"`
	Slug           string `json:"slug"`
}

// DeviceRole classifies what a device does (router, switch, AP, client).
type DeviceRole struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Color string `json:"color"`
}

// Tenant is an ownership grouping. Lookup-only: never auto-created.
type Tenant struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Device is a managed network device.
type Device struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	DeviceTypeID int64  `json:"device_type_id"`
	RoleID       int64  `json:"role_id"`
	Serial       string `json:"serial"`
	Description  string `json:"description"`
	Status       string `json:"status"`
	SiteID       *int64 `json:"site_id,omitempty"`
	TenantID     *int64 `json:"tenant_id,omitempty"`
	PrimaryIP4ID *int64 `json:"primary_ip4_id,omitempty"`
}

// Ref returns the weak reference for this device.
func (d *Device) Ref() ObjectRef { return ObjectRef{Type: TypeDevice, ID: d.ID} }

// Interface is a network interface belonging to a device.
type Interface struct {
	ID       int64  `json:"id"`
	DeviceID int64  `json:"device_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	MAC      string `json:"mac"`
}

// IPAddress is an address with prefix, optionally bound to an interface.
type IPAddress struct {
	ID          int64  `json:"id"`
	Address     string `json:"address"` // "10.0.0.5/24"
	Status      string `json:"status"`
	Description string `json:"description"`
	DNSName     string `json:"dns_name"`
	InterfaceID *int64 `json:"interface_id,omitempty"`
	TenantID    *int64 `json:"tenant_id,omitempty"`
}

// Ref returns the weak reference for this address.
func (ip *IPAddress) Ref() ObjectRef { return ObjectRef{Type: TypeIPAddress, ID: ip.ID} }

// VLANGroup scopes VLANs to a site, get-or-created from the source's
// vlan_group_pattern.
type VLANGroup struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	SiteID *int64 `json:"site_id,omitempty"`
}

// VLAN is an 802.1Q VLAN.
type VLAN struct {
	ID       int64  `json:"id"`
	VID      int    `json:"vid"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	SiteID   *int64 `json:"site_id,omitempty"`
	GroupID  *int64 `json:"group_id,omitempty"`
	TenantID *int64 `json:"tenant_id,omitempty"`
}

// Ref returns the weak reference for this VLAN.
func (v *VLAN) Ref() ObjectRef { return ObjectRef{Type: TypeVLAN, ID: v.ID} }

// Tag is a free-form label; discovered objects get a configurable tag so
// operators can tell synced records from hand-entered ones.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// StatusActive is the default status written on created records.
const StatusActive = "active"
