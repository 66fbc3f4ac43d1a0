package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"driftsync/internal/domain"
	"driftsync/internal/repository"
)

// ErrNotApplicable is returned when Apply is handed a result that is not an
// approved create or update.
var ErrNotApplicable = errors.New("result is not applicable")

// mgmtInterfaceName is the per-device management interface the applier
// ensures exists before binding an address.
const mgmtInterfaceName = "mgmt"

// Applier materializes approved proposals into the system of record,
// creating dependent objects as needed and binding the identity mapping.
// It never mutates result status; recording the review decision is the
// caller's job, keeping apply and review independently retryable.
type Applier struct {
	inv  repository.Inventory
	disc repository.Discovery
	log  zerolog.Logger
}

// NewApplier builds an Applier.
func NewApplier(inv repository.Inventory, disc repository.Discovery, log zerolog.Logger) *Applier {
	return &Applier{
		inv:  inv,
		disc: disc,
		log:  log.With().Str("component", "apply").Logger(),
	}
}

// Apply performs the create or update described by an approved result and
// returns a reference to the bound object. Applying a create whose mapping
// already resolves to a live object reuses that object instead of creating
// a second one, making retries idempotent.
func (a *Applier) Apply(ctx context.Context, src *domain.DiscoverySource, res *domain.DiscoveryResult) (domain.ObjectRef, error) {
	if res.Status != domain.ResultApproved {
		return domain.ObjectRef{}, fmt.Errorf("result %d has status %s: %w", res.ID, res.Status, ErrNotApplicable)
	}
	ops, ok := opsFor[res.DiscoveredType]
	if !ok {
		return domain.ObjectRef{}, fmt.Errorf("result %d: unknown object type %q", res.ID, res.DiscoveredType)
	}

	var (
		ref domain.ObjectRef
		err error
	)
	switch res.Action {
	case domain.ActionCreate:
		ref, err = a.applyCreate(ctx, ops, src, res)
	case domain.ActionUpdate:
		ref, err = a.applyUpdate(ctx, ops, src, res)
	default:
		return domain.ObjectRef{}, fmt.Errorf("result %d has action %s: %w", res.ID, res.Action, ErrNotApplicable)
	}
	if err != nil {
		return domain.ObjectRef{}, err
	}

	if err := a.disc.UpsertMapping(ctx, src.ID, res.IdentityKey, ref, time.Now().UTC()); err != nil {
		return domain.ObjectRef{}, fmt.Errorf("bind mapping %s: %w", res.IdentityKey, err)
	}
	if err := a.tag(ctx, src, ref); err != nil {
		return domain.ObjectRef{}, err
	}

	a.log.Info().Str("source", src.Name).Str("identity_key", res.IdentityKey).
		Str("action", string(res.Action)).Stringer("object", ref).Msg("applied result")
	return ref, nil
}

func (a *Applier) applyCreate(ctx context.Context, ops typeOps, src *domain.DiscoverySource, res *domain.DiscoveryResult) (domain.ObjectRef, error) {
	// Retry guard: if this identity key is already bound to a live object,
	// a previous apply succeeded and we must not create a second one.
	mapping, err := a.disc.GetMapping(ctx, src.ID, res.IdentityKey)
	if err != nil {
		return domain.ObjectRef{}, fmt.Errorf("check mapping %s: %w", res.IdentityKey, err)
	}
	if mapping != nil {
		existing, err := a.inv.Resolve(ctx, mapping.Object)
		if err != nil {
			return domain.ObjectRef{}, fmt.Errorf("resolve mapping %s: %w", res.IdentityKey, err)
		}
		if existing != nil {
			a.log.Debug().Str("identity_key", res.IdentityKey).
				Stringer("object", mapping.Object).Msg("create already applied, reusing bound object")
			return mapping.Object, nil
		}
	}
	return ops.create(ctx, a, src, res.Proposed())
}

func (a *Applier) applyUpdate(ctx context.Context, ops typeOps, src *domain.DiscoverySource, res *domain.DiscoveryResult) (domain.ObjectRef, error) {
	if res.Matched == nil {
		return domain.ObjectRef{}, fmt.Errorf("result %d: update without a matched object", res.ID)
	}
	existing, err := a.inv.Resolve(ctx, *res.Matched)
	if err != nil {
		return domain.ObjectRef{}, fmt.Errorf("resolve matched object %s: %w", res.Matched, err)
	}
	if existing == nil {
		return domain.ObjectRef{}, fmt.Errorf("result %d: matched object %s no longer exists", res.ID, res.Matched)
	}
	return ops.update(ctx, a, existing, res)
}

func (a *Applier) tag(ctx context.Context, src *domain.DiscoverySource, ref domain.ObjectRef) error {
	name := src.Config.Str("discovery_tag", domain.DefaultDiscoveryTag)
	tag, err := a.inv.GetOrCreateTag(ctx, domain.Slugify(name), name)
	if err != nil {
		return fmt.Errorf("ensure discovery tag: %w", err)
	}
	if err := a.inv.TagObject(ctx, tag.ID, ref); err != nil {
		return fmt.Errorf("tag %s: %w", ref, err)
	}
	return nil
}

// resolveSite looks up the discovered site by name, falling back to the
// source's default site, falling back to none. Sites are never created.
func (a *Applier) resolveSite(ctx context.Context, src *domain.DiscoverySource, siteName string) (*domain.Site, error) {
	if siteName != "" {
		site, err := a.inv.FindSiteByName(ctx, siteName)
		if err != nil {
			return nil, fmt.Errorf("find site %q: %w", siteName, err)
		}
		if site != nil {
			return site, nil
		}
	}
	if src.SiteID != nil {
		site, err := a.inv.GetSite(ctx, *src.SiteID)
		if err != nil {
			return nil, fmt.Errorf("load source default site: %w", err)
		}
		return site, nil
	}
	return nil, nil
}

// resolveTenant looks up the configured tenant. Tenants are never created;
// an unknown name resolves to none.
func (a *Applier) resolveTenant(ctx context.Context, src *domain.DiscoverySource) (*int64, error) {
	name := src.Config.Str("tenant", "")
	if name == "" {
		return nil, nil
	}
	tenant, err := a.inv.FindTenantByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("find tenant %q: %w", name, err)
	}
	if tenant == nil {
		return nil, nil
	}
	return &tenant.ID, nil
}

func createDevice(ctx context.Context, a *Applier, src *domain.DiscoverySource, obj domain.DiscoveredObject) (domain.ObjectRef, error) {
	site, err := a.resolveSite(ctx, src, obj.String("site_name"))
	if err != nil {
		return domain.ObjectRef{}, err
	}

	manufacturerName := obj.String("manufacturer")
	if manufacturerName == "" {
		manufacturerName = domain.DefaultManufacturer
	}
	manufacturer, err := a.inv.GetOrCreateManufacturer(ctx, manufacturerName)
	if err != nil {
		return domain.ObjectRef{}, fmt.Errorf("ensure manufacturer: %w", err)
	}

	model := obj.String("model")
	if model == "" {
		model = "Unknown"
	}
	deviceType, err := a.inv.GetOrCreateDeviceType(ctx, manufacturer.ID, model)
	if err != nil {
		return domain.ObjectRef{}, fmt.Errorf("ensure device type: %w", err)
	}

	roleName := obj.String("role")
	if roleName == "" {
		roleName = "Network Switch"
	}
	role, err := a.inv.GetOrCreateDeviceRole(ctx, roleName, domain.DefaultRoleColor)
	if err != nil {
		return domain.ObjectRef{}, fmt.Errorf("ensure device role: %w", err)
	}

	tenantID, err := a.resolveTenant(ctx, src)
	if err != nil {
		return domain.ObjectRef{}, err
	}

	device := &domain.Device{
		Name:         obj.String("name"),
		DeviceTypeID: deviceType.ID,
		RoleID:       role.ID,
		Serial:       obj.String("serial"),
		Description:  obj.String("description"),
		Status:       domain.StatusActive,
		TenantID:     tenantID,
	}
	if site != nil {
		device.SiteID = &site.ID
	}
	if err := a.inv.CreateDevice(ctx, device); err != nil {
		return domain.ObjectRef{}, fmt.Errorf("create device %q: %w", device.Name, err)
	}
	a.log.Info().Str("device", device.Name).Msg("created device")

	if ip := obj.String("ip"); ip != "" {
		if err := a.assignDeviceIP(ctx, device, ip, obj.String("mac"), obj.Int("prefix_length")); err != nil {
			return domain.ObjectRef{}, err
		}
	}
	return device.Ref(), nil
}

// assignDeviceIP ensures the device's management interface exists and binds
// the given address to it, updating the device's primary-IPv4 pointer. An
// address already bound to a different interface is left alone: the
// conflict is logged as a warning and the apply continues.
func (a *Applier) assignDeviceIP(ctx context.Context, device *domain.Device, ip, mac string, prefix int) error {
	iface, err := a.inv.FindInterface(ctx, device.ID, mgmtInterfaceName)
	if err != nil {
		return fmt.Errorf("find mgmt interface: %w", err)
	}
	if iface == nil {
		iface = &domain.Interface{
			DeviceID: device.ID,
			Name:     mgmtInterfaceName,
			Type:     "virtual",
			MAC:      mac,
		}
		if err := a.inv.CreateInterface(ctx, iface); err != nil {
			return fmt.Errorf("create mgmt interface: %w", err)
		}
	}

	addr := withPrefix(ip, prefix)
	existing, err := a.inv.FindIPAddress(ctx, addr)
	if err != nil {
		return fmt.Errorf("find ip %s: %w", addr, err)
	}

	switch {
	case existing == nil:
		created := &domain.IPAddress{
			Address:     addr,
			Status:      domain.StatusActive,
			InterfaceID: &iface.ID,
		}
		if err := a.inv.CreateIPAddress(ctx, created); err != nil {
			return fmt.Errorf("create ip %s: %w", addr, err)
		}
		device.PrimaryIP4ID = &created.ID
		if err := a.inv.UpdateDevice(ctx, device); err != nil {
			return fmt.Errorf("set primary ip on %q: %w", device.Name, err)
		}
		a.log.Info().Str("device", device.Name).Str("ip", addr).Msg("assigned management ip")

	case existing.InterfaceID != nil && *existing.InterfaceID == iface.ID:
		if device.PrimaryIP4ID == nil || *device.PrimaryIP4ID != existing.ID {
			device.PrimaryIP4ID = &existing.ID
			if err := a.inv.UpdateDevice(ctx, device); err != nil {
				return fmt.Errorf("set primary ip on %q: %w", device.Name, err)
			}
		}

	default:
		a.log.Warn().Str("device", device.Name).Str("ip", addr).
			Msg("ip bound to another interface, skipping binding")
	}
	return nil
}

func createVLAN(ctx context.Context, a *Applier, src *domain.DiscoverySource, obj domain.DiscoveredObject) (domain.ObjectRef, error) {
	site, err := a.resolveSite(ctx, src, obj.String("site_name"))
	if err != nil {
		return domain.ObjectRef{}, err
	}

	var groupID *int64
	if site != nil {
		pattern := src.Config.Str("vlan_group_pattern", domain.DefaultVLANGroupPattern)
		slug := strings.ReplaceAll(pattern, "{site_slug}", site.Slug)
		group, err := a.inv.GetOrCreateVLANGroup(ctx, slug, site.Name+" VLANs", &site.ID)
		if err != nil {
			return domain.ObjectRef{}, fmt.Errorf("ensure vlan group: %w", err)
		}
		groupID = &group.ID
	}

	tenantID, err := a.resolveTenant(ctx, src)
	if err != nil {
		return domain.ObjectRef{}, err
	}

	vlan := &domain.VLAN{
		VID:      obj.Int("vid"),
		Name:     obj.String("name"),
		Status:   domain.StatusActive,
		GroupID:  groupID,
		TenantID: tenantID,
	}
	if site != nil {
		vlan.SiteID = &site.ID
	}
	if err := a.inv.CreateVLAN(ctx, vlan); err != nil {
		return domain.ObjectRef{}, fmt.Errorf("create vlan %d: %w", vlan.VID, err)
	}
	a.log.Info().Int("vid", vlan.VID).Str("name", vlan.Name).Msg("created vlan")
	return vlan.Ref(), nil
}

func createIPAddress(ctx context.Context, a *Applier, src *domain.DiscoverySource, obj domain.DiscoveredObject) (domain.ObjectRef, error) {
	tenantID, err := a.resolveTenant(ctx, src)
	if err != nil {
		return domain.ObjectRef{}, err
	}

	ip := &domain.IPAddress{
		Address:     withPrefix(obj.String("ip"), obj.Int("prefix_length")),
		Status:      domain.StatusActive,
		Description: obj.String("description"),
		DNSName:     obj.String("dns_name"),
		TenantID:    tenantID,
	}
	if err := a.inv.CreateIPAddress(ctx, ip); err != nil {
		return domain.ObjectRef{}, fmt.Errorf("create ip %s: %w", ip.Address, err)
	}
	a.log.Info().Str("ip", ip.Address).Msg("created ip address")
	return ip.Ref(), nil
}

// Updates write only the fields flagged in the diff computed at staging
// time; the stored diff is authoritative even if the raw data has since
// drifted.

func updateDevice(ctx context.Context, a *Applier, existing any, res *domain.DiscoveryResult) (domain.ObjectRef, error) {
	device, ok := existing.(*domain.Device)
	if !ok {
		return domain.ObjectRef{}, fmt.Errorf("result %d: matched object is not a device", res.ID)
	}
	obj := res.Proposed()

	if _, ok := res.Diff["name"]; ok {
		device.Name = obj.String("name")
	}
	if err := a.inv.UpdateDevice(ctx, device); err != nil {
		return domain.ObjectRef{}, fmt.Errorf("update device %q: %w", device.Name, err)
	}

	if _, ok := res.Diff["primary_ip4"]; ok {
		if ip := obj.String("ip"); ip != "" {
			if err := a.assignDeviceIP(ctx, device, ip, obj.String("mac"), obj.Int("prefix_length")); err != nil {
				return domain.ObjectRef{}, err
			}
		}
	}
	return device.Ref(), nil
}

func updateVLAN(ctx context.Context, a *Applier, existing any, res *domain.DiscoveryResult) (domain.ObjectRef, error) {
	vlan, ok := existing.(*domain.VLAN)
	if !ok {
		return domain.ObjectRef{}, fmt.Errorf("result %d: matched object is not a vlan", res.ID)
	}

	if _, ok := res.Diff["name"]; ok {
		vlan.Name = res.Proposed().String("name")
	}
	if err := a.inv.UpdateVLAN(ctx, vlan); err != nil {
		return domain.ObjectRef{}, fmt.Errorf("update vlan %d: %w", vlan.VID, err)
	}
	return vlan.Ref(), nil
}

func updateIPAddress(ctx context.Context, a *Applier, existing any, res *domain.DiscoveryResult) (domain.ObjectRef, error) {
	ip, ok := existing.(*domain.IPAddress)
	if !ok {
		return domain.ObjectRef{}, fmt.Errorf("result %d: matched object is not an ip address", res.ID)
	}
	obj := res.Proposed()

	if _, ok := res.Diff["description"]; ok {
		ip.Description = obj.String("description")
	}
	if _, ok := res.Diff["dns_name"]; ok {
		ip.DNSName = obj.String("dns_name")
	}
	if err := a.inv.UpdateIPAddress(ctx, ip); err != nil {
		return domain.ObjectRef{}, fmt.Errorf("update ip %s: %w", ip.Address, err)
	}
	return ip.Ref(), nil
}
