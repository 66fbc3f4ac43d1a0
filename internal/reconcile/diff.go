package reconcile

import (
	"context"
	"fmt"
	"strings"

	"driftsync/internal/domain"
	"driftsync/internal/repository"
)

// Differ computes the field-level diff between an existing object and
// proposed values. Only watched fields whose proposed value is present and
// differs produce an entry: an absent or empty proposed field never means
// "clear this field". An empty diff signals no actionable change.
type Differ struct {
	inv repository.Inventory
}

// NewDiffer builds a Differ. The inventory store is only read to resolve a
// device's current primary IPv4 address.
func NewDiffer(inv repository.Inventory) *Differ {
	return &Differ{inv: inv}
}

// Diff dispatches on the discovered type's watched-field set.
func (d *Differ) Diff(ctx context.Context, existing any, obj domain.DiscoveredObject) (domain.Diff, error) {
	ops, ok := opsFor[obj.Type]
	if !ok {
		return nil, fmt.Errorf("diff %s: unknown object type %q", obj.IdentityKey, obj.Type)
	}
	return ops.diff(ctx, d, existing, obj)
}

func diffDevice(ctx context.Context, d *Differ, existing any, obj domain.DiscoveredObject) (domain.Diff, error) {
	dev, ok := existing.(*domain.Device)
	if !ok {
		return nil, fmt.Errorf("diff %s: matched object is not a device", obj.IdentityKey)
	}

	diff := domain.Diff{}
	if name := obj.String("name"); name != "" && dev.Name != name {
		diff["name"] = domain.FieldChange{Current: dev.Name, Proposed: name}
	}

	if ip := obj.String("ip"); ip != "" {
		current, err := d.primaryAddress(ctx, dev)
		if err != nil {
			return nil, fmt.Errorf("diff %s: %w", obj.IdentityKey, err)
		}
		if current != ip {
			diff["primary_ip4"] = domain.FieldChange{Current: current, Proposed: ip}
		}
	}
	return diff, nil
}

// primaryAddress returns the device's primary IPv4 as a bare address, no
// prefix. A device without one (or with a dangling pointer) yields "".
func (d *Differ) primaryAddress(ctx context.Context, dev *domain.Device) (string, error) {
	if dev.PrimaryIP4ID == nil {
		return "", nil
	}
	resolved, err := d.inv.Resolve(ctx, domain.ObjectRef{Type: domain.TypeIPAddress, ID: *dev.PrimaryIP4ID})
	if err != nil {
		return "", err
	}
	ip, ok := resolved.(*domain.IPAddress)
	if !ok || ip == nil {
		return "", nil
	}
	addr, _, _ := strings.Cut(ip.Address, "/")
	return addr, nil
}

func diffVLAN(_ context.Context, _ *Differ, existing any, obj domain.DiscoveredObject) (domain.Diff, error) {
	vlan, ok := existing.(*domain.VLAN)
	if !ok {
		return nil, fmt.Errorf("diff %s: matched object is not a vlan", obj.IdentityKey)
	}

	diff := domain.Diff{}
	if name := obj.String("name"); name != "" && vlan.Name != name {
		diff["name"] = domain.FieldChange{Current: vlan.Name, Proposed: name}
	}
	return diff, nil
}

func diffIPAddress(_ context.Context, _ *Differ, existing any, obj domain.DiscoveredObject) (domain.Diff, error) {
	ip, ok := existing.(*domain.IPAddress)
	if !ok {
		return nil, fmt.Errorf("diff %s: matched object is not an ip address", obj.IdentityKey)
	}

	diff := domain.Diff{}
	if desc := obj.String("description"); desc != "" && ip.Description != desc {
		diff["description"] = domain.FieldChange{Current: ip.Description, Proposed: desc}
	}
	if dns := obj.String("dns_name"); dns != "" && ip.DNSName != dns {
		diff["dns_name"] = domain.FieldChange{Current: ip.DNSName, Proposed: dns}
	}
	return diff, nil
}
