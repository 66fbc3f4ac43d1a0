package reconcile

import (
	"context"
	"fmt"

	"driftsync/internal/domain"
	"driftsync/internal/repository"
)

// Matcher finds the existing system-of-record object for a discovered
// object, if any. It is read-only and deterministic: every lookup step is a
// single-row query resolving ties by lowest id.
type Matcher struct {
	inv      repository.Inventory
	disc     repository.Discovery
	sourceID int64
}

// NewMatcher builds a Matcher scoped to one source's mapping namespace.
func NewMatcher(inv repository.Inventory, disc repository.Discovery, sourceID int64) *Matcher {
	return &Matcher{inv: inv, disc: disc, sourceID: sourceID}
}

// Find runs the priority chain, first hit wins:
//
//  1. an existing mapping for (source, identity_key) — a dangling binding
//     falls through to the heuristic steps
//  2. device: exact serial match
//  3. device: interface MAC match, resolved to the owning device
//  4. device: name match, narrowed by site when the record carries one
//  5. vlan: VLAN-id match, narrowed by site
//  6. ip_address: exact address+prefix match
//
// A (nil, nil, nil) return means no match: a create proposal.
func (m *Matcher) Find(ctx context.Context, obj domain.DiscoveredObject) (any, *domain.ObjectRef, error) {
	mapping, err := m.disc.GetMapping(ctx, m.sourceID, obj.IdentityKey)
	if err != nil {
		return nil, nil, fmt.Errorf("match %s: %w", obj.IdentityKey, err)
	}
	if mapping != nil {
		existing, err := m.inv.Resolve(ctx, mapping.Object)
		if err != nil {
			return nil, nil, fmt.Errorf("match %s: %w", obj.IdentityKey, err)
		}
		if existing != nil {
			ref := mapping.Object
			return existing, &ref, nil
		}
		// Bound object was deleted out-of-band; fall through.
	}

	ops, ok := opsFor[obj.Type]
	if !ok {
		return nil, nil, fmt.Errorf("match %s: unknown object type %q", obj.IdentityKey, obj.Type)
	}
	return ops.match(ctx, m, obj)
}

func matchDevice(ctx context.Context, m *Matcher, obj domain.DiscoveredObject) (any, *domain.ObjectRef, error) {
	if serial := obj.String("serial"); serial != "" {
		d, err := m.inv.FindDeviceBySerial(ctx, serial)
		if err != nil {
			return nil, nil, err
		}
		if d != nil {
			return deviceMatch(d)
		}
	}

	if mac := obj.String("mac"); mac != "" {
		d, err := m.inv.FindDeviceByInterfaceMAC(ctx, mac)
		if err != nil {
			return nil, nil, err
		}
		if d != nil {
			return deviceMatch(d)
		}
	}

	if name := obj.String("name"); name != "" {
		d, err := m.inv.FindDeviceByName(ctx, name, obj.String("site_name"))
		if err != nil {
			return nil, nil, err
		}
		if d != nil {
			return deviceMatch(d)
		}
	}
	return nil, nil, nil
}

func deviceMatch(d *domain.Device) (any, *domain.ObjectRef, error) {
	ref := d.Ref()
	return d, &ref, nil
}

func matchVLAN(ctx context.Context, m *Matcher, obj domain.DiscoveredObject) (any, *domain.ObjectRef, error) {
	vid := obj.Int("vid")
	if vid == 0 {
		return nil, nil, nil
	}
	v, err := m.inv.FindVLAN(ctx, vid, obj.String("site_name"))
	if err != nil || v == nil {
		return nil, nil, err
	}
	ref := v.Ref()
	return v, &ref, nil
}

func matchIPAddress(ctx context.Context, m *Matcher, obj domain.DiscoveredObject) (any, *domain.ObjectRef, error) {
	addr := obj.String("ip")
	if addr == "" {
		return nil, nil, nil
	}
	ip, err := m.inv.FindIPAddress(ctx, withPrefix(addr, obj.Int("prefix_length")))
	if err != nil || ip == nil {
		return nil, nil, err
	}
	ref := ip.Ref()
	return ip, &ref, nil
}

// withPrefix renders an address in address/prefix form. A zero prefix means
// the default /24.
func withPrefix(addr string, prefix int) string {
	if prefix == 0 {
		prefix = domain.DefaultClientPrefixLen
	}
	return fmt.Sprintf("%s/%d", addr, prefix)
}
