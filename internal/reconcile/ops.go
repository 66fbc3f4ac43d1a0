package reconcile

import (
	"context"

	"driftsync/internal/domain"
)

// typeOps is the closed per-type dispatch table: one arm per discovered
// object type covering matching, diffing, and applying. Adding a type means
// adding one entry here, not hunting for branches.
type typeOps struct {
	match  func(ctx context.Context, m *Matcher, obj domain.DiscoveredObject) (any, *domain.ObjectRef, error)
	diff   func(ctx context.Context, d *Differ, existing any, obj domain.DiscoveredObject) (domain.Diff, error)
	create func(ctx context.Context, a *Applier, src *domain.DiscoverySource, obj domain.DiscoveredObject) (domain.ObjectRef, error)
	update func(ctx context.Context, a *Applier, existing any, res *domain.DiscoveryResult) (domain.ObjectRef, error)
}

var opsFor = map[domain.ObjectType]typeOps{
	domain.TypeDevice: {
		match:  matchDevice,
		diff:   diffDevice,
		create: createDevice,
		update: updateDevice,
	},
	domain.TypeVLAN: {
		match:  matchVLAN,
		diff:   diffVLAN,
		create: createVLAN,
		update: updateVLAN,
	},
	domain.TypeIPAddress: {
		match:  matchIPAddress,
		diff:   diffIPAddress,
		create: createIPAddress,
		update: updateIPAddress,
	},
}
