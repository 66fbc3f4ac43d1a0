package repository

import (
	"context"
	"errors"
	"time"

	"driftsync/internal/domain"
)

// ErrNotFound is returned by single-record getters when no row matches.
// Find* lookups return (nil, nil) on a miss instead; the matcher treats
// both a miss and a dangling reference as "no match".
var ErrNotFound = errors.New("not found")

// Inventory is the data access surface for system-of-record objects.
// Find* methods return (nil, nil) when nothing matches; lookups that can
// return several rows resolve ties by lowest id.
type Inventory interface {
	// Sites are lookup-only: discovery never creates them.
	GetSite(ctx context.Context, id int64) (*domain.Site, error)
	FindSiteByName(ctx context.Context, name string) (*domain.Site, error)

	GetOrCreateManufacturer(ctx context.Context, name string) (*domain.Manufacturer, error)
	GetOrCreateDeviceType(ctx context.Context, manufacturerID int64, model string) (*domain.DeviceType, error)
	GetOrCreateDeviceRole(ctx context.Context, name, color string) (*domain.DeviceRole, error)
	GetOrCreateVLANGroup(ctx context.Context, slug, name string, siteID *int64) (*domain.VLANGroup, error)
	GetOrCreateTag(ctx context.Context, slug, name string) (*domain.Tag, error)
	FindTenantByName(ctx context.Context, name string) (*domain.Tenant, error)

	CreateDevice(ctx context.Context, d *domain.Device) error
	UpdateDevice(ctx context.Context, d *domain.Device) error
	GetDevice(ctx context.Context, id int64) (*domain.Device, error)
	FindDeviceBySerial(ctx context.Context, serial string) (*domain.Device, error)
	FindDeviceByInterfaceMAC(ctx context.Context, mac string) (*domain.Device, error)
	FindDeviceByName(ctx context.Context, name, siteName string) (*domain.Device, error)

	CreateInterface(ctx context.Context, iface *domain.Interface) error
	FindInterface(ctx context.Context, deviceID int64, name string) (*domain.Interface, error)

	CreateIPAddress(ctx context.Context, ip *domain.IPAddress) error
	UpdateIPAddress(ctx context.Context, ip *domain.IPAddress) error
	GetIPAddress(ctx context.Context, id int64) (*domain.IPAddress, error)
	FindIPAddress(ctx context.Context, address string) (*domain.IPAddress, error)

	CreateVLAN(ctx context.Context, v *domain.VLAN) error
	UpdateVLAN(ctx context.Context, v *domain.VLAN) error
	GetVLAN(ctx context.Context, id int64) (*domain.VLAN, error)
	FindVLAN(ctx context.Context, vid int, siteName string) (*domain.VLAN, error)

	// TagObject records a tag assignment; repeating an assignment is a no-op.
	TagObject(ctx context.Context, tagID int64, ref domain.ObjectRef) error

	// Resolve follows a weak reference. A dangling reference yields
	// (nil, nil), never an error.
	Resolve(ctx context.Context, ref domain.ObjectRef) (any, error)
}

// ResultFilter narrows ListResults.
type ResultFilter struct {
	SourceID int64
	JobID    string
	Status   domain.ResultStatus
	Limit    int
}

// Discovery is the data access surface for sources, jobs, results, and
// mappings.
type Discovery interface {
	CreateSource(ctx context.Context, s *domain.DiscoverySource) error
	UpdateSource(ctx context.Context, s *domain.DiscoverySource) error
	DeleteSource(ctx context.Context, id int64) error
	GetSource(ctx context.Context, id int64) (*domain.DiscoverySource, error)
	ListSources(ctx context.Context) ([]domain.DiscoverySource, error)
	// SetSourceScanOutcome records the terminal result of a scan on the
	// source. It is the only source mutation the job runner performs.
	SetSourceScanOutcome(ctx context.Context, id int64, at time.Time, success bool) error

	CreateScanJob(ctx context.Context, j *domain.ScanJob) error
	UpdateScanJob(ctx context.Context, j *domain.ScanJob) error
	GetScanJob(ctx context.Context, id string) (*domain.ScanJob, error)
	ListScanJobs(ctx context.Context, limit int) ([]domain.ScanJob, error)
	// FailStaleJobs force-fails running jobs started before cutoff and
	// returns how many were transitioned. Idempotent.
	FailStaleJobs(ctx context.Context, cutoff, completedAt time.Time) (int64, error)
	// FailRunningJobs fails every running job regardless of age. Run once
	// at process start to clean up after an abnormal termination.
	FailRunningJobs(ctx context.Context, completedAt time.Time) (int64, error)

	CreateResults(ctx context.Context, results []*domain.DiscoveryResult) error
	GetResult(ctx context.Context, id int64) (*domain.DiscoveryResult, error)
	ListResults(ctx context.Context, f ResultFilter) ([]domain.DiscoveryResult, error)
	// ClaimResult atomically transitions a pending result to status,
	// recording the reviewer. Returns false if the result was no longer
	// pending — the caller lost a review race.
	ClaimResult(ctx context.Context, id int64, status domain.ResultStatus, reviewer string, at time.Time) (bool, error)
	// ReleaseResult returns a claimed result to pending (apply failed,
	// proposal stays actionable).
	ReleaseResult(ctx context.Context, id int64) error

	GetMapping(ctx context.Context, sourceID int64, identityKey string) (*domain.DiscoveryMapping, error)
	UpsertMapping(ctx context.Context, sourceID int64, identityKey string, ref domain.ObjectRef, at time.Time) error
	ListMappings(ctx context.Context, sourceID int64, orphan *bool) ([]domain.DiscoveryMapping, error)
	// UpdateOrphanFlags recomputes orphan state for one source in a single
	// pass: mappings whose key is absent from seen become orphans, mappings
	// whose key is present are un-orphaned and have last_seen refreshed.
	UpdateOrphanFlags(ctx context.Context, sourceID int64, seen []string, at time.Time) error

	CountPendingResults(ctx context.Context) (int64, error)
	CountOrphanMappings(ctx context.Context) (int64, error)
}
