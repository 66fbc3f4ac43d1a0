package domain

import "time"

// SourceStatus is the operator-set state of a discovery source.
type SourceStatus string

const (
	SourceActive   SourceStatus = "active"
	SourceDisabled SourceStatus = "disabled"
)

// JobStatus is the scan job state machine. Transitions are one-way:
// pending -> running -> completed|failed. There is no retry-in-place.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// ResultStatus is the review state of a staged proposal.
type ResultStatus string

const (
	ResultPending  ResultStatus = "pending"
	ResultApproved ResultStatus = "approved"
	ResultRejected ResultStatus = "rejected"
	// ResultAutoApplied is reserved for a future auto-apply policy.
	// No code path sets it.
	ResultAutoApplied ResultStatus = "auto_applied"
)

// ResultAction is what applying a proposal would do.
type ResultAction string

const (
	ActionCreate ResultAction = "create"
	ActionUpdate ResultAction = "update"
	ActionSkip   ResultAction = "skip"
)

// DiscoverySource is a configured controller connection: the unit of
// scanning and of identity-key namespacing. Config is opaque key/value
// data interpreted by the scanner and applier; it is read-only during a
// scan.
type DiscoverySource struct {
	ID              int64        `json:"id"`
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	Status          SourceStatus `json:"status"`
	Config          SourceConfig `json:"config"`
	Token           string       `json:"-"`
	SiteID          *int64       `json:"site_id,omitempty"`
	ScanInterval    int          `json:"scan_interval"` // minutes, 0 = manual only
	LastScan        *time.Time   `json:"last_scan,omitempty"`
	LastScanSuccess bool         `json:"last_scan_success"`
	SyncDevices     bool         `json:"sync_devices"`
	SyncClients     bool         `json:"sync_clients"`
	SyncVLANs       bool         `json:"sync_vlans"`
	Created         time.Time    `json:"created"`
}

// ScanJob records one scan execution attempt against a source. It is
// mutated only by the job runner and is immutable once it reaches a
// terminal state.
type ScanJob struct {
	ID              string     `json:"id"`
	SourceID        int64      `json:"source_id"`
	Status          JobStatus  `json:"status"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DryRun          bool       `json:"dry_run"`
	DiscoveredCount int        `json:"discovered_count"`
	CreatedCount    int        `json:"created_count"`
	UpdatedCount    int        `json:"updated_count"`
	ErrorCount      int        `json:"error_count"`
	Log             string     `json:"log"`
	Initiator       string     `json:"initiator"`
	Created         time.Time  `json:"created"`
}

// Duration returns the job runtime, or zero if it has not finished.
func (j *ScanJob) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// Terminal reports whether the job has reached a final state.
func (j *ScanJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

// DiscoveryResult is one staged proposal: a reviewable create/update
// decision produced by a reconciliation pass. Immutable once approved or
// rejected.
type DiscoveryResult struct {
	ID             int64          `json:"id"`
	JobID          string         `json:"job_id"`
	SourceID       int64          `json:"source_id"`
	DiscoveredType ObjectType     `json:"discovered_type"`
	DiscoveredData map[string]any `json:"discovered_data"`
	ProposedData   map[string]any `json:"proposed_data"`
	Matched        *ObjectRef     `json:"matched,omitempty"`
	Diff           Diff           `json:"diff"`
	Status         ResultStatus   `json:"status"`
	Action         ResultAction   `json:"action"`
	IdentityKey    string         `json:"identity_key"`
	ReviewedBy     string         `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time     `json:"reviewed_at,omitempty"`
	Created        time.Time      `json:"created"`
}

// Proposed wraps the proposed data for field access.
func (r *DiscoveryResult) Proposed() DiscoveredObject {
	return DiscoveredObject{
		Type:        r.DiscoveredType,
		IdentityKey: r.IdentityKey,
		Data:        r.ProposedData,
		Raw:         r.DiscoveredData,
	}
}

// DiscoveryMapping is the durable binding between (source, identity_key)
// and a system-of-record object. At most one exists per pair. Orphan is a
// soft signal recomputed on every scan, never an automatic deletion.
type DiscoveryMapping struct {
	ID          int64     `json:"id"`
	SourceID    int64     `json:"source_id"`
	IdentityKey string    `json:"identity_key"`
	Object      ObjectRef `json:"object"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	IsOrphan    bool      `json:"is_orphan"`
}
