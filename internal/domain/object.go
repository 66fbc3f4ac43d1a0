package domain

import "fmt"

// ObjectType tags the kind of record a discovery produced. It is a closed
// set: the matcher, differ, and applier each carry one table entry per type.
type ObjectType string

const (
	TypeDevice    ObjectType = "device"
	TypeVLAN      ObjectType = "vlan"
	TypeIPAddress ObjectType = "ip_address"
)

// Valid reports whether t is one of the known object types.
func (t ObjectType) Valid() bool {
	switch t {
	case TypeDevice, TypeVLAN, TypeIPAddress:
		return true
	}
	return false
}

// DiscoveredObject is the normalized output of one scanned record. It is
// transient: produced by the scanner, consumed within a single
// reconciliation pass, never persisted directly.
type DiscoveredObject struct {
	Type        ObjectType
	IdentityKey string
	Data        map[string]any
	Raw         map[string]any
}

// String returns the named field from the normalized data, or "" if absent
// or not a string.
func (o DiscoveredObject) String(key string) string {
	v, _ := o.Data[key].(string)
	return v
}

// Int returns the named field as an int. JSON decoding yields float64 for
// numbers, so both forms are accepted.
func (o DiscoveredObject) Int(key string) int {
	switch v := o.Data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// ObjectRef is a weak reference to a system-of-record object: a type tag
// plus a row id. Resolution tolerates dangling references (the object may
// have been deleted out-of-band).
type ObjectRef struct {
	Type ObjectType `json:"type"`
	ID   int64      `json:"id"`
}

// IsZero reports whether the reference is unset.
func (r ObjectRef) IsZero() bool {
	return r.Type == "" && r.ID == 0
}

func (r ObjectRef) String() string {
	return fmt.Sprintf("%s/%d", r.Type, r.ID)
}

// FieldChange holds one side-by-side value pair in a diff.
type FieldChange struct {
	Current  string `json:"current"`
	Proposed string `json:"proposed"`
}

// Diff maps field names to their current/proposed values. Only fields whose
// proposed value is present and differs appear; an empty diff means "no
// actionable change".
type Diff map[string]FieldChange
