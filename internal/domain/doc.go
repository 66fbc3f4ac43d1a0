// Package domain defines the core types for driftsync.
//
// Two families of records live here:
//
// Inventory records (Device, Interface, IPAddress, VLAN, Site, ...) mirror
// the system of record that discovery proposes changes against.
//
// Discovery records (DiscoverySource, ScanJob, DiscoveryResult,
// DiscoveryMapping) track the scan lifecycle: a source is scanned by a job,
// the job stages results for review, and applied results bind identity keys
// to inventory objects through mappings.
//
// DiscoveredObject is the transient normalized form a scan produces; it is
// never persisted. ObjectRef is the weak (type, id) reference used wherever
// a discovery record points at an inventory object — resolution tolerates
// dangling references.
package domain
