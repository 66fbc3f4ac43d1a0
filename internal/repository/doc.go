// Package repository defines the data access interfaces for driftsync.
//
// Two interfaces split the persistence surface: Inventory covers the
// system-of-record objects discovery writes into, Discovery covers the
// scan lifecycle records (sources, jobs, results, mappings). The sqlite
// subpackage implements both on one database.
//
// Conventions the reconciliation engine depends on:
//
//   - Find* lookups return (nil, nil) on a miss; Get* returns ErrNotFound.
//   - Multi-row lookups resolve ties by lowest id, so matching is
//     deterministic even when uniqueness is not enforced upstream.
//   - Resolve tolerates dangling weak references by returning (nil, nil).
//   - ClaimResult is a compare-and-set on result status; it is what makes
//     apply-then-mark-reviewed effectively at-most-once under concurrent
//     review requests.
package repository
