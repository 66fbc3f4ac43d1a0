// Package service implements business logic for the driftsync application.
//
// This package provides service layers that coordinate between the HTTP
// handlers and the repository layer, implementing review rules and event
// publishing.
//
// # Services
//
// Review manages the approve/reject lifecycle of staged proposals. A review
// is claimed with a compare-and-set transition so that concurrent reviewers
// cannot double-apply a proposal; the losing reviewer gets
// ErrAlreadyReviewed. Approval applies the proposal to the system of record
// and rolls the claim back if the apply fails, leaving the proposal
// actionable.
//
// # Event System
//
// Services and the job runner publish events via EventBus for real-time
// updates to connected clients via Server-Sent Events (SSE). Event types
// cover the scan job lifecycle, review outcomes, and source changes.
//
// # Design Principles
//
// - Services own business logic and validation
// - Repository pattern for data access
// - Event-driven for real-time updates
package service
