// Package handler implements HTTP request handlers for the driftsync API.
//
// This package provides the HTTP layer for the driftsync REST API, handling
// requests for discovery sources, scan jobs, result review, and mapping
// inspection.
//
// # Handlers
//
// DiscoveryHandler handles source CRUD, scan triggering, result review
// (single and bulk), mapping queries, and the dashboard summary.
//
// Middleware provides request logging, panic recovery, and CORS support.
//
// # API Design
//
// All handlers follow REST conventions:
// - GET for retrieval
// - POST for creation and actions (scan, approve, reject)
// - PUT for updates
// - DELETE for removal
//
// Reviewer identity is taken from the X-Reviewer request header; there is
// no authentication layer.
//
// # Response Format
//
// Success responses return JSON data with appropriate status codes
// (200, 201, 202). Error responses return JSON with {error, details}
// structure.
package handler
