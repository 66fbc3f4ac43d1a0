package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"driftsync/internal/domain"
	"driftsync/internal/reconcile"
	"driftsync/internal/repository"
	"driftsync/internal/runner"
	"driftsync/internal/service"
)

// ScanEnqueuer allows triggering scans from the handler
type ScanEnqueuer interface {
	Enqueue(ctx context.Context, sourceID int64, dryRun bool, initiator string) (*domain.ScanJob, error)
}

// ConnectionTester allows probing a source's controller without scanning
type ConnectionTester interface {
	Test(ctx context.Context, src *domain.DiscoverySource) (int, error)
}

// DiscoveryHandler handles discovery API requests
type DiscoveryHandler struct {
	disc   repository.Discovery
	review *service.Review
	runner ScanEnqueuer
	tester ConnectionTester
	events *service.EventBus
	log    zerolog.Logger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(disc repository.Discovery, review *service.Review, log zerolog.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		disc:   disc,
		review: review,
		log:    log.With().Str("component", "handler").Logger(),
	}
}

// SetScanEnqueuer sets the job runner used by the scan endpoint
func (h *DiscoveryHandler) SetScanEnqueuer(r ScanEnqueuer) {
	h.runner = r
}

// SetConnectionTester sets the tester used by the test endpoint
func (h *DiscoveryHandler) SetConnectionTester(t ConnectionTester) {
	h.tester = t
}

// SetEventBus sets the bus source-change events are published on
func (h *DiscoveryHandler) SetEventBus(bus *service.EventBus) {
	h.events = bus
}

func (h *DiscoveryHandler) publishSourceChanged(payload any) {
	if h.events != nil {
		h.events.Publish(service.Event{Type: service.EventSourceChanged, Payload: payload})
	}
}

// Routes registers every API route on mux.
func (h *DiscoveryHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sources", h.ListSources)
	mux.HandleFunc("POST /api/sources", h.CreateSource)
	mux.HandleFunc("GET /api/sources/{id}", h.GetSource)
	mux.HandleFunc("PUT /api/sources/{id}", h.UpdateSource)
	mux.HandleFunc("DELETE /api/sources/{id}", h.DeleteSource)
	mux.HandleFunc("POST /api/sources/{id}/scan", h.TriggerScan)
	mux.HandleFunc("POST /api/sources/{id}/test", h.TestSource)

	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)

	mux.HandleFunc("GET /api/results", h.ListResults)
	mux.HandleFunc("GET /api/results/{id}", h.GetResult)
	mux.HandleFunc("POST /api/results/{id}/approve", h.ApproveResult)
	mux.HandleFunc("POST /api/results/{id}/reject", h.RejectResult)
	mux.HandleFunc("POST /api/results/bulk-approve", h.BulkApprove)
	mux.HandleFunc("POST /api/results/bulk-reject", h.BulkReject)

	mux.HandleFunc("GET /api/mappings", h.ListMappings)
	mux.HandleFunc("GET /api/dashboard", h.Dashboard)
}

// Error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ListSources returns all discovery sources
func (h *DiscoveryHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.disc.ListSources(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list sources")
		h.writeError(w, "Failed to list sources", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, sources, http.StatusOK)
}

// CreateSource creates a new discovery source
func (h *DiscoveryHandler) CreateSource(w http.ResponseWriter, r *http.Request) {
	var src domain.DiscoverySource
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	if src.Name == "" {
		h.writeError(w, "Name required", "Source name must not be empty", http.StatusBadRequest)
		return
	}
	if host := src.Config.Str("host", ""); host == "" {
		h.writeError(w, "Host required", "Source config must include a controller host", http.StatusBadRequest)
		return
	}

	if err := h.disc.CreateSource(r.Context(), &src); err != nil {
		h.log.Error().Err(err).Msg("create source")
		h.writeError(w, "Failed to create source", err.Error(), http.StatusBadRequest)
		return
	}

	h.publishSourceChanged(src)
	h.writeJSON(w, src, http.StatusCreated)
}

// GetSource returns a single source
func (h *DiscoveryHandler) GetSource(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	src, err := h.disc.GetSource(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Msg("get source")
		h.writeError(w, "Failed to get source", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, src, http.StatusOK)
}

// UpdateSource updates a source's configuration
func (h *DiscoveryHandler) UpdateSource(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	src, err := h.disc.GetSource(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
			return
		}
		h.writeError(w, "Failed to get source", err.Error(), http.StatusInternalServerError)
		return
	}

	if err := json.NewDecoder(r.Body).Decode(src); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	src.ID = id // Ensure ID matches path

	if err := h.disc.UpdateSource(r.Context(), src); err != nil {
		h.log.Error().Err(err).Msg("update source")
		h.writeError(w, "Failed to update source", err.Error(), http.StatusBadRequest)
		return
	}

	h.publishSourceChanged(src)
	h.writeJSON(w, src, http.StatusOK)
}

// DeleteSource deletes a source along with its jobs, results, and mappings
func (h *DiscoveryHandler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.disc.DeleteSource(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Msg("delete source")
		h.writeError(w, "Failed to delete source", err.Error(), http.StatusInternalServerError)
		return
	}

	h.publishSourceChanged(map[string]any{"id": id, "deleted": true})
	w.WriteHeader(http.StatusNoContent)
}

// ScanRequest represents a scan trigger request
type ScanRequest struct {
	DryRun bool `json:"dry_run"`
}

// TriggerScan enqueues a scan job for a source
func (h *DiscoveryHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		h.writeError(w, "Runner not configured", "No scan runner is registered", http.StatusServiceUnavailable)
		return
	}

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req ScanRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}
	}

	job, err := h.runner.Enqueue(r.Context(), id, req.DryRun, h.reviewer(r))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
		case errors.Is(err, runner.ErrScanActive):
			h.writeError(w, "Scan already running", err.Error(), http.StatusConflict)
		case errors.Is(err, runner.ErrSourceDisabled):
			h.writeError(w, "Source disabled", err.Error(), http.StatusBadRequest)
		default:
			h.log.Error().Err(err).Msg("enqueue scan")
			h.writeError(w, "Failed to start scan", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, job, http.StatusAccepted)
}

// TestResponse reports the outcome of a controller connection test
type TestResponse struct {
	OK        bool `json:"ok"`
	SiteCount int  `json:"site_count"`
}

// TestSource connects to the source's controller and reports reachability
func (h *DiscoveryHandler) TestSource(w http.ResponseWriter, r *http.Request) {
	if h.tester == nil {
		h.writeError(w, "Tester not configured", "No connection tester is registered", http.StatusServiceUnavailable)
		return
	}

	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	src, err := h.disc.GetSource(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
			return
		}
		h.writeError(w, "Failed to get source", err.Error(), http.StatusInternalServerError)
		return
	}

	sites, err := h.tester.Test(r.Context(), src)
	if err != nil {
		h.writeError(w, "Connection failed", err.Error(), http.StatusBadGateway)
		return
	}

	h.writeJSON(w, TestResponse{OK: true, SiteCount: sites}, http.StatusOK)
}

// ListJobs returns recent scan jobs
func (h *DiscoveryHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.writeError(w, "Invalid limit", "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	jobs, err := h.disc.ListScanJobs(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("list jobs")
		h.writeError(w, "Failed to list jobs", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, jobs, http.StatusOK)
}

// GetJob returns a single scan job
func (h *DiscoveryHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.disc.GetScanJob(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Msg("get job")
		h.writeError(w, "Failed to get job", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, job, http.StatusOK)
}

// ListResults returns staged proposals, optionally filtered
func (h *DiscoveryHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	var f repository.ResultFilter
	q := r.URL.Query()

	if s := q.Get("source"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			h.writeError(w, "Invalid source", "source must be a numeric ID", http.StatusBadRequest)
			return
		}
		f.SourceID = id
	}
	f.JobID = q.Get("job")
	if s := q.Get("status"); s != "" {
		f.Status = domain.ResultStatus(s)
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.writeError(w, "Invalid limit", "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}

	results, err := h.disc.ListResults(r.Context(), f)
	if err != nil {
		h.log.Error().Err(err).Msg("list results")
		h.writeError(w, "Failed to list results", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, results, http.StatusOK)
}

// GetResult returns a single staged proposal
func (h *DiscoveryHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	result, err := h.disc.GetResult(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Msg("get result")
		h.writeError(w, "Failed to get result", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, result, http.StatusOK)
}

// ApproveResponse reports the object an approved proposal was applied to
type ApproveResponse struct {
	Object domain.ObjectRef `json:"object"`
}

// ApproveResult approves a pending proposal and applies it
func (h *DiscoveryHandler) ApproveResult(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	ref, err := h.review.Approve(r.Context(), id, h.reviewer(r))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
		case errors.Is(err, service.ErrAlreadyReviewed):
			h.writeError(w, "Already reviewed", err.Error(), http.StatusConflict)
		case errors.Is(err, reconcile.ErrNotApplicable):
			h.writeError(w, "Not applicable", err.Error(), http.StatusConflict)
		default:
			h.log.Error().Err(err).Int64("result", id).Msg("approve result")
			h.writeError(w, "Apply failed", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, ApproveResponse{Object: ref}, http.StatusOK)
}

// RejectResult rejects a pending proposal
func (h *DiscoveryHandler) RejectResult(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.review.Reject(r.Context(), id, h.reviewer(r)); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
		case errors.Is(err, service.ErrAlreadyReviewed):
			h.writeError(w, "Already reviewed", err.Error(), http.StatusConflict)
		default:
			h.log.Error().Err(err).Int64("result", id).Msg("reject result")
			h.writeError(w, "Failed to reject result", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// BulkRequest carries the result IDs for a bulk review action
type BulkRequest struct {
	IDs []int64 `json:"ids"`
}

// BulkApprove approves a batch of proposals best-effort
func (h *DiscoveryHandler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 {
		h.writeError(w, "IDs required", "Provide at least one result ID", http.StatusBadRequest)
		return
	}

	report := h.review.BulkApprove(r.Context(), req.IDs, h.reviewer(r))
	h.writeJSON(w, report, http.StatusOK)
}

// BulkReject rejects a batch of proposals best-effort
func (h *DiscoveryHandler) BulkReject(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 {
		h.writeError(w, "IDs required", "Provide at least one result ID", http.StatusBadRequest)
		return
	}

	report := h.review.BulkReject(r.Context(), req.IDs, h.reviewer(r))
	h.writeJSON(w, report, http.StatusOK)
}

// ListMappings returns identity mappings, optionally filtered
func (h *DiscoveryHandler) ListMappings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var sourceID int64
	if s := q.Get("source"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			h.writeError(w, "Invalid source", "source must be a numeric ID", http.StatusBadRequest)
			return
		}
		sourceID = id
	}

	var orphan *bool
	if s := q.Get("orphan"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			h.writeError(w, "Invalid orphan", "orphan must be true or false", http.StatusBadRequest)
			return
		}
		orphan = &v
	}

	mappings, err := h.disc.ListMappings(r.Context(), sourceID, orphan)
	if err != nil {
		h.log.Error().Err(err).Msg("list mappings")
		h.writeError(w, "Failed to list mappings", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, mappings, http.StatusOK)
}

// DashboardResponse summarizes the reconciliation state for the UI
type DashboardResponse struct {
	SourceCount    int              `json:"source_count"`
	PendingResults int64            `json:"pending_results"`
	OrphanMappings int64            `json:"orphan_mappings"`
	RecentJobs     []domain.ScanJob `json:"recent_jobs"`
}

// Dashboard returns counts and recent jobs for the overview page
func (h *DiscoveryHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sources, err := h.disc.ListSources(ctx)
	if err != nil {
		h.writeError(w, "Failed to build dashboard", err.Error(), http.StatusInternalServerError)
		return
	}
	pending, err := h.disc.CountPendingResults(ctx)
	if err != nil {
		h.writeError(w, "Failed to build dashboard", err.Error(), http.StatusInternalServerError)
		return
	}
	orphans, err := h.disc.CountOrphanMappings(ctx)
	if err != nil {
		h.writeError(w, "Failed to build dashboard", err.Error(), http.StatusInternalServerError)
		return
	}
	jobs, err := h.disc.ListScanJobs(ctx, 10)
	if err != nil {
		h.writeError(w, "Failed to build dashboard", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, DashboardResponse{
		SourceCount:    len(sources),
		PendingResults: pending,
		OrphanMappings: orphans,
		RecentJobs:     jobs,
	}, http.StatusOK)
}

// reviewer extracts the reviewer identity from the request header.
func (h *DiscoveryHandler) reviewer(r *http.Request) string {
	if who := r.Header.Get("X-Reviewer"); who != "" {
		return who
	}
	return "anonymous"
}

// pathID parses the numeric {id} path segment, writing a 400 on failure.
func (h *DiscoveryHandler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, "Invalid ID", "ID must be numeric", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *DiscoveryHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("encode response")
	}
}

func (h *DiscoveryHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		h.log.Error().Err(err).Msg("encode error response")
	}
}
