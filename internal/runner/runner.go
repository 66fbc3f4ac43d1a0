// Package runner owns the scan job state machine: pending -> running ->
// completed|failed, one-way. It is the only writer of job status and of the
// source's last-scan fields.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"driftsync/internal/domain"
	"driftsync/internal/reconcile"
	"driftsync/internal/repository"
	"driftsync/internal/scanner"
	"driftsync/internal/service"
)

// ErrScanActive is returned when a scan is enqueued for a source that
// already has one in flight. Overlapping passes on the same source would
// race on mapping rows and corrupt orphan bookkeeping.
var ErrScanActive = errors.New("a scan is already active for this source")

// ErrSourceDisabled is returned when a disabled source is scanned.
var ErrSourceDisabled = errors.New("source is disabled")

// Options tune the runner's background behaviour.
type Options struct {
	// MaxRuntime is the staleness threshold: a job running longer than
	// this is force-failed by the sweep. Zero means 30 minutes.
	MaxRuntime time.Duration
}

func (o Options) maxRuntime() time.Duration {
	if o.MaxRuntime <= 0 {
		return 30 * time.Minute
	}
	return o.MaxRuntime
}

// Runner executes scans and keeps job state honest.
type Runner struct {
	scan   *scanner.Scanner
	rec    *reconcile.Reconciler
	disc   repository.Discovery
	events *service.EventBus
	log    zerolog.Logger
	opts   Options

	mu     sync.Mutex
	active map[int64]bool
	wg     sync.WaitGroup
}

// New builds a Runner.
func New(scan *scanner.Scanner, rec *reconcile.Reconciler, disc repository.Discovery, events *service.EventBus, log zerolog.Logger, opts Options) *Runner {
	return &Runner{
		scan:   scan,
		rec:    rec,
		disc:   disc,
		events: events,
		log:    log.With().Str("component", "runner").Logger(),
		opts:   opts,
		active: make(map[int64]bool),
	}
}

// Enqueue admits and starts one scan for a source, returning the created
// job. At most one scan per source may be in flight; a second enqueue
// returns ErrScanActive. The scan itself runs in the background.
func (r *Runner) Enqueue(ctx context.Context, sourceID int64, dryRun bool, initiator string) (*domain.ScanJob, error) {
	src, err := r.disc.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if src.Status != domain.SourceActive {
		return nil, fmt.Errorf("source %q: %w", src.Name, ErrSourceDisabled)
	}

	if !r.admit(src.ID) {
		return nil, fmt.Errorf("source %q: %w", src.Name, ErrScanActive)
	}

	job := &domain.ScanJob{
		ID:        uuid.NewString(),
		SourceID:  src.ID,
		Status:    domain.JobPending,
		DryRun:    dryRun,
		Initiator: initiator,
	}
	if err := r.disc.CreateScanJob(ctx, job); err != nil {
		r.release(src.ID)
		return nil, fmt.Errorf("create scan job: %w", err)
	}

	r.events.Publish(service.Event{Type: service.EventScanQueued, Payload: job})
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release(src.ID)
		r.run(src, job)
	}()
	return job, nil
}

func (r *Runner) admit(sourceID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[sourceID] {
		return false
	}
	r.active[sourceID] = true
	return true
}

func (r *Runner) release(sourceID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, sourceID)
}

// Wait blocks until all in-flight scans have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// run executes one scan end to end. The whole scan is a single unit of
// work: any failure discards in-flight results and marks the job failed.
func (r *Runner) run(src *domain.DiscoverySource, job *domain.ScanJob) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.maxRuntime())
	defer cancel()

	now := time.Now().UTC()
	job.Status = domain.JobRunning
	job.StartedAt = &now
	if err := r.disc.UpdateScanJob(ctx, job); err != nil {
		r.fail(src, job, fmt.Errorf("mark job running: %w", err))
		return
	}
	r.events.Publish(service.Event{Type: service.EventScanStarted, Payload: job})

	if err := r.execute(ctx, src, job); err != nil {
		r.fail(src, job, err)
		return
	}
	r.complete(src, job)
}

// bookkeepingCtx returns a fresh context for terminal job writes. The
// scan's own context may already be expired when the scan failed on its
// deadline; the failed-state bookkeeping must still land.
func bookkeepingCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func (r *Runner) execute(ctx context.Context, src *domain.DiscoverySource, job *domain.ScanJob) error {
	objects, err := r.scan.Scan(ctx, src)
	if err != nil {
		return err
	}
	job.DiscoveredCount = len(objects)

	results, err := r.rec.Reconcile(ctx, src, job, objects, job.DryRun)
	if err != nil {
		return err
	}
	for _, res := range results {
		switch res.Action {
		case domain.ActionCreate:
			job.CreatedCount++
		case domain.ActionUpdate:
			job.UpdatedCount++
		}
	}

	job.Log = fmt.Sprintf("discovered %d objects, staged %d proposals (%d create, %d update)",
		job.DiscoveredCount, len(results), job.CreatedCount, job.UpdatedCount)
	return nil
}

func (r *Runner) complete(src *domain.DiscoverySource, job *domain.ScanJob) {
	ctx, cancel := bookkeepingCtx()
	defer cancel()

	now := time.Now().UTC()
	job.Status = domain.JobCompleted
	job.CompletedAt = &now
	if err := r.disc.UpdateScanJob(ctx, job); err != nil {
		r.log.Error().Err(err).Str("job", job.ID).Msg("mark job completed")
	}
	if err := r.disc.SetSourceScanOutcome(ctx, src.ID, now, true); err != nil {
		r.log.Error().Err(err).Str("source", src.Name).Msg("record scan outcome")
	}
	r.events.Publish(service.Event{Type: service.EventScanCompleted, Payload: job})
	r.log.Info().Str("source", src.Name).Str("job", job.ID).
		Int("discovered", job.DiscoveredCount).Msg("scan completed")
}

func (r *Runner) fail(src *domain.DiscoverySource, job *domain.ScanJob, cause error) {
	ctx, cancel := bookkeepingCtx()
	defer cancel()

	now := time.Now().UTC()
	job.Status = domain.JobFailed
	job.CompletedAt = &now
	job.ErrorCount++
	job.Log = cause.Error()
	if err := r.disc.UpdateScanJob(ctx, job); err != nil {
		r.log.Error().Err(err).Str("job", job.ID).Msg("mark job failed")
	}
	if err := r.disc.SetSourceScanOutcome(ctx, src.ID, now, false); err != nil {
		r.log.Error().Err(err).Str("source", src.Name).Msg("record scan outcome")
	}
	r.events.Publish(service.Event{Type: service.EventScanFailed, Payload: job})
	r.log.Error().Err(cause).Str("source", src.Name).Str("job", job.ID).Msg("scan failed")
}
