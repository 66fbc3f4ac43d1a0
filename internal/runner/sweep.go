package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"driftsync/internal/domain"
)

// SweepStale force-fails jobs stuck in running longer than the staleness
// threshold. Crashed workers never reach a terminal state on their own;
// the sweep is their recovery path. Idempotent.
func (r *Runner) SweepStale(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	n, err := r.disc.FailStaleJobs(ctx, now.Add(-r.opts.maxRuntime()), now)
	if err != nil {
		return 0, fmt.Errorf("sweep stale jobs: %w", err)
	}
	if n > 0 {
		r.log.Warn().Int64("failed", n).Msg("swept stale jobs")
	}
	return n, nil
}

// ReapOrphaned fails every job left in running state, regardless of age.
// Run once at process start: any running job at that point belongs to a
// previous, abnormally terminated process.
func (r *Runner) ReapOrphaned(ctx context.Context) error {
	n, err := r.disc.FailRunningJobs(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reap orphaned jobs: %w", err)
	}
	if n > 0 {
		r.log.Warn().Int64("failed", n).Msg("failed jobs left running by a previous process")
	}
	return nil
}

// AutoScanTick enqueues a scan for every active source whose scan interval
// has elapsed. Sources with interval 0 are manual-only. A source that is
// already scanning is skipped silently.
func (r *Runner) AutoScanTick(ctx context.Context) error {
	sources, err := r.disc.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	now := time.Now().UTC()
	for i := range sources {
		src := &sources[i]
		if src.Status != domain.SourceActive || src.ScanInterval <= 0 {
			continue
		}
		if src.LastScan != nil && now.Sub(*src.LastScan) < time.Duration(src.ScanInterval)*time.Minute {
			continue
		}
		if _, err := r.Enqueue(ctx, src.ID, false, "scheduler"); err != nil {
			if errors.Is(err, ErrScanActive) {
				continue
			}
			r.log.Error().Err(err).Str("source", src.Name).Msg("auto-scan enqueue failed")
		}
	}
	return nil
}

// Schedule registers the background sweep and the auto-scan tick on a cron
// scheduler. The caller starts and stops the scheduler.
func (r *Runner) Schedule(c *cron.Cron, sweepEvery, tickEvery time.Duration) error {
	if sweepEvery <= 0 {
		sweepEvery = 5 * time.Minute
	}
	if tickEvery <= 0 {
		tickEvery = time.Minute
	}

	if _, err := c.AddFunc(fmt.Sprintf("@every %s", sweepEvery), func() {
		if _, err := r.SweepStale(context.Background()); err != nil {
			r.log.Error().Err(err).Msg("stale sweep")
		}
	}); err != nil {
		return fmt.Errorf("schedule stale sweep: %w", err)
	}

	if _, err := c.AddFunc(fmt.Sprintf("@every %s", tickEvery), func() {
		if err := r.AutoScanTick(context.Background()); err != nil {
			r.log.Error().Err(err).Msg("auto-scan tick")
		}
	}); err != nil {
		return fmt.Errorf("schedule auto-scan tick: %w", err)
	}
	return nil
}
