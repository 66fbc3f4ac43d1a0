// Package reconcile is the reconciliation engine: matching discovered
// objects against the system of record, computing minimal diffs, staging
// reviewable proposals, applying approved proposals, and maintaining the
// identity-mapping table with orphan tracking.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"driftsync/internal/domain"
	"driftsync/internal/repository"
)

// Reconciler runs one reconciliation pass over a scan's discovered set.
type Reconciler struct {
	inv  repository.Inventory
	disc repository.Discovery
	log  zerolog.Logger
}

// NewReconciler builds a Reconciler.
func NewReconciler(inv repository.Inventory, disc repository.Discovery, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		inv:  inv,
		disc: disc,
		log:  log.With().Str("component", "reconcile").Logger(),
	}
}

// Reconcile matches and diffs every discovered object, persisting and
// returning the staged proposals. A matched object with an empty diff
// yields no result at all. After the pass it recomputes orphan state for
// every mapping of the source from the scan's observed identity-key set.
// With dryRun set the pass still computes everything but persists nothing.
//
// Any store failure aborts the whole pass; there is no partial-success
// commit mid-scan.
func (r *Reconciler) Reconcile(ctx context.Context, src *domain.DiscoverySource, job *domain.ScanJob, objects []domain.DiscoveredObject, dryRun bool) ([]*domain.DiscoveryResult, error) {
	matcher := NewMatcher(r.inv, r.disc, src.ID)
	differ := NewDiffer(r.inv)

	var results []*domain.DiscoveryResult
	seen := make([]string, 0, len(objects))

	for _, obj := range objects {
		seen = append(seen, obj.IdentityKey)

		existing, ref, err := matcher.Find(ctx, obj)
		if err != nil {
			return nil, err
		}

		if existing == nil {
			results = append(results, &domain.DiscoveryResult{
				JobID:          job.ID,
				SourceID:       src.ID,
				DiscoveredType: obj.Type,
				DiscoveredData: obj.Raw,
				ProposedData:   obj.Data,
				Diff:           domain.Diff{},
				Status:         domain.ResultPending,
				Action:         domain.ActionCreate,
				IdentityKey:    obj.IdentityKey,
			})
			continue
		}

		diff, err := differ.Diff(ctx, existing, obj)
		if err != nil {
			return nil, err
		}
		if len(diff) == 0 {
			continue
		}
		results = append(results, &domain.DiscoveryResult{
			JobID:          job.ID,
			SourceID:       src.ID,
			DiscoveredType: obj.Type,
			DiscoveredData: obj.Raw,
			ProposedData:   obj.Data,
			Matched:        ref,
			Diff:           diff,
			Status:         domain.ResultPending,
			Action:         domain.ActionUpdate,
			IdentityKey:    obj.IdentityKey,
		})
	}

	if !dryRun {
		// Results land before the orphan pass: a persist failure must leave
		// the source's mappings exactly as they were before the scan.
		if err := r.disc.CreateResults(ctx, results); err != nil {
			return nil, fmt.Errorf("persist results: %w", err)
		}
		if err := r.disc.UpdateOrphanFlags(ctx, src.ID, seen, time.Now().UTC()); err != nil {
			return nil, fmt.Errorf("update orphan flags for source %q: %w", src.Name, err)
		}
	}

	r.log.Info().Str("source", src.Name).
		Int("discovered", len(objects)).Int("staged", len(results)).Bool("dry_run", dryRun).
		Msg("reconciliation pass complete")
	return results, nil
}
