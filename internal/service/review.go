package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"driftsync/internal/domain"
	"driftsync/internal/reconcile"
	"driftsync/internal/repository"
)

// ErrAlreadyReviewed is returned when a review action loses the race: the
// result left pending before this actor's transition landed.
var ErrAlreadyReviewed = errors.New("result already reviewed")

// Review owns the proposal review lifecycle. Status transitions are
// compare-and-set on pending, making concurrent reviews of the same result
// at-most-once.
type Review struct {
	disc   repository.Discovery
	app    *reconcile.Applier
	events *EventBus
	log    zerolog.Logger
}

// NewReview builds a Review service.
func NewReview(disc repository.Discovery, app *reconcile.Applier, events *EventBus, log zerolog.Logger) *Review {
	return &Review{
		disc:   disc,
		app:    app,
		events: events,
		log:    log.With().Str("component", "review").Logger(),
	}
}

// Approve transitions a pending result to approved and applies it,
// returning the bound object. If the apply fails the status is rolled back
// to pending so the proposal stays actionable; the two steps are
// independently retryable by design.
func (s *Review) Approve(ctx context.Context, resultID int64, reviewer string) (domain.ObjectRef, error) {
	res, err := s.disc.GetResult(ctx, resultID)
	if err != nil {
		return domain.ObjectRef{}, err
	}
	src, err := s.disc.GetSource(ctx, res.SourceID)
	if err != nil {
		return domain.ObjectRef{}, err
	}

	now := time.Now().UTC()
	claimed, err := s.disc.ClaimResult(ctx, resultID, domain.ResultApproved, reviewer, now)
	if err != nil {
		return domain.ObjectRef{}, fmt.Errorf("claim result %d: %w", resultID, err)
	}
	if !claimed {
		return domain.ObjectRef{}, fmt.Errorf("result %d: %w", resultID, ErrAlreadyReviewed)
	}
	res.Status = domain.ResultApproved
	res.ReviewedBy = reviewer
	res.ReviewedAt = &now

	ref, err := s.app.Apply(ctx, src, res)
	if err != nil {
		if relErr := s.disc.ReleaseResult(ctx, resultID); relErr != nil {
			s.log.Error().Err(relErr).Int64("result", resultID).Msg("release claimed result")
		}
		return domain.ObjectRef{}, fmt.Errorf("apply result %d (%s, key %s): %w",
			resultID, src.Name, res.IdentityKey, err)
	}

	s.events.Publish(Event{Type: EventResultApproved, Payload: res})
	s.log.Info().Int64("result", resultID).Str("reviewer", reviewer).
		Stringer("object", ref).Msg("result approved and applied")
	return ref, nil
}

// Reject transitions a pending result to rejected.
func (s *Review) Reject(ctx context.Context, resultID int64, reviewer string) error {
	claimed, err := s.disc.ClaimResult(ctx, resultID, domain.ResultRejected, reviewer, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("claim result %d: %w", resultID, err)
	}
	if !claimed {
		return fmt.Errorf("result %d: %w", resultID, ErrAlreadyReviewed)
	}

	s.events.Publish(Event{Type: EventResultRejected, Payload: resultID})
	s.log.Info().Int64("result", resultID).Str("reviewer", reviewer).Msg("result rejected")
	return nil
}

// BulkFailure records one failed item in a bulk review.
type BulkFailure struct {
	ResultID int64  `json:"result_id"`
	Error    string `json:"error"`
}

// BulkReport aggregates a best-effort bulk review: succeeded count plus
// per-item failure detail. Failures are never silently dropped.
type BulkReport struct {
	Succeeded int           `json:"succeeded"`
	Failed    []BulkFailure `json:"failed,omitempty"`
}

// BulkApprove approves each result independently; a failure on one item
// does not abort the batch.
func (s *Review) BulkApprove(ctx context.Context, ids []int64, reviewer string) BulkReport {
	var report BulkReport
	for _, id := range ids {
		if _, err := s.Approve(ctx, id, reviewer); err != nil {
			report.Failed = append(report.Failed, BulkFailure{ResultID: id, Error: err.Error()})
			continue
		}
		report.Succeeded++
	}
	return report
}

// BulkReject rejects each result independently.
func (s *Review) BulkReject(ctx context.Context, ids []int64, reviewer string) BulkReport {
	var report BulkReport
	for _, id := range ids {
		if err := s.Reject(ctx, id, reviewer); err != nil {
			report.Failed = append(report.Failed, BulkFailure{ResultID: id, Error: err.Error()})
			continue
		}
		report.Succeeded++
	}
	return report
}
