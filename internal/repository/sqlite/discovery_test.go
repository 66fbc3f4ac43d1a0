package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"driftsync/internal/domain"
	"driftsync/internal/repository"
)

func seedSource(t *testing.T, r *Repository, name string) *domain.DiscoverySource {
	t.Helper()
	s := &domain.DiscoverySource{
		Name:        name,
		Config:      domain.SourceConfig{"host": "udm.local", "api_mode": "token"},
		SyncDevices: true,
		SyncClients: true,
		SyncVLANs:   true,
	}
	require.NoError(t, r.CreateSource(context.Background(), s))
	return s
}

func seedJob(t *testing.T, r *Repository, sourceID int64) *domain.ScanJob {
	t.Helper()
	j := &domain.ScanJob{
		ID:       uuid.NewString(),
		SourceID: sourceID,
		Status:   domain.JobPending,
	}
	require.NoError(t, r.CreateScanJob(context.Background(), j))
	return j
}

func TestSourceRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	s := seedSource(t, r, "udm-home")
	require.NotZero(t, s.ID)
	require.Equal(t, domain.SourceActive, s.Status)

	got, err := r.GetSource(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, "udm-home", got.Name)
	require.Equal(t, "udm.local", got.Config.Str("host", ""))
	require.True(t, got.SyncDevices)
	require.Nil(t, got.LastScan)

	got.Description = "attic controller"
	got.Config["site"] = "default"
	require.NoError(t, r.UpdateSource(ctx, got))

	got, err = r.GetSource(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, "attic controller", got.Description)
	require.Equal(t, "default", got.Config.Str("site", ""))

	all, err := r.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, r.DeleteSource(ctx, s.ID))
	_, err = r.GetSource(ctx, s.ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSetSourceScanOutcome(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	s := seedSource(t, r, "udm-home")
	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, r.SetSourceScanOutcome(ctx, s.ID, at, false))

	got, err := r.GetSource(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastScan)
	require.False(t, got.LastScanSuccess)
}

func TestScanJobLifecycle(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	s := seedSource(t, r, "udm-home")
	j := seedJob(t, r, s.ID)

	started := time.Now().UTC()
	j.Status = domain.JobRunning
	j.StartedAt = &started
	require.NoError(t, r.UpdateScanJob(ctx, j))

	completed := started.Add(3 * time.Second)
	j.Status = domain.JobCompleted
	j.CompletedAt = &completed
	j.DiscoveredCount = 7
	j.CreatedCount = 2
	j.Log = "scan complete"
	require.NoError(t, r.UpdateScanJob(ctx, j))

	got, err := r.GetScanJob(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, got.Status)
	require.Equal(t, 7, got.DiscoveredCount)
	require.Equal(t, 2, got.CreatedCount)
	require.True(t, got.Terminal())

	jobs, err := r.ListScanJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
}

func TestFailStaleJobs(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	s := seedSource(t, r, "udm-home")
	now := time.Now().UTC()

	stale := seedJob(t, r, s.ID)
	staleStart := now.Add(-2 * time.Hour)
	stale.Status = domain.JobRunning
	stale.StartedAt = &staleStart
	require.NoError(t, r.UpdateScanJob(ctx, stale))

	fresh := seedJob(t, r, s.ID)
	freshStart := now.Add(-time.Minute)
	fresh.Status = domain.JobRunning
	fresh.StartedAt = &freshStart
	require.NoError(t, r.UpdateScanJob(ctx, fresh))

	n, err := r.FailStaleJobs(ctx, now.Add(-30*time.Minute), now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err := r.GetScanJob(ctx, stale.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobFailed, got.Status)
	require.NotNil(t, got.CompletedAt)

	got, err = r.GetScanJob(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobRunning, got.Status)

	// Second sweep finds nothing left to fail.
	n, err = r.FailStaleJobs(ctx, now.Add(-30*time.Minute), now)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestFailRunningJobs(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	s := seedSource(t, r, "udm-home")
	j := seedJob(t, r, s.ID)
	start := time.Now().UTC()
	j.Status = domain.JobRunning
	j.StartedAt = &start
	require.NoError(t, r.UpdateScanJob(ctx, j))

	n, err := r.FailRunningJobs(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err := r.GetScanJob(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobFailed, got.Status)
}

func stageResult(t *testing.T, r *Repository, jobID string, sourceID int64, key string) *domain.DiscoveryResult {
	t.Helper()
	res := &domain.DiscoveryResult{
		JobID:          jobID,
		SourceID:       sourceID,
		DiscoveredType: domain.TypeDevice,
		DiscoveredData: map[string]any{"name": "ap-attic", "serial": key},
		ProposedData:   map[string]any{"name": "ap-attic", "serial": key},
		Diff:           domain.Diff{},
		Status:         domain.ResultPending,
		Action:         domain.ActionCreate,
		IdentityKey:    key,
	}
	require.NoError(t, r.CreateResults(context.Background(), []*domain.DiscoveryResult{res}))
	return res
}

func TestResultsRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	s := seedSource(t, r, "udm-home")
	j := seedJob(t, r, s.ID)

	res := stageResult(t, r, j.ID, s.ID, "ABC123")
	require.NotZero(t, res.ID)

	got, err := r.GetResult(ctx, res.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ResultPending, got.Status)
	require.Equal(t, "ap-attic", got.Proposed().String("name"))
	require.Nil(t, got.Matched)

	t.Run("filter by status", func(t *testing.T) {
		list, err := r.ListResults(ctx, repository.ResultFilter{Status: domain.ResultPending})
		require.NoError(t, err)
		require.Len(t, list, 1)

		list, err = r.ListResults(ctx, repository.ResultFilter{Status: domain.ResultApproved})
		require.NoError(t, err)
		require.Empty(t, list)
	})

	t.Run("filter by job", func(t *testing.T) {
		list, err := r.ListResults(ctx, repository.ResultFilter{JobID: j.ID})
		require.NoError(t, err)
		require.Len(t, list, 1)
	})

	t.Run("matched ref persists", func(t *testing.T) {
		update := &domain.DiscoveryResult{
			JobID:          j.ID,
			SourceID:       s.ID,
			DiscoveredType: domain.TypeDevice,
			Matched:        &domain.ObjectRef{Type: domain.TypeDevice, ID: 12},
			Diff:           domain.Diff{"name": {Current: "old", Proposed: "new"}},
			Status:         domain.ResultPending,
			Action:         domain.ActionUpdate,
			IdentityKey:    "DEF456",
		}
		require.NoError(t, r.CreateResults(ctx, []*domain.DiscoveryResult{update}))

		got, err := r.GetResult(ctx, update.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Matched)
		require.Equal(t, int64(12), got.Matched.ID)
		require.Equal(t, "new", got.Diff["name"].Proposed)
	})
}

func TestClaimResult(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	s := seedSource(t, r, "udm-home")
	j := seedJob(t, r, s.ID)
	res := stageResult(t, r, j.ID, s.ID, "ABC123")

	now := time.Now().UTC()
	ok, err := r.ClaimResult(ctx, res.ID, domain.ResultApproved, "alice", now)
	require.NoError(t, err)
	require.True(t, ok)

	// Losing side of the race gets false, and the first review stands.
	ok, err = r.ClaimResult(ctx, res.ID, domain.ResultRejected, "bob", now)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := r.GetResult(ctx, res.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ResultApproved, got.Status)
	require.Equal(t, "alice", got.ReviewedBy)
	require.NotNil(t, got.ReviewedAt)

	t.Run("release restores pending", func(t *testing.T) {
		require.NoError(t, r.ReleaseResult(ctx, res.ID))
		got, err := r.GetResult(ctx, res.ID)
		require.NoError(t, err)
		require.Equal(t, domain.ResultPending, got.Status)
		require.Empty(t, got.ReviewedBy)
		require.Nil(t, got.ReviewedAt)
	})
}

func TestMappings(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	s := seedSource(t, r, "udm-home")
	now := time.Now().UTC().Truncate(time.Second)
	ref := domain.ObjectRef{Type: domain.TypeDevice, ID: 1}

	miss, err := r.GetMapping(ctx, s.ID, "ABC123")
	require.NoError(t, err)
	require.Nil(t, miss)

	require.NoError(t, r.UpsertMapping(ctx, s.ID, "ABC123", ref, now))

	m, err := r.GetMapping(ctx, s.ID, "ABC123")
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, ref, m.Object)
	require.False(t, m.IsOrphan)

	t.Run("rebind keeps one row", func(t *testing.T) {
		newRef := domain.ObjectRef{Type: domain.TypeDevice, ID: 2}
		require.NoError(t, r.UpsertMapping(ctx, s.ID, "ABC123", newRef, now.Add(time.Minute)))

		m, err := r.GetMapping(ctx, s.ID, "ABC123")
		require.NoError(t, err)
		require.Equal(t, newRef, m.Object)

		all, err := r.ListMappings(ctx, s.ID, nil)
		require.NoError(t, err)
		require.Len(t, all, 1)
	})
}

func TestUpdateOrphanFlags(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	s := seedSource(t, r, "udm-home")
	now := time.Now().UTC().Truncate(time.Second)
	ref := domain.ObjectRef{Type: domain.TypeDevice, ID: 1}

	require.NoError(t, r.UpsertMapping(ctx, s.ID, "seen-key", ref, now))
	require.NoError(t, r.UpsertMapping(ctx, s.ID, "gone-key", ref, now))

	later := now.Add(time.Hour)
	require.NoError(t, r.UpdateOrphanFlags(ctx, s.ID, []string{"seen-key"}, later))

	orphan := true
	orphans, err := r.ListMappings(ctx, s.ID, &orphan)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	require.Equal(t, "gone-key", orphans[0].IdentityKey)

	seen, err := r.GetMapping(ctx, s.ID, "seen-key")
	require.NoError(t, err)
	require.False(t, seen.IsOrphan)
	require.True(t, seen.LastSeen.After(now))

	n, err := r.CountOrphanMappings(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	t.Run("reappearing key clears orphan", func(t *testing.T) {
		require.NoError(t, r.UpdateOrphanFlags(ctx, s.ID, []string{"seen-key", "gone-key"}, later.Add(time.Hour)))
		m, err := r.GetMapping(ctx, s.ID, "gone-key")
		require.NoError(t, err)
		require.False(t, m.IsOrphan)
	})

	t.Run("empty scan orphans everything", func(t *testing.T) {
		require.NoError(t, r.UpdateOrphanFlags(ctx, s.ID, nil, later.Add(2*time.Hour)))
		n, err := r.CountOrphanMappings(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 2, n)
	})
}

func TestCountPendingResults(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	s := seedSource(t, r, "udm-home")
	j := seedJob(t, r, s.ID)
	stageResult(t, r, j.ID, s.ID, "A")
	res := stageResult(t, r, j.ID, s.ID, "B")

	n, err := r.CountPendingResults(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	_, err = r.ClaimResult(ctx, res.ID, domain.ResultRejected, "alice", time.Now().UTC())
	require.NoError(t, err)

	n, err = r.CountPendingResults(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestUpdateOrphanFlagsLargeSeenSet(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	s := seedSource(t, r, "udm-home")
	ref := domain.ObjectRef{Type: domain.TypeDevice, ID: 1}

	// Enough keys to span several placeholder chunks.
	keys := make([]string, 0, seenChunkSize*2+200)
	for i := 0; i < cap(keys); i++ {
		key := fmt.Sprintf("SER%05d", i)
		keys = append(keys, key)
		require.NoError(t, r.UpsertMapping(ctx, s.ID, key, ref, time.Now().UTC()))
	}

	// Everything except the last key is re-observed.
	require.NoError(t, r.UpdateOrphanFlags(ctx, s.ID, keys[:len(keys)-1], time.Now().UTC()))

	orphan := true
	orphans, err := r.ListMappings(ctx, s.ID, &orphan)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	require.Equal(t, keys[len(keys)-1], orphans[0].IdentityKey)

	live := false
	cleared, err := r.ListMappings(ctx, s.ID, &live)
	require.NoError(t, err)
	require.Len(t, cleared, len(keys)-1)
}
