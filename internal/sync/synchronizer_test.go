package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferryline/ferryline-api/internal/models"
	"github.com/ferryline/ferryline-api/internal/transfer"
)

type fakeFetcher struct {
	mu        sync.Mutex
	jobs      []transfer.RawJob
	details   map[string]*transfer.RawTransfer
	detailErr map[string]error
	listErr   error
	blockOn   chan struct{} // when set, ActiveTransfer blocks until ctx is done
}

func (f *fakeFetcher) setJobs(jobs ...transfer.RawJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = jobs
}

func (f *fakeFetcher) ListJobs(ctx context.Context) ([]transfer.RawJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]transfer.RawJob(nil), f.jobs...), nil
}

func (f *fakeFetcher) ActiveTransfer(ctx context.Context, jobID string) (*transfer.RawTransfer, error) {
	f.mu.Lock()
	block := f.blockOn
	err := f.detailErr[jobID]
	detail := f.details[jobID]
	f.mu.Unlock()

	if block != nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return detail, nil
}

type fakeStore struct {
	mu      sync.Mutex
	records map[string]models.HistoryRecord
	upserts int
	failFor map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]models.HistoryRecord), failFor: make(map[string]error)}
}

func (s *fakeStore) Upsert(ctx context.Context, rec models.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if err := s.failFor[rec.JobID]; err != nil {
		return err
	}
	if existing, ok := s.records[rec.JobID]; ok {
		rec.CreatedOn = existing.CreatedOn
		if existing.CompletedOn != nil {
			rec.CompletedOn = existing.CompletedOn
		}
	}
	s.records[rec.JobID] = rec
	return nil
}

type fakeHandler struct {
	mu          sync.Mutex
	transitions []models.Reconciled
}

func (h *fakeHandler) HandleTransition(ctx context.Context, userID string, t models.Reconciled) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transitions = append(h.transitions, t)
}

func rawJob(id, state string) transfer.RawJob {
	return transfer.RawJob{
		JobID:    id,
		Name:     "job " + id,
		Triggers: []transfer.RawTrigger{{Monitor: &transfer.RawMonitor{Status: transfer.RawStatus{State: state}}}},
	}
}

func newTestSynchronizer(f *fakeFetcher, s *fakeStore, h *fakeHandler) *Synchronizer {
	return NewSynchronizer("user-1", f, s, h, Options{}, zerolog.Nop())
}

func TestTick_FirstObservationCreatesRecordWithoutTransition(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.setJobs(rawJob("a", "READY"))
	store := newFakeStore()
	handler := &fakeHandler{}
	s := newTestSynchronizer(fetcher, store, handler)

	result, err := s.Tick(context.Background())
	require.NoError(t, err)

	assert.Empty(t, result.Transitions)
	assert.Empty(t, handler.transitions)
	require.Contains(t, store.records, "a")
	assert.Equal(t, models.StatusReady, store.records["a"].Status)
	assert.Equal(t, "user-1", store.records["a"].UserID)
}

func TestTick_EmitsExactlyOneTransitionPerStatusChange(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.setJobs(rawJob("x", "READY"), rawJob("y", "READY"))
	store := newFakeStore()
	handler := &fakeHandler{}
	s := newTestSynchronizer(fetcher, store, handler)

	_, err := s.Tick(context.Background())
	require.NoError(t, err)

	// x starts transferring, y is unchanged.
	fetcher.setJobs(rawJob("x", "IN_PROGRESS"), rawJob("y", "READY"))
	result, err := s.Tick(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Transitions, 1)
	tr := result.Transitions[0]
	assert.Equal(t, "x", tr.JobID)
	assert.Equal(t, models.StatusReady, tr.Previous)
	assert.Equal(t, models.StatusInProgress, tr.New)
	require.Len(t, handler.transitions, 1)

	// A third identical tick emits nothing.
	result, err = s.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Transitions)
	require.Len(t, handler.transitions, 1)
}

func TestTick_RemovedJobLeavesDiffStateAndReappearsAsNew(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.setJobs(rawJob("a", "IN_PROGRESS"), rawJob("b", "READY"))
	store := newFakeStore()
	handler := &fakeHandler{}
	s := newTestSynchronizer(fetcher, store, handler)

	_, err := s.Tick(context.Background())
	require.NoError(t, err)
	require.Contains(t, s.lastSeen, "a")

	// a is deleted upstream; its diff state must go with it.
	fetcher.setJobs(rawJob("b", "READY"))
	_, err = s.Tick(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, s.lastSeen, "a")
	assert.Contains(t, s.lastSeen, "b")

	// A reused id is a first observation: persisted, but no transition
	// against the stale IN_PROGRESS status.
	fetcher.setJobs(rawJob("a", "COMPLETED"), rawJob("b", "READY"))
	result, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Transitions)
	assert.Empty(t, handler.transitions)
	assert.Equal(t, models.StatusCompleted, store.records["a"].Status)
}

func TestTick_PartialFailureIsolation(t *testing.T) {
	fetcher := &fakeFetcher{
		details: map[string]*transfer.RawTransfer{
			"a": {JobID: "a", Transferred: transfer.RawCounter{Count: 1}, Remaining: transfer.RawCounter{Count: 1}},
		},
		detailErr: map[string]error{
			"b": &transfer.UpstreamError{JobID: "b", StatusCode: 500, Body: "boom"},
		},
	}
	fetcher.setJobs(rawJob("a", "IN_PROGRESS"), rawJob("b", "IN_PROGRESS"), rawJob("c", "COMPLETED"))
	store := newFakeStore()
	handler := &fakeHandler{}
	s := newTestSynchronizer(fetcher, store, handler)

	// Seed last-seen state so a and c produce transitions next tick.
	s.lastSeen["a"] = snapshot{status: models.StatusReady}
	s.lastSeen["c"] = snapshot{status: models.StatusInProgress}

	result, err := s.Tick(context.Background())
	require.NoError(t, err)

	// b is reported UNKNOWN, not persisted, and emits no transition.
	require.Len(t, result.Jobs, 3)
	var bJob models.Job
	for _, j := range result.Jobs {
		if j.ID == "b" {
			bJob = j
		}
	}
	assert.Equal(t, models.StatusUnknown, bJob.Status)
	assert.NotContains(t, store.records, "b")

	// a and c still commit and emit.
	require.Len(t, result.Transitions, 2)
	assert.Equal(t, "a", result.Transitions[0].JobID)
	assert.Equal(t, "c", result.Transitions[1].JobID)
	assert.Contains(t, store.records, "a")
	assert.Contains(t, store.records, "c")
}

func TestTick_UnchangedDetailFailureRetriesNextTick(t *testing.T) {
	fetcher := &fakeFetcher{
		detailErr: map[string]error{"b": errors.New("timeout")},
	}
	fetcher.setJobs(rawJob("b", "IN_PROGRESS"))
	store := newFakeStore()
	s := newTestSynchronizer(fetcher, store, &fakeHandler{})

	_, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.lastSeen, "failed job must not enter the last-seen map")

	// Next tick the fetch succeeds and the job is committed normally.
	fetcher.mu.Lock()
	delete(fetcher.detailErr, "b")
	fetcher.details = map[string]*transfer.RawTransfer{"b": {JobID: "b"}}
	fetcher.mu.Unlock()

	_, err = s.Tick(context.Background())
	require.NoError(t, err)
	assert.Contains(t, store.records, "b")
}

func TestTick_UpsertFailureIsolatedAndRetried(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.setJobs(rawJob("a", "READY"), rawJob("b", "READY"))
	store := newFakeStore()
	store.failFor["a"] = errors.New("connection refused")
	handler := &fakeHandler{}
	s := newTestSynchronizer(fetcher, store, handler)

	_, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, store.records, "a")
	assert.Contains(t, store.records, "b")
	assert.NotContains(t, s.lastSeen, "a")

	// After the store recovers, the next tick persists a.
	store.mu.Lock()
	delete(store.failFor, "a")
	store.mu.Unlock()

	_, err = s.Tick(context.Background())
	require.NoError(t, err)
	assert.Contains(t, store.records, "a")
}

func TestTick_CancellationDiscardsPartialResults(t *testing.T) {
	fetcher := &fakeFetcher{blockOn: make(chan struct{})}
	fetcher.setJobs(rawJob("a", "IN_PROGRESS"), rawJob("b", "READY"))
	store := newFakeStore()
	s := newTestSynchronizer(fetcher, store, &fakeHandler{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.Tick(ctx)
	require.Error(t, err)
	assert.Zero(t, store.upserts, "cancelled tick must not commit partial results")
	assert.Empty(t, s.lastSeen)
}

func TestTick_ListFailureAbortsTick(t *testing.T) {
	fetcher := &fakeFetcher{listErr: &transfer.AuthError{StatusCode: 401, Body: "expired"}}
	store := newFakeStore()
	s := newTestSynchronizer(fetcher, store, &fakeHandler{})

	_, err := s.Tick(context.Background())
	require.Error(t, err)

	var authErr *transfer.AuthError
	assert.ErrorAs(t, err, &authErr)
	assert.Zero(t, store.upserts)
}

func TestTick_CompletedOnSetOnTransitionToCompleted(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.setJobs(rawJob("a", "IN_PROGRESS"))
	store := newFakeStore()
	handler := &fakeHandler{}
	s := newTestSynchronizer(fetcher, store, handler)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, err := s.Tick(context.Background())
	require.NoError(t, err)
	require.Nil(t, store.records["a"].CompletedOn)

	now = now.Add(time.Minute)
	fetcher.setJobs(rawJob("a", "COMPLETED"))
	result, err := s.Tick(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Transitions, 1)
	require.NotNil(t, store.records["a"].CompletedOn)
	assert.Equal(t, now, *store.records["a"].CompletedOn)
}

func TestTick_ProgressChangeUpsertsWithoutTransition(t *testing.T) {
	fetcher := &fakeFetcher{
		details: map[string]*transfer.RawTransfer{
			"a": {JobID: "a", Transferred: transfer.RawCounter{Count: 10}, Remaining: transfer.RawCounter{Count: 90}},
		},
	}
	fetcher.setJobs(rawJob("a", "IN_PROGRESS"))
	store := newFakeStore()
	s := newTestSynchronizer(fetcher, store, &fakeHandler{})

	_, err := s.Tick(context.Background())
	require.NoError(t, err)
	firstUpserts := store.upserts

	// Counters advance: record is refreshed but no transition fires.
	fetcher.mu.Lock()
	fetcher.details["a"] = &transfer.RawTransfer{JobID: "a", Transferred: transfer.RawCounter{Count: 50}, Remaining: transfer.RawCounter{Count: 50}}
	fetcher.mu.Unlock()

	result, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Transitions)
	assert.Equal(t, firstUpserts+1, store.upserts)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	fetcher := &fakeFetcher{}
	s := NewSynchronizer("user-1", fetcher, newFakeStore(), &fakeHandler{}, Options{PollInterval: 10 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("synchronizer did not stop after cancellation")
	}
}
