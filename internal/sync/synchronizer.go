package sync

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ferryline/ferryline-api/internal/models"
	"github.com/ferryline/ferryline-api/internal/transfer"
)

// Fetcher is the slice of the transfer client the synchronizer needs.
type Fetcher interface {
	ListJobs(ctx context.Context) ([]transfer.RawJob, error)
	ActiveTransfer(ctx context.Context, jobID string) (*transfer.RawTransfer, error)
}

// HistoryStore persists reconciled records idempotently by (user, job).
type HistoryStore interface {
	Upsert(ctx context.Context, rec models.HistoryRecord) error
}

// TransitionHandler receives detected status transitions. Implementations
// must be best-effort: errors are their own to log and swallow.
type TransitionHandler interface {
	HandleTransition(ctx context.Context, userID string, transition models.Reconciled)
}

type Options struct {
	PollInterval     time.Duration
	RequestTimeout   time.Duration
	TickBudget       time.Duration
	FetchConcurrency int
}

func (o *Options) fill() {
	if o.PollInterval <= 0 {
		o.PollInterval = 15 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 5 * time.Second
	}
	if o.TickBudget <= 0 {
		o.TickBudget = 30 * time.Second
	}
	if o.FetchConcurrency <= 0 {
		o.FetchConcurrency = 4
	}
}

// snapshot is the per-job state diffed between ticks.
type snapshot struct {
	status      models.TransferStatus
	transferred int64
	remaining   int64
}

// TickResult is the outcome of one fetch-normalize-diff-emit cycle.
type TickResult struct {
	Jobs        []models.Job
	Transitions []models.Reconciled
}

// Synchronizer mirrors upstream job status into the history store for one
// user and emits transition events. The last-seen map is private to the
// instance and only touched by its own tick, which never overlaps the
// next: Run executes ticks strictly sequentially.
type Synchronizer struct {
	userID  string
	fetcher Fetcher
	store   HistoryStore
	handler TransitionHandler
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time

	lastSeen map[string]snapshot
}

func NewSynchronizer(userID string, fetcher Fetcher, store HistoryStore, handler TransitionHandler, opts Options, logger zerolog.Logger) *Synchronizer {
	opts.fill()
	return &Synchronizer{
		userID:   userID,
		fetcher:  fetcher,
		store:    store,
		handler:  handler,
		opts:     opts,
		logger:   logger.With().Str("component", "synchronizer").Str("user_id", userID).Logger(),
		now:      time.Now,
		lastSeen: make(map[string]snapshot),
	}
}

// Run drives the polling loop until ctx is cancelled. A tick that fails
// (auth failure, cancelled budget) is logged and retried on the next beat.
func (s *Synchronizer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.opts.PollInterval).Msg("synchronizer started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("synchronizer stopped")
			return ctx.Err()
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, s.opts.TickBudget)
			if _, err := s.Tick(tickCtx); err != nil {
				s.logger.Error().Err(err).Msg("tick failed")
			}
			cancel()
		}
	}
}

// Tick runs one fetch-normalize-diff-emit cycle. All fetches resolve (or
// fail per job) before any state is committed, so a cancelled tick
// discards its partial results: the last-seen map and the store are only
// written in the commit phase.
func (s *Synchronizer) Tick(ctx context.Context) (TickResult, error) {
	var result TickResult

	listCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	rawJobs, err := s.fetcher.ListJobs(listCtx)
	cancel()
	if err != nil {
		return result, errors.Wrap(err, "list jobs")
	}

	type observation struct {
		raw      transfer.RawJob
		detail   *transfer.RawTransfer
		status   models.TransferStatus
		fetchErr error
	}

	observations := make([]observation, len(rawJobs))
	for i, raw := range rawJobs {
		observations[i] = observation{raw: raw, status: transfer.Normalize(raw)}
	}

	// Detail fetches run with bounded parallelism; each writes only its
	// own slot. A per-job failure is recorded, not propagated.
	g, fetchCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.FetchConcurrency)
	for i := range observations {
		if observations[i].status != models.StatusInProgress {
			continue
		}
		obs := &observations[i]
		g.Go(func() error {
			reqCtx, cancel := context.WithTimeout(fetchCtx, s.opts.RequestTimeout)
			defer cancel()
			detail, err := s.fetcher.ActiveTransfer(reqCtx, obs.raw.JobID)
			if err != nil {
				if fetchCtx.Err() != nil {
					return fetchCtx.Err()
				}
				obs.fetchErr = err
				return nil
			}
			obs.detail = detail
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, errors.Wrap(err, "tick cancelled")
	}
	if err := ctx.Err(); err != nil {
		return result, errors.Wrap(err, "tick cancelled")
	}

	// Commit phase: diff, upsert, emit, in fetch order.
	now := s.now()
	listed := make(map[string]struct{}, len(observations))
	for _, obs := range observations {
		listed[obs.raw.JobID] = struct{}{}
	}
	for _, obs := range observations {
		if obs.fetchErr != nil {
			s.logger.Error().Err(obs.fetchErr).Str("job_id", obs.raw.JobID).Msg("transfer detail fetch failed")
			job := transfer.JobFromRaw(obs.raw, nil, now)
			job.Status = models.StatusUnknown
			result.Jobs = append(result.Jobs, job)
			continue
		}

		job := transfer.JobFromRaw(obs.raw, obs.detail, now)
		result.Jobs = append(result.Jobs, job)

		next := snapshot{status: job.Status}
		if job.Progress != nil {
			next.transferred = job.Progress.FilesTransferred
			next.remaining = job.Progress.FilesRemaining
		}

		prev, seen := s.lastSeen[job.ID]
		if seen && prev == next {
			continue
		}

		record := s.record(job, prev.status, now)
		if err := s.store.Upsert(ctx, record); err != nil {
			// Isolated: remaining jobs still commit. Leaving the
			// last-seen entry untouched retries this one next tick.
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("history upsert failed")
			continue
		}
		s.lastSeen[job.ID] = next

		if seen && prev.status != job.Status {
			transition := models.Reconciled{
				JobID:    job.ID,
				Previous: prev.status,
				New:      job.Status,
				Record:   record,
			}
			result.Transitions = append(result.Transitions, transition)
			if s.handler != nil {
				s.handler.HandleTransition(ctx, s.userID, transition)
			}
		}
	}

	// Jobs deleted upstream leave the diff state, so a later reuse of the
	// same id is treated as a first observation rather than diffed against
	// a stale status.
	for id := range s.lastSeen {
		if _, ok := listed[id]; !ok {
			delete(s.lastSeen, id)
		}
	}
	return result, nil
}

func (s *Synchronizer) record(job models.Job, prev models.TransferStatus, now time.Time) models.HistoryRecord {
	rec := models.HistoryRecord{
		UserID:         s.userID,
		JobID:          job.ID,
		Name:           job.Name,
		Status:         job.Status,
		Source:         job.SourceRef,
		Destination:    job.DestinationRef,
		CreatedOn:      now,
		LastModifiedOn: now,
	}
	if job.Progress != nil {
		rec.TotalBytes = job.Progress.TotalBytes
		rec.TotalFiles = job.Progress.TotalFiles
	}
	if job.Status == models.StatusCompleted && prev != models.StatusCompleted {
		completed := now
		rec.CompletedOn = &completed
	}
	return rec
}
