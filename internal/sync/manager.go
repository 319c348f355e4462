package sync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ferryline/ferryline-api/internal/models"
)

// UserLister enumerates the users whose jobs should be tracked.
type UserLister interface {
	ListActiveUsers(ctx context.Context) ([]models.User, error)
}

// Manager keeps one independently scheduled Synchronizer per active user.
// The user set is refreshed periodically; loops for removed users are
// cancelled, new users get a fresh loop.
type Manager struct {
	users    UserLister
	fetcher  Fetcher
	store    HistoryStore
	handler  TransitionHandler
	opts     Options
	logger   zerolog.Logger
	interval time.Duration

	mu    sync.Mutex
	loops map[string]context.CancelFunc
}

func NewManager(users UserLister, fetcher Fetcher, store HistoryStore, handler TransitionHandler, opts Options, logger zerolog.Logger) *Manager {
	opts.fill()
	return &Manager{
		users:    users,
		fetcher:  fetcher,
		store:    store,
		handler:  handler,
		opts:     opts,
		logger:   logger.With().Str("component", "sync_manager").Logger(),
		interval: time.Minute,
		loops:    make(map[string]context.CancelFunc),
	}
}

// Run blocks until ctx is cancelled, then waits for every user loop to
// drain.
func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup

	m.reconcileLoops(ctx, &wg)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			for _, cancel := range m.loops {
				cancel()
			}
			m.mu.Unlock()
			wg.Wait()
			m.logger.Info().Msg("all synchronizers stopped")
			return
		case <-ticker.C:
			m.reconcileLoops(ctx, &wg)
		}
	}
}

func (m *Manager) reconcileLoops(ctx context.Context, wg *sync.WaitGroup) {
	users, err := m.users.ListActiveUsers(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to list active users")
		return
	}

	active := make(map[string]struct{}, len(users))
	for _, u := range users {
		active[u.ID] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, cancel := range m.loops {
		if _, ok := active[id]; !ok {
			cancel()
			delete(m.loops, id)
			m.logger.Info().Str("user_id", id).Msg("synchronizer removed")
		}
	}

	for _, u := range users {
		if _, ok := m.loops[u.ID]; ok {
			continue
		}
		loopCtx, cancel := context.WithCancel(ctx)
		m.loops[u.ID] = cancel

		s := NewSynchronizer(u.ID, m.fetcher, m.store, m.handler, m.opts, m.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Run(loopCtx)
		}()
	}
}
