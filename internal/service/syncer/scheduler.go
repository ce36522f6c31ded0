package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/huegott/ai-spend-dashboard/pkg/models"
)

// Syncer runs one sync cycle for a provider
type Syncer interface {
	SyncData(ctx context.Context, p models.Provider, windowDays int) (*models.SyncResult, error)
}

// Scheduler periodically syncs every configured provider
type Scheduler struct {
	syncer     Syncer
	providers  []models.Provider
	interval   time.Duration
	windowDays int
	logger     *slog.Logger

	// Shutdown coordination
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// SchedulerOption configures the scheduler
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets a custom logger
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithWindowDays sets the look-back of each scheduled cycle
func WithWindowDays(days int) SchedulerOption {
	return func(s *Scheduler) {
		s.windowDays = days
	}
}

// NewScheduler creates a scheduler that syncs providers every interval
func NewScheduler(syncer Syncer, providers []models.Provider, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		syncer:    syncer,
		providers: providers,
		interval:  interval,
		logger:    slog.Default(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start begins the sync loop. A non-positive interval or an empty provider
// list leaves the scheduler idle.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if s.interval <= 0 || len(s.providers) == 0 {
		s.mu.Unlock()
		s.logger.Info("auto-sync disabled")
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("sync scheduler starting",
		slog.Duration("interval", s.interval),
		slog.Int("providers", len(s.providers)))

	go s.run(ctx)
	return nil
}

// Stop gracefully stops the scheduler, waiting for an in-progress cycle
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()

	s.logger.Info("sync scheduler stopping")
	close(stopCh)
	<-doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("sync scheduler stopped")
}

// run is the main sync loop
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce syncs every provider sequentially, logging failures
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, p := range s.providers {
		if ctx.Err() != nil {
			return
		}

		result, err := s.syncer.SyncData(ctx, p, s.windowDays)
		if err != nil {
			if IsSyncInProgress(err) {
				s.logger.Debug("skipping scheduled sync, manual sync running",
					slog.String("provider", string(p)))
				continue
			}
			s.logger.Error("scheduled sync failed",
				slog.String("provider", string(p)),
				slog.String("error", err.Error()))
			continue
		}

		s.logger.Debug("scheduled sync finished",
			slog.String("provider", string(p)),
			slog.Int("total_records", result.TotalRecords))
	}
}
