// Package syncer pulls usage and cost data from provider APIs into the ledger.
package syncer

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/huegott/ai-spend-dashboard/internal/logging"
	"github.com/huegott/ai-spend-dashboard/internal/metrics"
	"github.com/huegott/ai-spend-dashboard/internal/provider"
	"github.com/huegott/ai-spend-dashboard/pkg/models"
)

const (
	// DefaultWindowDays is the look-back used when a caller does not pick one
	DefaultWindowDays = 30
)

// Ledger persists normalized records
type Ledger interface {
	Upsert(ctx context.Context, records []models.SpendRecord) error
}

// Normalizer maps raw provider payloads onto spend records
type Normalizer interface {
	NormalizeUsage(payload []byte) []models.SpendRecord
	NormalizeCost(payload []byte) []models.SpendRecord
}

// Service runs sync cycles against registered usage sources
type Service struct {
	ledger     Ledger
	normalizer Normalizer
	sources    map[models.Provider]provider.UsageSource
	logger     *slog.Logger

	defaultWindowDays int

	// For time mocking in tests
	now func() time.Time

	mu       sync.Mutex
	inFlight map[models.Provider]bool
}

// Option configures the sync service
type Option func(*Service)

// WithSource registers a usage source under its provider name
func WithSource(src provider.UsageSource) Option {
	return func(s *Service) {
		s.sources[src.Name()] = src
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithDefaultWindowDays sets the look-back used when SyncData gets 0 days
func WithDefaultWindowDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.defaultWindowDays = days
		}
	}
}

// WithTimeFunc sets a custom time function (for testing)
func WithTimeFunc(fn func() time.Time) Option {
	return func(s *Service) {
		s.now = fn
	}
}

// New creates a sync service
func New(ledger Ledger, normalizer Normalizer, opts ...Option) *Service {
	s := &Service{
		ledger:            ledger,
		normalizer:        normalizer,
		sources:           make(map[models.Provider]provider.UsageSource),
		logger:            slog.Default(),
		defaultWindowDays: DefaultWindowDays,
		now:               time.Now,
		inFlight:          make(map[models.Provider]bool),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Providers returns the providers that have a registered source
func (s *Service) Providers() []models.Provider {
	out := make([]models.Provider, 0, len(s.sources))
	for p := range s.sources {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Configured reports whether the provider has a source with credentials
func (s *Service) Configured(p models.Provider) bool {
	src, ok := s.sources[p]
	return ok && src.Configured()
}

// SyncData fetches the last windowDays of usage and costs for a provider,
// normalizes them and merges them into the ledger. A windowDays of 0 uses
// the service default.
//
// Re-syncing an overlapping window adds the same amounts again; callers
// are expected to sync disjoint windows.
func (s *Service) SyncData(ctx context.Context, p models.Provider, windowDays int) (*models.SyncResult, error) {
	if windowDays == 0 {
		windowDays = s.defaultWindowDays
	}
	if windowDays < 1 {
		return nil, &SyncError{Provider: p, Stage: StageValidate, Err: ErrInvalidWindow}
	}

	src, ok := s.sources[p]
	if !ok {
		return nil, &SyncError{Provider: p, Stage: StageValidate, Err: ErrProviderNotSupported}
	}

	if !s.acquire(p) {
		return nil, &SyncError{Provider: p, Stage: StageValidate, Err: ErrSyncInProgress}
	}
	defer s.release(p)

	ctx = logging.WithProvider(ctx, string(p))
	ctx = logging.WithSyncID(ctx, uuid.New().String())

	start := time.Now()
	result, err := s.sync(ctx, src, windowDays)

	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.RecordSyncCycle(string(p), status, time.Since(start))

	if err != nil {
		s.logger.ErrorContext(ctx, "sync failed",
			slog.Int("window_days", windowDays),
			slog.String("error", err.Error()))
		return nil, err
	}

	s.logger.InfoContext(ctx, "sync completed",
		slog.Int("window_days", windowDays),
		slog.Int("usage_records", result.UsageRecords),
		slog.Int("cost_records", result.CostRecords),
		slog.Duration("duration", time.Since(start)))

	return result, nil
}

func (s *Service) sync(ctx context.Context, src provider.UsageSource, windowDays int) (*models.SyncResult, error) {
	p := src.Name()
	end := s.now().UTC()
	window := provider.Window{
		Start: end.AddDate(0, 0, -windowDays),
		End:   end,
	}

	s.logger.DebugContext(ctx, "fetching provider data",
		slog.Time("start", window.Start),
		slog.Time("end", window.End))

	var usagePayload, costPayload []byte
	fetch, fctx := errgroup.WithContext(ctx)
	fetch.Go(func() error {
		var err error
		if usagePayload, err = src.FetchUsage(fctx, window); err != nil {
			return &SyncError{Provider: p, Stage: StageFetchUsage, Err: err}
		}
		return nil
	})
	fetch.Go(func() error {
		var err error
		if costPayload, err = src.FetchCosts(fctx, window); err != nil {
			return &SyncError{Provider: p, Stage: StageFetchCosts, Err: err}
		}
		return nil
	})
	if err := fetch.Wait(); err != nil {
		return nil, err
	}

	usage := s.normalizer.NormalizeUsage(usagePayload)
	costs := s.normalizer.NormalizeCost(costPayload)

	// each batch is its own transaction; order between them does not matter.
	// A failing batch does not cancel the other one.
	var store errgroup.Group
	sctx := context.WithoutCancel(ctx)
	store.Go(func() error {
		if err := s.ledger.Upsert(sctx, usage); err != nil {
			return &SyncError{Provider: p, Stage: StageStoreUsage, Err: err}
		}
		return nil
	})
	store.Go(func() error {
		if err := s.ledger.Upsert(sctx, costs); err != nil {
			return &SyncError{Provider: p, Stage: StageStoreCosts, Err: err}
		}
		return nil
	})
	if err := store.Wait(); err != nil {
		return nil, err
	}

	metrics.RecordRecordsIngested(string(p), string(models.SourceOpenAISync), len(usage)+len(costs))

	return &models.SyncResult{
		UsageRecords: len(usage),
		CostRecords:  len(costs),
		TotalRecords: len(usage) + len(costs),
	}, nil
}

func (s *Service) acquire(p models.Provider) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[p] {
		return false
	}
	s.inFlight[p] = true
	return true
}

func (s *Service) release(p models.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, p)
}
