// Package service composes the trending engine: storage, the recalculation
// job and its scheduler, and the ranking query service used by the HTTP API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/trendscore/internal/adapters/repository"
	"github.com/okian/trendscore/internal/config"
	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/internal/domain/scoring"
	"github.com/okian/trendscore/internal/domain/types"
	"github.com/okian/trendscore/internal/platform/retry"
	"github.com/okian/trendscore/pkg/logger"
	"github.com/okian/trendscore/pkg/metrics"
)

// Service implements the API dependencies of the trending engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	ownsStore bool
	calc      *scoring.Calculator
	job       *Job
	query     *QueryService
	legacy    *LegacyCalculator
	scheduler *Scheduler

	// Configuration
	storageDriver       string
	databasePath        string
	workerCount         int
	queueSize           int
	recalculateInterval time.Duration
	recalculateOnStart  bool
	lockTTL             time.Duration
	queryTimeout        time.Duration
	fallbackTimeout     time.Duration
	retryAttempts       int
	retryBackoff        time.Duration
	defaultLimit        int
	maxLimit            int
	location            *time.Location
	weights             map[string]float64
	halfLifeHours       float64
	clock               clockwork.Clock

	// State
	started   bool
	startedAt time.Time
	lastRun   *types.RecalculationSummary

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore injects an already opened store. The service does not close it.
func WithStore(s repository.Store) Option {
	return func(svc *Service) {
		if s != nil {
			svc.store = s
		}
	}
}

// WithStorage selects the driver and path of the store opened on Start.
func WithStorage(driver, path string) Option {
	return func(s *Service) {
		if driver != "" {
			s.storageDriver = driver
		}
		s.databasePath = path
	}
}

// WithWorkerCount sets the number of scoring workers per window build.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the scoring task queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithRecalculateInterval enables periodic recalculation; zero disables it.
func WithRecalculateInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.recalculateInterval = d
		}
	}
}

// WithRecalculateOnStart runs one recalculation when the service starts.
func WithRecalculateOnStart(enabled bool) Option {
	return func(s *Service) { s.recalculateOnStart = enabled }
}

// WithLockTTLDuration sets the expiry of window locks.
func WithLockTTLDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lockTTL = d
		}
	}
}

// WithQueryTimeout bounds each store call attempt.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

// WithFallbackComputeTimeout bounds a live fallback computation.
func WithFallbackComputeTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fallbackTimeout = d
		}
	}
}

// WithRetry sets the store retry budget.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.retryAttempts = attempts
		}
		if backoff >= 0 {
			s.retryBackoff = backoff
		}
	}
}

// WithResultLimits sets the default and maximum ranking sizes.
func WithResultLimits(defaultLimit, maxLimit int) Option {
	return func(s *Service) {
		if defaultLimit > 0 {
			s.defaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			s.maxLimit = maxLimit
		}
	}
}

// WithLocation sets the time zone of the today lens.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithScoringWeights overrides signal weights by key.
func WithScoringWeights(weights map[string]float64) Option {
	return func(s *Service) { s.weights = weights }
}

// WithHalfLife overrides the decay half-life in hours.
func WithHalfLife(hours float64) Option {
	return func(s *Service) {
		if hours > 0 {
			s.halfLifeHours = hours
		}
	}
}

// WithClock sets the clock shared by every component.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// OptionsFromConfig maps a loaded configuration onto service options.
func OptionsFromConfig(cfg *config.Config) ([]Option, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("resolve timezone: %w", err)
	}
	return []Option{
		WithStorage(cfg.StorageDriver, cfg.DatabasePath),
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithRecalculateInterval(cfg.RecalculateInterval()),
		WithRecalculateOnStart(cfg.RecalculateOnStart),
		WithLockTTLDuration(cfg.LockTTL()),
		WithQueryTimeout(cfg.QueryTimeout()),
		WithFallbackComputeTimeout(cfg.FallbackTimeout()),
		WithRetry(cfg.RetryAttempts, cfg.RetryBackoff()),
		WithResultLimits(cfg.DefaultLimit, cfg.MaxLimit),
		WithLocation(loc),
		WithScoringWeights(cfg.Weights),
		WithHalfLife(cfg.HalfLifeHours),
	}, nil
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		storageDriver:   repository.DriverMemory,
		workerCount:     runtime.NumCPU() * 2, // Default to 2x CPU cores
		queueSize:       1024,
		lockTTL:         defaultLockTTL,
		queryTimeout:    2 * time.Second,
		fallbackTimeout: defaultFallbackTimeout,
		retryAttempts:   retry.DefaultMaxAttempts,
		retryBackoff:    100 * time.Millisecond,
		defaultLimit:    DefaultLimit,
		maxLimit:        MaxLimit,
		location:        time.UTC,
		halfLifeHours:   scoring.DefaultHalfLifeHours,
		clock:           clockwork.NewRealClock(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start opens storage and wires the engine components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting trending service...")

	if s.store == nil {
		store, err := repository.Open(s.storageDriver, s.databasePath, repository.WithLogger(s.logger))
		if err != nil {
			return fmt.Errorf("open %s store: %w", s.storageDriver, err)
		}
		s.store = store
		s.ownsStore = true
	}

	policy := retry.Policy{
		MaxAttempts:    s.retryAttempts,
		InitialBackoff: s.retryBackoff,
		AttemptTimeout: s.queryTimeout,
		Clock:          s.clock,
	}

	s.calc = scoring.NewCalculator(
		scoring.WithWeightsFromConfig(s.weights),
		scoring.WithHalfLifeHours(s.halfLifeHours),
	)
	builder := NewBuilder(s.store, s.calc,
		WithBuilderWorkers(s.workerCount),
		WithBuilderQueueSize(s.queueSize),
		WithBuilderRetry(policy),
	)
	s.job = NewJob(s.store, builder,
		WithJobClock(s.clock),
		WithLockTTL(s.lockTTL),
		WithJobRetry(policy),
	)
	s.legacy = NewLegacyCalculator(s.store, s.store, s.calc,
		WithLegacyClock(s.clock),
		WithLegacyLocation(s.location),
		WithFallbackTimeout(s.fallbackTimeout),
		WithLegacyRetry(policy),
	)
	s.query = NewQueryService(s.store, s.store, s.legacy, s.calc,
		WithQueryClock(s.clock),
		WithQueryLocation(s.location),
		WithQueryRetry(policy),
		WithLimits(s.defaultLimit, s.maxLimit),
	)
	s.scheduler = NewScheduler(runnerFunc(s.recalculate), s.recalculateInterval,
		WithSchedulerClock(s.clock),
		WithRunOnStart(s.recalculateOnStart),
	)

	s.started = true
	s.startedAt = s.clock.Now()

	// The scheduler outlives the start request.
	s.scheduler.Start(context.WithoutCancel(ctx))

	s.logger.Info(ctx, "trending service started",
		logger.String("storage", s.storageDriver),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Duration("recalculateInterval", s.recalculateInterval),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.RLock()
	scheduler := s.scheduler
	started := s.started
	s.mu.RUnlock()

	if !started {
		return
	}

	// Stop the scheduler first; its in-flight run needs the store.
	scheduler.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info(context.Background(), "stopping trending service...")

	if s.ownsStore && s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error(context.Background(), "error closing store", logger.Error(err))
		}
		s.store = nil
		s.ownsStore = false
	}

	s.job, s.query, s.legacy, s.scheduler = nil, nil, nil, nil
	s.started = false
	s.logger.Info(context.Background(), "trending service stopped")
}

type runnerFunc func(ctx context.Context) (types.RecalculationSummary, error)

func (f runnerFunc) Run(ctx context.Context) (types.RecalculationSummary, error) { return f(ctx) }

// Recalculate runs the recalculation job once over every window.
func (s *Service) Recalculate(ctx context.Context) (types.RecalculationSummary, error) {
	return s.recalculate(ctx)
}

func (s *Service) recalculate(ctx context.Context) (types.RecalculationSummary, error) {
	s.mu.RLock()
	job := s.job
	s.mu.RUnlock()
	if job == nil {
		return types.RecalculationSummary{}, ErrNotStarted
	}

	summary, err := job.Run(ctx)

	s.mu.Lock()
	s.lastRun = &summary
	s.mu.Unlock()

	return summary, err
}

// ResolveQuery turns raw request parameters into a ranking query.
func (s *Service) ResolveQuery(lens, period, limit string) types.TrendingQuery {
	s.mu.RLock()
	q := s.query
	s.mu.RUnlock()
	if q == nil {
		// Not started: resolve with the configured limits only.
		q = &QueryService{defaultLimit: s.defaultLimit, maxLimit: s.maxLimit}
	}
	return q.ResolveQuery(lens, period, limit)
}

// Trending returns the ranking for query.
func (s *Service) Trending(ctx context.Context, query types.TrendingQuery) (types.TrendingResponse, error) {
	s.mu.RLock()
	q := s.query
	s.mu.RUnlock()
	if q == nil {
		return types.TrendingResponse{}, ErrNotStarted
	}
	return q.Trending(ctx, query)
}

// ItemTrend returns the trend of one item.
func (s *Service) ItemTrend(ctx context.Context, window model.Window, itemID string) (types.ItemTrendResponse, error) {
	s.mu.RLock()
	q := s.query
	s.mu.RUnlock()
	if q == nil {
		return types.ItemTrendResponse{}, ErrNotStarted
	}
	return q.ItemTrend(ctx, window, itemID)
}

// Store exposes the underlying store, nil before Start.
func (s *Service) Store() repository.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":             s.started,
		"storageDriver":       s.storageDriver,
		"workerCount":         s.workerCount,
		"queueSize":           s.queueSize,
		"recalculateInterval": s.recalculateInterval.String(),
		"timezone":            s.location.String(),
	}

	if s.started {
		ctx, cancel := context.WithTimeout(context.Background(), s.queryTimeout)
		defer cancel()

		rows := make(map[string]int, len(model.Windows()))
		for _, w := range model.Windows() {
			n, err := s.store.CountSnapshots(ctx, w)
			if err != nil {
				continue
			}
			rows[string(w)] = n
			metrics.UpdateSnapshotRows(string(w), n)
		}
		stats["snapshotRows"] = rows
		stats["uptimeSeconds"] = int64(s.clock.Since(s.startedAt).Seconds())
		if s.lastRun != nil {
			stats["lastRun"] = *s.lastRun
		}
	}

	return stats
}
