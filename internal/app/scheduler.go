package service

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/trendscore/internal/domain/types"
	"github.com/okian/trendscore/pkg/logger"
)

// Runner is a recalculation that can be triggered.
type Runner interface {
	Run(ctx context.Context) (types.RecalculationSummary, error)
}

// Scheduler triggers a Runner on a fixed interval.
type Scheduler struct {
	runner   Runner
	clock    clockwork.Clock
	interval time.Duration
	onStart  bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	logger logger.Logger
}

// SchedulerOption applies a configuration option to the Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerClock sets the clock driving the ticker.
func WithSchedulerClock(c clockwork.Clock) SchedulerOption {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithRunOnStart runs once immediately when the scheduler starts.
func WithRunOnStart(enabled bool) SchedulerOption {
	return func(s *Scheduler) { s.onStart = enabled }
}

// WithSchedulerLogger sets a custom logger.
func WithSchedulerLogger(l logger.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScheduler creates a scheduler. A non-positive interval disables the
// periodic trigger; the on-start run still happens when enabled.
func NewScheduler(r Runner, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		runner:   r,
		clock:    clockwork.NewRealClock(),
		interval: interval,
		logger:   logger.Get().Named("scheduler"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start launches the scheduling loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || (s.interval <= 0 && !s.onStart) {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx)

	s.logger.Info(ctx, "scheduler started",
		logger.Duration("interval", s.interval),
		logger.Bool("run_on_start", s.onStart),
	)
}

// Stop cancels the loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	done := s.done
	s.running = false
	s.mu.Unlock()

	<-done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	if s.onStart {
		s.trigger(ctx, "start")
	}
	if s.interval <= 0 {
		return
	}

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.trigger(ctx, "interval")
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, reason string) {
	summary, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error(ctx, "scheduled recalculation failed",
			logger.String("reason", reason),
			logger.String("run_id", summary.RunID),
			logger.Error(err),
		)
		return
	}
	s.logger.Debug(ctx, "scheduled recalculation done",
		logger.String("reason", reason),
		logger.String("run_id", summary.RunID),
		logger.Int("items_processed", summary.ItemsProcessed),
	)
}
