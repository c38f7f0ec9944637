package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/trendscore/internal/adapters/mq/queue"
	"github.com/okian/trendscore/internal/adapters/mq/worker"
	"github.com/okian/trendscore/internal/adapters/repository"
	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/internal/domain/scoring"
	"github.com/okian/trendscore/internal/domain/types"
	"github.com/okian/trendscore/internal/platform/retry"
	"github.com/okian/trendscore/pkg/logger"
	"github.com/okian/trendscore/pkg/metrics"
)

// ItemFailure records an item that could not be scored in a build.
type ItemFailure struct {
	ItemID string
	Err    error
}

// BuildResult holds the snapshots of one window build and the items that
// failed. Every input item appears in exactly one of the two slices.
type BuildResult struct {
	Window    model.Window
	Snapshots []model.Snapshot
	Failed    []ItemFailure
}

// FailedIDs returns the ids of the failed items.
func (r BuildResult) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		ids = append(ids, f.ItemID)
	}
	return ids
}

// Builder scores every item of a window. It never writes.
type Builder struct {
	events    repository.EventSource
	calc      *scoring.Calculator
	workers   int
	queueSize int
	policy    retry.Policy
	logger    logger.Logger
}

// BuilderOption applies a configuration option to the Builder.
type BuilderOption func(*Builder)

// WithBuilderWorkers sets the number of concurrent scoring workers.
func WithBuilderWorkers(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithBuilderQueueSize sets the capacity of the task queue.
func WithBuilderQueueSize(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithBuilderRetry sets the retry policy for event reads.
func WithBuilderRetry(p retry.Policy) BuilderOption {
	return func(b *Builder) { b.policy = p }
}

// WithBuilderLogger sets a custom logger.
func WithBuilderLogger(l logger.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBuilder creates a builder reading events from events.
func NewBuilder(events repository.EventSource, calc *scoring.Calculator, opts ...BuilderOption) *Builder {
	b := &Builder{
		events:    events,
		calc:      calc,
		workers:   4,
		queueSize: 1024,
		policy:    retry.Policy{MaxAttempts: retry.DefaultMaxAttempts},
		logger:    logger.Get().Named("builder"),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Process scores one task. It is the worker-side half of Build.
func (b *Builder) Process(ctx context.Context, t queue.Task) (model.Snapshot, error) { //nolint:gocritic // hugeParam: Task is passed by value through the queue
	from := t.Now.Add(-t.Window.Duration())
	events, err := storeCall(ctx, b.policy, "item_events", func(ctx context.Context) ([]model.Event, error) {
		return b.events.ItemEvents(ctx, t.Item.ID, from, t.Now)
	})
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %w", types.ErrEventStoreUnavailable, err)
	}
	return b.calc.Snapshot(t.Item, events, t.Window, t.Now), nil
}

// Build scores items for window as of now. Items whose events cannot be read
// are reported in Failed; items left unprocessed because ctx ended are
// reported there too.
func (b *Builder) Build(ctx context.Context, items []model.ItemStatus, window model.Window, now time.Time) BuildResult {
	res := BuildResult{Window: window, Snapshots: make([]model.Snapshot, 0, len(items))}
	if len(items) == 0 {
		return res
	}

	workers := min(b.workers, len(items))
	q := queue.NewInMemoryQueue(queue.WithCapacity(min(b.queueSize, len(items))))
	pool := worker.NewPool(workers, q, b, worker.WithLogger(b.logger))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool.Start(ctx)

	go func() {
		defer func() { _ = q.Close() }()
		for _, item := range items {
			if err := q.Push(ctx, queue.Task{Item: item, Window: window, Now: now}); err != nil {
				return
			}
		}
	}()

	done := make(map[string]struct{}, len(items))
	for r := range pool.Results() {
		done[r.Task.Item.ID] = struct{}{}
		if r.Err != nil {
			res.Failed = append(res.Failed, ItemFailure{ItemID: r.Task.Item.ID, Err: r.Err})
			continue
		}
		res.Snapshots = append(res.Snapshots, r.Snapshot)
	}

	if err := pool.Shutdown(context.WithoutCancel(ctx)); err != nil {
		b.logger.Warn(ctx, "worker pool did not stop cleanly",
			logger.String("window", string(window)),
			logger.Error(err),
		)
	}

	for _, item := range items {
		if _, ok := done[item.ID]; ok {
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = fmt.Errorf("item %s was not processed", item.ID)
		}
		res.Failed = append(res.Failed, ItemFailure{ItemID: item.ID, Err: err})
	}

	metrics.RecordItemsScored(string(window), len(res.Snapshots))
	metrics.RecordItemFailures(string(window), len(res.Failed))

	b.logger.Debug(ctx, "window built",
		logger.String("window", string(window)),
		logger.Int("items", len(items)),
		logger.Int("scored", len(res.Snapshots)),
		logger.Int("failed", len(res.Failed)),
		logger.Int("workers", workers),
	)

	return res
}
