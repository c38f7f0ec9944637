// Package worker runs per-item scoring tasks taken from the queue.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/trendscore/internal/adapters/mq/queue"
	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/pkg/logger"
	"github.com/okian/trendscore/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Processor scores one task.
type Processor interface {
	Process(ctx context.Context, t queue.Task) (model.Snapshot, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, t queue.Task) (model.Snapshot, error)

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, t queue.Task) (model.Snapshot, error) {
	return f(ctx, t)
}

// Result is the outcome of one task. Err is set when the item could not be
// scored; Snapshot is then meaningless.
type Result struct {
	Task     queue.Task
	Snapshot model.Snapshot
	Err      error
}

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Task
}

// InMemoryWorker processes tasks until its queue is drained and sends one
// Result per task.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	name      string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, p Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		processor: p,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context, results chan<- Result) {
	defer close(w.done)

	tasks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case t, ok := <-tasks:
			if !ok {
				return
			}

			res := w.process(ctx, t)
			select {
			case results <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out", logger.String("worker", w.name))
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process scores one task. A panicking processor fails only that task.
func (w *InMemoryWorker) process(ctx context.Context, t queue.Task) (res Result) { //nolint:gocritic // hugeParam: Task must be passed by value for channel semantics
	start := time.Now()
	metrics.AddWorkerBusy(1)
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("worker", "panic")
			w.logger.Error(ctx, "item scoring panicked",
				logger.String("worker", w.name),
				logger.String("item_id", t.Item.ID),
				logger.Any("panic", r),
			)
			res = Result{Task: t, Err: fmt.Errorf("score item %s: %w: %v", t.Item.ID, ErrPanic, r)}
		}
		metrics.AddWorkerBusy(-1)
		metrics.RecordWorkerTaskDuration(time.Since(start).Seconds())
	}()

	snap, err := w.processor.Process(ctx, t)
	if err != nil {
		metrics.RecordErrorByComponent("worker", "process_error")
		w.logger.Warn(ctx, "item scoring failed",
			logger.String("worker", w.name),
			logger.String("item_id", t.Item.ID),
			logger.String("window", string(t.Window)),
			logger.Error(err),
		)
		return Result{Task: t, Err: fmt.Errorf("score item %s: %w", t.Item.ID, err)}
	}
	return Result{Task: t, Snapshot: snap}
}

// Pool runs a fixed set of workers over one queue and fans their results
// into a single channel.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	results chan Result

	startOnce sync.Once
	wg        sync.WaitGroup

	logger logger.Logger
}

// NewPool creates a new worker pool. A workerCount below one selects a
// multiple of the CPU count.
func NewPool(workerCount int, q Queue, p Processor, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		results: make(chan Result, workerCount),
		logger:  logger.Get().Named("worker_pool"),
	}

	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(q, p, wopts...)
	}

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers. Results is closed once every worker has exited.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for _, w := range p.workers {
			p.wg.Add(1)
			go func(w *InMemoryWorker) {
				defer p.wg.Done()
				w.Run(ctx, p.results)
			}(w)
		}
		go func() {
			p.wg.Wait()
			close(p.results)
		}()
	})
}

// Results returns the channel of task outcomes.
func (p *Pool) Results() <-chan Result { return p.results }

// Shutdown closes the queue and waits for the workers to stop. It returns
// ErrShutdownTimeout if any worker outlived the wait.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var late int
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			late++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	if late > 0 {
		return fmt.Errorf("%w: %d of %d workers", ErrShutdownTimeout, late, len(p.workers))
	}
	return nil
}
