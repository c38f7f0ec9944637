// Package queue holds the bounded in-memory queue that feeds per-item scoring
// tasks to the worker pool during a recalculation.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
)

// Task asks a worker to score one item for one window as of Now.
type Task struct {
	Item   model.ItemStatus
	Window model.Window
	Now    time.Time
}

// InMemoryQueue is a bounded task queue over a buffered channel. Producers
// Push and Close; consumers range over Dequeue until it is drained.
type InMemoryQueue struct {
	tasks    chan Task
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.tasks = make(chan Task, q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Push adds a task, blocking while the queue is full.
func (q *InMemoryQueue) Push(ctx context.Context, t Task) error { //nolint:gocritic // hugeParam: Task must be passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected("closed")
		return ErrClosed
	}

	select {
	case q.tasks <- t:
		metrics.UpdateQueueSize(len(q.tasks))
		return nil
	case <-ctx.Done():
		metrics.RecordQueueRejected("context_cancelled")
		return ctx.Err()
	}
}

// Dequeue returns a channel that will receive tasks as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Task {
	out := make(chan Task)
	go func() {
		defer close(out)
		for {
			select {
			case t, ok := <-q.tasks:
				if !ok {
					return
				}
				metrics.UpdateQueueSize(len(q.tasks))
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Close stops the queue from accepting new tasks.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.tasks)
	q.closed = true

	return nil
}
