package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/okian/trendscore/internal/adapters/repository"
	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/internal/domain/types"
	"github.com/okian/trendscore/internal/platform/retry"
	"github.com/okian/trendscore/pkg/logger"
	"github.com/okian/trendscore/pkg/metrics"
)

const (
	defaultLockTTL = 5 * time.Minute
	lockNamePrefix = "trending:"
)

// JobStore is the storage a recalculation needs.
type JobStore interface {
	repository.ListingSource
	repository.SnapshotStore
	repository.Locker
}

// Job recalculates and persists the snapshots of every window.
type Job struct {
	store   JobStore
	builder *Builder
	clock   clockwork.Clock
	lockTTL time.Duration
	policy  retry.Policy
	windows []model.Window

	// One in-process lock per window; the store lock covers other processes.
	locks map[model.Window]*sync.Mutex

	logger logger.Logger
}

// JobOption applies a configuration option to the Job.
type JobOption func(*Job)

// WithJobClock sets the clock used for the run timestamp and lock expiry.
func WithJobClock(c clockwork.Clock) JobOption {
	return func(j *Job) {
		if c != nil {
			j.clock = c
		}
	}
}

// WithLockTTL sets how long a window lock is held before it expires.
func WithLockTTL(ttl time.Duration) JobOption {
	return func(j *Job) {
		if ttl > 0 {
			j.lockTTL = ttl
		}
	}
}

// WithJobRetry sets the retry policy for store calls.
func WithJobRetry(p retry.Policy) JobOption {
	return func(j *Job) { j.policy = p }
}

// WithWindows restricts the windows the job maintains.
func WithWindows(windows ...model.Window) JobOption {
	return func(j *Job) {
		if len(windows) > 0 {
			j.windows = windows
		}
	}
}

// WithJobLogger sets a custom logger.
func WithJobLogger(l logger.Logger) JobOption {
	return func(j *Job) {
		if l != nil {
			j.logger = l
		}
	}
}

// NewJob creates a recalculation job.
func NewJob(store JobStore, builder *Builder, opts ...JobOption) *Job {
	j := &Job{
		store:   store,
		builder: builder,
		clock:   clockwork.NewRealClock(),
		lockTTL: defaultLockTTL,
		policy:  retry.Policy{MaxAttempts: retry.DefaultMaxAttempts},
		windows: model.Windows(),
		logger:  logger.Get().Named("recalculation"),
	}

	for _, opt := range opts {
		opt(j)
	}

	j.locks = make(map[model.Window]*sync.Mutex, len(j.windows))
	for _, w := range j.windows {
		j.locks[w] = &sync.Mutex{}
	}

	return j
}

// Run recalculates every window once. Windows are independent: a failing
// window is reported in the summary and does not stop the others. The
// returned error is non-nil only when every window failed.
func (j *Job) Run(ctx context.Context) (types.RecalculationSummary, error) {
	runID := uuid.NewString()
	now := j.clock.Now().UTC().Truncate(time.Millisecond)

	summary := types.RecalculationSummary{
		RunID:   runID,
		Windows: make([]types.WindowSummary, 0, len(j.windows)),
	}

	j.logger.Info(ctx, "recalculation started",
		logger.String("run_id", runID),
		logger.Time("now", now),
	)

	var errs []error
	for _, w := range j.windows {
		ws, err := j.runWindow(ctx, runID, w, now)
		if err != nil {
			ws.Error = types.ErrorCode(err)
			errs = append(errs, fmt.Errorf("window %s: %w", w, err))
		}
		summary.Windows = append(summary.Windows, ws)
		summary.ItemsProcessed += ws.ItemsProcessed
		summary.Failures += ws.Failures
	}

	j.logger.Info(ctx, "recalculation finished",
		logger.String("run_id", runID),
		logger.Int("items_processed", summary.ItemsProcessed),
		logger.Int("failures", summary.Failures),
	)

	if summary.Failed() {
		return summary, errors.Join(errs...)
	}
	return summary, nil
}

func (j *Job) runWindow(ctx context.Context, runID string, w model.Window, now time.Time) (ws types.WindowSummary, err error) {
	ws = types.WindowSummary{Window: w, CalculatedAt: now}
	start := j.clock.Now()

	defer func() {
		outcome := metrics.OutcomeSuccess
		switch {
		case err != nil:
			outcome = metrics.OutcomeFailed
			metrics.RecordErrorByComponent("recalculation", types.ErrorCode(err))
			j.logger.Error(ctx, "window recalculation failed",
				logger.String("run_id", runID),
				logger.String("window", string(w)),
				logger.Error(err),
			)
		case ws.Skipped:
			outcome = metrics.OutcomeSkipped
		case ws.Failures > 0:
			outcome = metrics.OutcomePartial
		}
		metrics.RecordRecalculation(string(w), outcome)
		metrics.RecordRecalculationDuration(string(w), j.clock.Since(start).Seconds())
	}()

	mu := j.locks[w]
	if mu == nil || !mu.TryLock() {
		ws.Skipped = true
		j.logger.Info(ctx, "window already recalculating in process, skipped", logger.String("window", string(w)))
		return ws, nil
	}
	defer mu.Unlock()

	name := lockNamePrefix + string(w)
	acquired, err := storeCall(ctx, j.policy, "lock", func(ctx context.Context) (bool, error) {
		return j.store.TryLock(ctx, name, runID, j.lockTTL, now)
	})
	if err != nil {
		return ws, fmt.Errorf("%w: %w", types.ErrSnapshotWriteConflict, err)
	}
	if !acquired {
		ws.Skipped = true
		j.logger.Info(ctx, "window lock held by another run, skipped", logger.String("window", string(w)))
		return ws, nil
	}
	defer func() {
		if uerr := j.store.Unlock(context.WithoutCancel(ctx), name, runID); uerr != nil {
			j.logger.Warn(ctx, "failed to release window lock",
				logger.String("window", string(w)),
				logger.Error(uerr),
			)
		}
	}()

	items, err := storeCall(ctx, j.policy, "listings", func(ctx context.Context) ([]model.ItemStatus, error) {
		return j.store.Listings(ctx)
	})
	if err != nil {
		return ws, fmt.Errorf("%w: read listings: %w", types.ErrComputationUnavailable, err)
	}

	built := j.builder.Build(ctx, items, w, now)
	ws.ItemsProcessed = len(built.Snapshots)
	ws.Failures = len(built.Failed)
	for _, f := range built.Failed {
		j.logger.Warn(ctx, "item excluded from snapshot write",
			logger.String("window", string(w)),
			logger.String("item_id", f.ItemID),
			logger.Error(f.Err),
		)
	}

	if err := ctx.Err(); err != nil {
		return ws, fmt.Errorf("%w: %w", types.ErrComputationUnavailable, err)
	}

	write := repository.WindowWrite{
		Window: w,
		Rows:   built.Snapshots,
		Retain: built.FailedIDs(),
	}
	wctx := context.WithoutCancel(ctx)
	result, err := storeCall(wctx, j.policy, "replace_window", func(ctx context.Context) (repository.WriteResult, error) {
		return j.store.ReplaceWindow(ctx, write)
	})
	if err != nil {
		return ws, fmt.Errorf("%w: %w", types.ErrSnapshotWriteConflict, err)
	}
	ws.Removed = result.Removed
	metrics.RecordSnapshotsRemoved(string(w), result.Removed)

	if n, cerr := j.store.CountSnapshots(wctx, w); cerr == nil {
		metrics.UpdateSnapshotRows(string(w), n)
	}

	j.logger.Info(ctx, "window recalculated",
		logger.String("run_id", runID),
		logger.String("window", string(w)),
		logger.Int("upserted", result.Upserted),
		logger.Int("removed", result.Removed),
		logger.Int("failures", ws.Failures),
	)

	return ws, nil
}
