package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/okian/trendscore/internal/adapters/repository"
	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/internal/domain/ranking"
	"github.com/okian/trendscore/internal/domain/scoring"
	"github.com/okian/trendscore/internal/domain/types"
	"github.com/okian/trendscore/internal/platform/retry"
	"github.com/okian/trendscore/pkg/logger"
	"github.com/okian/trendscore/pkg/metrics"
)

const defaultFallbackTimeout = 10 * time.Second

// LegacyComputation is the outcome of one on-demand ranking computation.
// Candidates are filtered for the lens but not sorted; callers must not
// modify the slice since concurrent callers share it.
type LegacyComputation struct {
	Candidates []ranking.Candidate
	Now        time.Time
}

// LegacyCalculator scores a window on demand when no snapshots exist. It runs
// the same per-item computation as the Builder and caches nothing.
type LegacyCalculator struct {
	events   repository.EventSource
	listings repository.ListingSource
	calc     *scoring.Calculator
	clock    clockwork.Clock
	location *time.Location
	timeout  time.Duration
	policy   retry.Policy

	group singleflight.Group

	logger logger.Logger
}

// LegacyOption applies a configuration option to the LegacyCalculator.
type LegacyOption func(*LegacyCalculator)

// WithLegacyClock sets the clock that supplies "now".
func WithLegacyClock(c clockwork.Clock) LegacyOption {
	return func(l *LegacyCalculator) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithLegacyLocation sets the time zone of the today lens.
func WithLegacyLocation(loc *time.Location) LegacyOption {
	return func(l *LegacyCalculator) {
		if loc != nil {
			l.location = loc
		}
	}
}

// WithFallbackTimeout bounds one shared computation.
func WithFallbackTimeout(d time.Duration) LegacyOption {
	return func(l *LegacyCalculator) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLegacyRetry sets the retry policy for store reads.
func WithLegacyRetry(p retry.Policy) LegacyOption {
	return func(l *LegacyCalculator) { l.policy = p }
}

// WithLegacyLogger sets a custom logger.
func WithLegacyLogger(lg logger.Logger) LegacyOption {
	return func(l *LegacyCalculator) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// NewLegacyCalculator creates a fallback calculator.
func NewLegacyCalculator(events repository.EventSource, listings repository.ListingSource, calc *scoring.Calculator, opts ...LegacyOption) *LegacyCalculator {
	l := &LegacyCalculator{
		events:   events,
		listings: listings,
		calc:     calc,
		clock:    clockwork.NewRealClock(),
		location: time.UTC,
		timeout:  defaultFallbackTimeout,
		policy:   retry.Policy{MaxAttempts: retry.DefaultMaxAttempts},
		logger:   logger.Get().Named("legacy"),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Compute scores every item passing the lens filter for window. Concurrent
// calls for the same lens and window share one computation, which outlives
// a cancelled caller but not the fallback timeout.
func (l *LegacyCalculator) Compute(ctx context.Context, lens model.Lens, window model.Window) (LegacyComputation, error) {
	key := string(lens) + "|" + string(window)

	ch := l.group.DoChan(key, func() (any, error) {
		metrics.RecordFallbackComputation()
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		return l.compute(cctx, lens, window)
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.RecordFallbackShared()
		}
		if res.Err != nil {
			metrics.RecordFallbackError()
			return LegacyComputation{}, res.Err
		}
		return res.Val.(LegacyComputation), nil
	case <-ctx.Done():
		return LegacyComputation{}, fmt.Errorf("%w: %w", types.ErrComputationUnavailable, ctx.Err())
	}
}

func (l *LegacyCalculator) compute(ctx context.Context, lens model.Lens, window model.Window) (LegacyComputation, error) {
	now := l.clock.Now().UTC().Truncate(time.Millisecond)
	clock := ranking.Clock{Now: now, Location: l.location}

	items, err := storeCall(ctx, l.policy, "listings", func(ctx context.Context) ([]model.ItemStatus, error) {
		return l.listings.Listings(ctx)
	})
	if err != nil {
		return LegacyComputation{}, fmt.Errorf("%w: read listings: %w", types.ErrComputationUnavailable, err)
	}

	// Status-only filters run before the event read.
	cands := make([]ranking.Candidate, 0, len(items))
	for _, item := range items {
		if ranking.Matches(lens, item, clock) {
			cands = append(cands, ranking.Candidate{Status: item})
		}
	}

	from := now.Add(-window.Duration())
	events, err := storeCall(ctx, l.policy, "events_between", func(ctx context.Context) ([]model.Event, error) {
		return l.events.EventsBetween(ctx, from, now)
	})
	if err != nil {
		return LegacyComputation{}, fmt.Errorf("%w: %w: %w", types.ErrComputationUnavailable, types.ErrEventStoreUnavailable, err)
	}

	byItem := make(map[string][]model.Event, len(cands))
	for _, e := range events {
		byItem[e.ItemID] = append(byItem[e.ItemID], e)
	}

	for i := range cands {
		cands[i].Snapshot = l.calc.Snapshot(cands[i].Status, byItem[cands[i].Status.ID], window, now)
	}

	l.logger.Debug(ctx, "fallback ranking computed",
		logger.String("lens", string(lens)),
		logger.String("window", string(window)),
		logger.Int("items", len(cands)),
		logger.Int("events", len(events)),
	)

	return LegacyComputation{Candidates: cands, Now: now}, nil
}

// Item scores a single item for window on demand.
func (l *LegacyCalculator) Item(ctx context.Context, window model.Window, itemID string) (ranking.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	now := l.clock.Now().UTC().Truncate(time.Millisecond)

	item, err := storeCall(ctx, l.policy, "listing", func(ctx context.Context) (model.ItemStatus, error) {
		return l.listings.Listing(ctx, itemID)
	})
	if err != nil {
		return ranking.Candidate{}, wrapLookup(err)
	}

	events, err := storeCall(ctx, l.policy, "item_events", func(ctx context.Context) ([]model.Event, error) {
		return l.events.ItemEvents(ctx, itemID, now.Add(-window.Duration()), now)
	})
	if err != nil {
		return ranking.Candidate{}, fmt.Errorf("%w: %w: %w", types.ErrComputationUnavailable, types.ErrEventStoreUnavailable, err)
	}

	return ranking.Candidate{
		Snapshot: l.calc.Snapshot(item, events, window, now),
		Status:   item,
	}, nil
}
