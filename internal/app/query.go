package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/trendscore/internal/adapters/repository"
	"github.com/okian/trendscore/internal/domain/explain"
	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/internal/domain/ranking"
	"github.com/okian/trendscore/internal/domain/scoring"
	"github.com/okian/trendscore/internal/domain/types"
	"github.com/okian/trendscore/internal/platform/retry"
	"github.com/okian/trendscore/pkg/logger"
	"github.com/okian/trendscore/pkg/metrics"
)

// Default ranking limits.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// QueryService answers ranking requests from snapshots, falling back to the
// legacy calculator while a window has none.
type QueryService struct {
	snapshots repository.SnapshotStore
	listings  repository.ListingSource
	legacy    *LegacyCalculator
	calc      *scoring.Calculator
	explainer *explain.Generator

	clock        clockwork.Clock
	location     *time.Location
	policy       retry.Policy
	defaultLimit int
	maxLimit     int

	logger logger.Logger
}

// QueryOption applies a configuration option to the QueryService.
type QueryOption func(*QueryService)

// WithQueryClock sets the clock used for lens evaluation.
func WithQueryClock(c clockwork.Clock) QueryOption {
	return func(q *QueryService) {
		if c != nil {
			q.clock = c
		}
	}
}

// WithQueryLocation sets the time zone of the today lens.
func WithQueryLocation(loc *time.Location) QueryOption {
	return func(q *QueryService) {
		if loc != nil {
			q.location = loc
		}
	}
}

// WithQueryRetry sets the retry policy for store reads.
func WithQueryRetry(p retry.Policy) QueryOption {
	return func(q *QueryService) { q.policy = p }
}

// WithLimits sets the default and maximum result sizes.
func WithLimits(defaultLimit, maxLimit int) QueryOption {
	return func(q *QueryService) {
		if maxLimit > 0 {
			q.maxLimit = maxLimit
		}
		if defaultLimit > 0 && defaultLimit <= q.maxLimit {
			q.defaultLimit = defaultLimit
		}
	}
}

// WithQueryLogger sets a custom logger.
func WithQueryLogger(l logger.Logger) QueryOption {
	return func(q *QueryService) {
		if l != nil {
			q.logger = l
		}
	}
}

// NewQueryService creates a query service.
func NewQueryService(
	snapshots repository.SnapshotStore,
	listings repository.ListingSource,
	legacy *LegacyCalculator,
	calc *scoring.Calculator,
	opts ...QueryOption,
) *QueryService {
	q := &QueryService{
		snapshots:    snapshots,
		listings:     listings,
		legacy:       legacy,
		calc:         calc,
		explainer:    explain.NewGenerator(calc.Weights()),
		clock:        clockwork.NewRealClock(),
		location:     time.UTC,
		policy:       retry.Policy{MaxAttempts: retry.DefaultMaxAttempts},
		defaultLimit: DefaultLimit,
		maxLimit:     MaxLimit,
		logger:       logger.Get().Named("query"),
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// ResolveQuery turns raw request parameters into a query. Unknown lenses and
// windows fall back to their defaults; a missing, malformed or non-positive
// limit selects the default and large limits are clamped.
func (q *QueryService) ResolveQuery(lens, period, limit string) types.TrendingQuery {
	l, _ := model.ParseLens(strings.TrimSpace(lens))
	w, _ := model.ParseWindow(strings.TrimSpace(period))
	return types.TrendingQuery{
		Lens:   l,
		Window: w,
		Limit:  q.resolveLimit(limit),
		Period: period,
	}
}

func (q *QueryService) resolveLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return q.defaultLimit
	}
	if n > q.maxLimit {
		return q.maxLimit
	}
	return n
}

// Trending ranks the items of a window under a lens.
func (q *QueryService) Trending(ctx context.Context, query types.TrendingQuery) (types.TrendingResponse, error) {
	start := q.clock.Now()
	if query.Limit <= 0 || query.Limit > q.maxLimit {
		query.Limit = q.resolveLimit(strconv.Itoa(query.Limit))
	}
	if query.Period == "" {
		query.Period = string(query.Window)
	}

	resp, source, err := q.trending(ctx, query)

	metrics.RecordRankingQuery(string(query.Lens), string(query.Window), source)
	metrics.RecordRankingLatency(source, q.clock.Since(start).Seconds())

	if err != nil {
		metrics.RecordErrorByComponent("query", types.ErrorCode(err))
		q.logger.Warn(ctx, "ranking query failed",
			logger.String("lens", string(query.Lens)),
			logger.String("window", string(query.Window)),
			logger.Error(err),
		)
		resp = q.response(query, nil, false, false, time.Time{})
		resp.Error = types.ErrorCode(err)
		return resp, err
	}
	return resp, nil
}

func (q *QueryService) trending(ctx context.Context, query types.TrendingQuery) (types.TrendingResponse, string, error) {
	count, err := storeCall(ctx, q.policy, "count_snapshots", func(ctx context.Context) (int, error) {
		return q.snapshots.CountSnapshots(ctx, query.Window)
	})
	if err != nil {
		return types.TrendingResponse{}, metrics.SourceError, fmt.Errorf("%w: count snapshots: %w", types.ErrComputationUnavailable, err)
	}

	if count == 0 {
		comp, err := q.legacy.Compute(ctx, query.Lens, query.Window)
		if err != nil {
			return types.TrendingResponse{}, metrics.SourceError, err
		}
		clock := ranking.Clock{Now: comp.Now, Location: q.location}
		ranked := ranking.Rank(comp.Candidates, query.Lens, query.Limit, clock)
		return q.response(query, q.items(ranked, query.Lens, comp.Now), false, true, comp.Now), metrics.SourceFallback, nil
	}

	snaps, err := storeCall(ctx, q.policy, "list_snapshots", func(ctx context.Context) ([]model.Snapshot, error) {
		return q.snapshots.ListSnapshots(ctx, query.Window)
	})
	if err != nil {
		return types.TrendingResponse{}, metrics.SourceError, fmt.Errorf("%w: list snapshots: %w", types.ErrComputationUnavailable, err)
	}

	complete := true
	items, err := storeCall(ctx, q.policy, "listings", func(ctx context.Context) ([]model.ItemStatus, error) {
		return q.listings.Listings(ctx)
	})
	if err != nil {
		if query.Lens.NeedsStatus() {
			return types.TrendingResponse{}, metrics.SourceError, fmt.Errorf("%w: read listings: %w", types.ErrComputationUnavailable, err)
		}
		q.logger.Warn(ctx, "listings unavailable, ranking from snapshots only", logger.Error(err))
		complete = false
	}

	cands := join(snaps, items, complete)

	var calculatedAt time.Time
	for _, s := range snaps {
		if s.CalculatedAt.After(calculatedAt) {
			calculatedAt = s.CalculatedAt
		}
	}

	now := q.clock.Now()
	ranked := ranking.Rank(cands, query.Lens, query.Limit, ranking.Clock{Now: now, Location: q.location})
	return q.response(query, q.items(ranked, query.Lens, now), true, complete, calculatedAt), metrics.SourceSnapshot, nil
}

// join pairs snapshots with listing status, dropping snapshots of items the
// listing provider no longer knows. Without listings every snapshot is kept
// with a bare status.
func join(snaps []model.Snapshot, items []model.ItemStatus, withListings bool) []ranking.Candidate {
	out := make([]ranking.Candidate, 0, len(snaps))
	if !withListings {
		for _, s := range snaps {
			out = append(out, ranking.Candidate{Snapshot: s, Status: model.ItemStatus{ID: s.ItemID}})
		}
		return out
	}

	byID := make(map[string]model.ItemStatus, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	for _, s := range snaps {
		status, ok := byID[s.ItemID]
		if !ok {
			continue
		}
		out = append(out, ranking.Candidate{Snapshot: s, Status: status})
	}
	return out
}

func (q *QueryService) items(ranked []ranking.Candidate, lens model.Lens, now time.Time) []types.RankedItem {
	out := make([]types.RankedItem, 0, len(ranked))
	for _, c := range ranked {
		out = append(out, q.rankedItem(c, lens, now))
	}
	return out
}

func (q *QueryService) rankedItem(c ranking.Candidate, lens model.Lens, now time.Time) types.RankedItem {
	var hours float64
	if !c.Status.CreatedAt.IsZero() {
		hours = c.Status.HoursSinceLaunch(now)
	}
	return types.RankedItem{
		ID:           c.Snapshot.ItemID,
		Title:        c.Status.Title,
		Tagline:      c.Status.Tagline,
		TrendScore:   c.Snapshot.Score,
		TrendDetails: types.DetailsOf(c.Snapshot),
		WhyTrending: q.explainer.Explain(explain.Input{
			Snapshot:         c.Snapshot,
			Status:           c.Status,
			HoursSinceLaunch: hours,
			Lens:             lens,
		}),
	}
}

func (q *QueryService) response(query types.TrendingQuery, items []types.RankedItem, snapshotBased, complete bool, calculatedAt time.Time) types.TrendingResponse {
	if items == nil {
		items = []types.RankedItem{}
	}
	return types.TrendingResponse{
		Items:         items,
		Type:          query.Lens,
		Period:        query.Period,
		Window:        query.Window,
		SnapshotBased: snapshotBased,
		Complete:      complete,
		CalculatedAt:  calculatedAt,
		Weights:       q.calc.Weights(),
		HalfLifeHours: q.calc.HalfLifeHours(),
	}
}

// ItemTrend returns the trend of one item in window. Windows without any
// snapshot are computed on demand.
func (q *QueryService) ItemTrend(ctx context.Context, window model.Window, itemID string) (types.ItemTrendResponse, error) {
	snap, err := storeCall(ctx, q.policy, "get_snapshot", func(ctx context.Context) (model.Snapshot, error) {
		return q.snapshots.GetSnapshot(ctx, window, itemID)
	})
	switch {
	case err == nil:
	case errors.Is(err, types.ErrNotFound):
		return q.itemFallback(ctx, window, itemID, err)
	default:
		return types.ItemTrendResponse{}, fmt.Errorf("%w: get snapshot: %w", types.ErrComputationUnavailable, err)
	}

	status, err := storeCall(ctx, q.policy, "listing", func(ctx context.Context) (model.ItemStatus, error) {
		return q.listings.Listing(ctx, itemID)
	})
	switch {
	case err == nil:
	case errors.Is(err, types.ErrNotFound):
		return types.ItemTrendResponse{}, fmt.Errorf("item %s: %w", itemID, err)
	default:
		q.logger.Warn(ctx, "listing unavailable for item trend",
			logger.String("item_id", itemID),
			logger.Error(err),
		)
		status = model.ItemStatus{ID: itemID}
	}

	return types.ItemTrendResponse{
		Item:          q.rankedItem(ranking.Candidate{Snapshot: snap, Status: status}, model.LensTrending, q.clock.Now()),
		Window:        window,
		SnapshotBased: true,
	}, nil
}

func (q *QueryService) itemFallback(ctx context.Context, window model.Window, itemID string, notFound error) (types.ItemTrendResponse, error) {
	count, err := storeCall(ctx, q.policy, "count_snapshots", func(ctx context.Context) (int, error) {
		return q.snapshots.CountSnapshots(ctx, window)
	})
	if err != nil {
		return types.ItemTrendResponse{}, fmt.Errorf("%w: count snapshots: %w", types.ErrComputationUnavailable, err)
	}
	if count > 0 {
		return types.ItemTrendResponse{}, fmt.Errorf("item %s: %w", itemID, notFound)
	}

	c, err := q.legacy.Item(ctx, window, itemID)
	if err != nil {
		return types.ItemTrendResponse{}, err
	}
	return types.ItemTrendResponse{
		Item:          q.rankedItem(c, model.LensTrending, c.Snapshot.CalculatedAt),
		Window:        window,
		SnapshotBased: false,
	}, nil
}
