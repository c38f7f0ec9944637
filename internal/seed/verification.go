package seed

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/internal/domain/ranking"
	"github.com/okian/trendscore/internal/domain/scoring"
	"github.com/okian/trendscore/internal/domain/types"
	"github.com/okian/trendscore/pkg/logger"
)

// Verify checks every ranking against a local recomputation over ds. It
// returns one error per mismatch.
func Verify(ctx context.Context, ds *Dataset, rankings []Ranking, limit int, stats *Stats) []error {
	var errs []error
	for _, r := range rankings {
		errs = append(errs, verifyRanking(ds, r, limit, stats)...)
	}
	stats.Mismatches = len(errs)

	for _, err := range errs {
		logger.Get().Warn(ctx, "verification mismatch", logger.Error(err))
	}
	logger.Get().Info(ctx, "verification completed",
		logger.Int("rankings", len(rankings)),
		logger.Int("itemsVerified", stats.ItemsVerified),
		logger.Int("mismatches", len(errs)))
	return errs
}

func verifyRanking(ds *Dataset, r Ranking, limit int, stats *Stats) []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s/%s: "+format, append([]any{r.Lens, r.Window}, args...)...))
	}

	resp := r.Response
	if !resp.SnapshotBased {
		fail("served live although snapshots were just written")
	}
	if limit > 0 && len(resp.Items) > limit {
		fail("%d items exceed limit %d", len(resp.Items), limit)
	}

	calc := scoring.NewCalculator(
		scoring.WithWeights(resp.Weights),
		scoring.WithHalfLifeHours(resp.HalfLifeHours),
	)

	for i, item := range resp.Items {
		if i > 0 && ranking.Compare(r.Lens, snapshotOf(resp.Items[i-1], r.Window), snapshotOf(item, r.Window)) > 0 {
			fail("item %d (%s) is ordered before a higher ranked item", i-1, resp.Items[i-1].ID)
		}

		listing, ok := ds.Listing(item.ID)
		if !ok {
			fail("unknown item %s", item.ID)
			continue
		}
		if r.Lens == model.LensForSale && !listing.SaleStage.Listed() {
			fail("item %s with stage %s is not for sale", item.ID, listing.SaleStage)
		}

		want := calc.Snapshot(listing, ds.ItemEvents(item.ID), r.Window, item.TrendDetails.CalculatedAt)
		if !approxEqual(want.Score, item.TrendScore) {
			fail("item %s scored %.6f, local recomputation %.6f", item.ID, item.TrendScore, want.Score)
		}
		if !approxEqual(want.StatusMultiplier, item.TrendDetails.StatusMultiplier) {
			fail("item %s multiplier %.2f, expected %.2f", item.ID, item.TrendDetails.StatusMultiplier, want.StatusMultiplier)
		}
		stats.ItemsVerified++
	}

	if r.Top != nil && len(resp.Items) > 0 {
		head := resp.Items[0]
		if r.Top.Item.ID != head.ID || !approxEqual(r.Top.Item.TrendScore, head.TrendScore) {
			fail("item endpoint returned %s %.6f for top item %s %.6f", r.Top.Item.ID, r.Top.Item.TrendScore, head.ID, head.TrendScore)
		}
	}

	return errs
}

func snapshotOf(item types.RankedItem, window model.Window) model.Snapshot {
	d := item.TrendDetails
	return model.Snapshot{
		ItemID:             item.ID,
		Window:             window,
		Score:              item.TrendScore,
		UpvoteScore:        d.UpvoteScore,
		CommentScore:       d.CommentScore,
		GuessScore:         d.GuessScore,
		IntroRequestScore:  d.IntroRequestScore,
		IntroAcceptedBonus: d.IntroAcceptedBonus,
		StatusMultiplier:   d.StatusMultiplier,
		CalculatedAt:       d.CalculatedAt,
	}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= ScoreTolerance*math.Max(1, math.Abs(b))
}
