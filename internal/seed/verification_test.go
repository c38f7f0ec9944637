package seed_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/internal/domain/scoring"
	"github.com/okian/trendscore/internal/domain/types"
	"github.com/okian/trendscore/internal/seed"
)

func fixture() *seed.Dataset {
	return &seed.Dataset{
		Now: now,
		Listings: []model.ItemStatus{
			{ID: "alpha", SaleStage: model.SaleStageForSale, Verified: true, CreatedAt: now.Add(-72 * time.Hour)},
			{ID: "beta", SaleStage: model.SaleStageNone, CreatedAt: now.Add(-72 * time.Hour)},
		},
		Events: []model.Event{
			{ID: "e1", ItemID: "alpha", Kind: model.KindUpvote, CreatedAt: now.Add(-time.Hour)},
			{ID: "e2", ItemID: "beta", Kind: model.KindComment, CreatedAt: now.Add(-time.Hour)},
			{ID: "e3", ItemID: "beta", Kind: model.KindComment, CreatedAt: now.Add(-2 * time.Hour)},
		},
	}
}

// served renders the ranking a correct server would return.
func served(ds *seed.Dataset, lens model.Lens, ids ...string) seed.Ranking {
	calc := scoring.NewCalculator()
	resp := types.TrendingResponse{
		Type:          lens,
		Window:        model.Window24h,
		SnapshotBased: true,
		Complete:      true,
		Weights:       calc.Weights(),
		HalfLifeHours: calc.HalfLifeHours(),
	}
	for _, id := range ids {
		l, _ := ds.Listing(id)
		s := calc.Snapshot(l, ds.ItemEvents(id), model.Window24h, now)
		resp.Items = append(resp.Items, types.RankedItem{
			ID:           id,
			TrendScore:   s.Score,
			TrendDetails: types.DetailsOf(s),
		})
	}
	r := seed.Ranking{Lens: lens, Window: model.Window24h, Response: resp}
	if len(resp.Items) > 0 {
		r.Top = &types.ItemTrendResponse{Item: resp.Items[0], Window: model.Window24h, SnapshotBased: true}
	}
	return r
}

func TestVerify(t *testing.T) {
	Convey("Given a dataset and the rankings a server returned", t, func() {
		ctx := context.Background()
		ds := fixture()
		stats := &seed.Stats{}

		Convey("When the rankings match the local recomputation", func() {
			errs := seed.Verify(ctx, ds, []seed.Ranking{
				served(ds, model.LensTrending, "beta", "alpha"),
				served(ds, model.LensForSale, "alpha"),
			}, 10, stats)

			Convey("Then nothing should be reported", func() {
				So(errs, ShouldBeEmpty)
				So(stats.ItemsVerified, ShouldEqual, 3)
				So(stats.Mismatches, ShouldEqual, 0)
			})
		})

		Convey("When a score differs", func() {
			r := served(ds, model.LensTrending, "beta", "alpha")
			r.Response.Items[1].TrendScore += 1
			errs := seed.Verify(ctx, ds, []seed.Ranking{r}, 10, stats)

			Convey("Then the item should be reported", func() {
				So(errs, ShouldHaveLength, 1)
				So(errs[0].Error(), ShouldContainSubstring, "item alpha scored")
			})
		})

		Convey("When the order is wrong", func() {
			errs := seed.Verify(ctx, ds, []seed.Ranking{served(ds, model.LensTrending, "alpha", "beta")}, 10, stats)

			Convey("Then the ordering should be reported", func() {
				So(errs, ShouldHaveLength, 1)
				So(errs[0].Error(), ShouldContainSubstring, "ordered before")
			})
		})

		Convey("When a lens filter is violated", func() {
			errs := seed.Verify(ctx, ds, []seed.Ranking{served(ds, model.LensForSale, "beta")}, 10, stats)

			So(errs, ShouldHaveLength, 1)
			So(errs[0].Error(), ShouldContainSubstring, "not for sale")
		})

		Convey("When the limit is exceeded or the ranking was live", func() {
			r := served(ds, model.LensTrending, "beta", "alpha")
			r.Response.SnapshotBased = false
			errs := seed.Verify(ctx, ds, []seed.Ranking{r}, 1, stats)

			So(errs, ShouldHaveLength, 2)
		})

		Convey("When an item is unknown", func() {
			r := served(ds, model.LensTrending, "beta")
			r.Response.Items = append(r.Response.Items, types.RankedItem{ID: "ghost"})
			errs := seed.Verify(ctx, ds, []seed.Ranking{r}, 10, stats)

			So(errs, ShouldHaveLength, 1)
			So(errs[0].Error(), ShouldContainSubstring, "unknown item ghost")
		})
	})
}
