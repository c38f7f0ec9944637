package service_test

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/okian/trendscore/internal/adapters/mq/worker"
	service "github.com/okian/trendscore/internal/app"
	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/internal/domain/scoring"
	"github.com/okian/trendscore/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBuilder_Build(t *testing.T) {
	Convey("Given a builder over a seeded store", t, func() {
		ctx := context.Background()
		store := newFlakyStore()
		seed(t, store)
		items, err := store.Listings(ctx)
		So(err, ShouldBeNil)

		builder := service.NewBuilder(store, scoring.NewCalculator(),
			service.WithBuilderWorkers(2),
			service.WithBuilderQueueSize(1),
			service.WithBuilderRetry(noBackoff),
		)

		Convey("When every item can be read", func() {
			res := builder.Build(ctx, items, model.Window7d, now)

			Convey("Then one snapshot per item should be produced", func() {
				So(res.Failed, ShouldBeEmpty)
				So(res.Snapshots, ShouldHaveLength, len(items))
				got := make([]string, 0, len(res.Snapshots))
				for _, s := range res.Snapshots {
					So(s.Window, ShouldEqual, model.Window7d)
					So(s.CalculatedAt, ShouldEqual, now)
					got = append(got, s.ItemID)
				}
				sort.Strings(got)
				So(got, ShouldResemble, []string{"alpha", "beta", "delta", "gamma"})
			})
		})

		Convey("When one item's events cannot be read", func() {
			store.failItem("delta", true)
			res := builder.Build(ctx, items, model.Window24h, now)

			Convey("Then it should be reported as failed after one retry", func() {
				So(res.Snapshots, ShouldHaveLength, len(items)-1)
				So(res.FailedIDs(), ShouldResemble, []string{"delta"})
				So(errors.Is(res.Failed[0].Err, types.ErrEventStoreUnavailable), ShouldBeTrue)
				So(store.calls("delta"), ShouldEqual, 2)
			})
		})

		Convey("When reading one item's events panics", func() {
			store.panicItem("beta")
			res := builder.Build(ctx, items, model.Window7d, now)

			Convey("Then only that item should fail and the others be scored", func() {
				So(res.FailedIDs(), ShouldResemble, []string{"beta"})
				So(errors.Is(res.Failed[0].Err, worker.ErrPanic), ShouldBeTrue)
				So(res.Snapshots, ShouldHaveLength, len(items)-1)
				for _, s := range res.Snapshots {
					So(s.ItemID, ShouldNotEqual, "beta")
				}
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			res := builder.Build(cctx, items, model.Window24h, now)

			Convey("Then every unscored item should be reported as failed", func() {
				So(len(res.Snapshots)+len(res.Failed), ShouldEqual, len(items))
			})
		})

		Convey("When there are no items", func() {
			res := builder.Build(ctx, nil, model.Window24h, now)

			So(res.Snapshots, ShouldBeEmpty)
			So(res.Failed, ShouldBeEmpty)
		})
	})
}
