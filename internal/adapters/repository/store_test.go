package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/trendscore/internal/adapters/repository"
	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2026, 5, 12, 15, 0, 0, 0, time.UTC)

func openStores(t *testing.T) map[string]func() repository.Store {
	return map[string]func() repository.Store{
		repository.DriverMemory: func() repository.Store {
			return repository.NewMemory()
		},
		repository.DriverSQLite: func() repository.Store {
			path := filepath.Join(t.TempDir(), "trend.db")
			s, err := repository.Open(repository.DriverSQLite, path)
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return s
		},
	}
}

func snap(id string, window model.Window, score float64) model.Snapshot {
	return model.Snapshot{
		ItemID:           id,
		Window:           window,
		Score:            score,
		UpvoteScore:      score / 10,
		StatusMultiplier: 1,
		CalculatedAt:     base,
	}
}

func TestStores(t *testing.T) {
	for name, open := range openStores(t) {
		Convey("Given a "+name+" store", t, func() {
			ctx := context.Background()
			store := open()
			defer store.Close()

			launch := base.Add(-2 * time.Hour)
			listings := []model.ItemStatus{
				{ID: "a", Title: "Alpha", Tagline: "first", Verified: true, SaleStage: model.SaleStageForSale, CreatedAt: base.Add(-72 * time.Hour)},
				{ID: "b", Title: "Beta", CreatedAt: base.Add(-5 * time.Hour), LaunchDate: &launch},
			}
			So(store.SaveListings(ctx, listings), ShouldBeNil)

			Convey("When reading listings", func() {
				all, err := store.Listings(ctx)
				So(err, ShouldBeNil)
				So(len(all), ShouldEqual, 2)

				a, err := store.Listing(ctx, "a")
				So(err, ShouldBeNil)
				So(a.Title, ShouldEqual, "Alpha")
				So(a.Verified, ShouldBeTrue)
				So(a.SaleStage, ShouldEqual, model.SaleStageForSale)
				So(a.CreatedAt.Equal(listings[0].CreatedAt), ShouldBeTrue)

				b, err := store.Listing(ctx, "b")
				So(err, ShouldBeNil)
				So(b.SaleStage, ShouldEqual, model.SaleStageNone)
				So(b.LaunchDate, ShouldNotBeNil)
				So(b.LaunchDate.Equal(launch), ShouldBeTrue)

				_, err = store.Listing(ctx, "missing")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(err, types.ErrNotFound), ShouldBeTrue)
			})

			Convey("When a listing is deleted", func() {
				So(store.DeleteListing(ctx, "b"), ShouldBeNil)
				all, err := store.Listings(ctx)
				So(err, ShouldBeNil)
				So(len(all), ShouldEqual, 1)
				So(all[0].ID, ShouldEqual, "a")
			})

			Convey("When events are appended", func() {
				events := []model.Event{
					{ID: "e1", ItemID: "a", UserID: "u1", Kind: model.KindUpvote, CreatedAt: base.Add(-time.Hour)},
					{ID: "e2", ItemID: "a", UserID: "u2", Kind: model.KindIntroRequest, Outcome: model.OutcomeAccepted, CreatedAt: base.Add(-30 * time.Hour)},
					{ID: "e3", ItemID: "b", UserID: "u1", Kind: model.KindComment, CreatedAt: base.Add(-2 * time.Hour)},
					{ID: "e4", ItemID: "b", UserID: "u3", Kind: model.KindGuess, CreatedAt: base.Add(-200 * time.Hour)},
				}
				So(store.AppendEvents(ctx, events), ShouldBeNil)
				So(store.AppendEvents(ctx, events[:1]), ShouldBeNil)

				Convey("Then range queries should be inclusive and ordered by time", func() {
					got, err := store.EventsBetween(ctx, base.Add(-30*time.Hour), base)
					So(err, ShouldBeNil)
					So(len(got), ShouldEqual, 3)
					So(got[0].ID, ShouldEqual, "e2")
					So(got[0].Outcome, ShouldEqual, model.OutcomeAccepted)
					So(got[2].ID, ShouldEqual, "e1")
				})

				Convey("Then item queries should only return that item's events", func() {
					got, err := store.ItemEvents(ctx, "b", base.Add(-7*24*time.Hour), base)
					So(err, ShouldBeNil)
					So(len(got), ShouldEqual, 1)
					So(got[0].Kind, ShouldEqual, model.KindComment)
					So(got[0].UserID, ShouldEqual, "u1")
				})

				Convey("Then a batch with an unknown kind should be rejected whole", func() {
					err := store.AppendEvents(ctx, []model.Event{
						{ID: "e5", ItemID: "a", Kind: model.KindUpvote, CreatedAt: base},
						{ID: "e6", ItemID: "a", Kind: model.EventKind("VIEW"), CreatedAt: base},
					})
					So(errors.Is(err, repository.ErrInvalidEvent), ShouldBeTrue)

					got, err := store.ItemEvents(ctx, "a", base.Add(-time.Hour), base)
					So(err, ShouldBeNil)
					So(len(got), ShouldEqual, 1)
					So(got[0].ID, ShouldEqual, "e1")
				})
			})

			Convey("When a window is written", func() {
				res, err := store.ReplaceWindow(ctx, repository.WindowWrite{
					Window: model.Window24h,
					Rows:   []model.Snapshot{snap("a", model.Window24h, 50), snap("b", model.Window24h, 80)},
				})
				So(err, ShouldBeNil)
				So(res.Upserted, ShouldEqual, 2)
				So(res.Removed, ShouldEqual, 0)

				Convey("Then the window should be listed by score", func() {
					n, err := store.CountSnapshots(ctx, model.Window24h)
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 2)

					list, err := store.ListSnapshots(ctx, model.Window24h)
					So(err, ShouldBeNil)
					So(list[0].ItemID, ShouldEqual, "b")
					So(list[1].ItemID, ShouldEqual, "a")
					So(list[0].CalculatedAt.Equal(base), ShouldBeTrue)

					n, err = store.CountSnapshots(ctx, model.Window7d)
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 0)
				})

				Convey("Then a rewrite should overwrite rather than append", func() {
					_, err := store.ReplaceWindow(ctx, repository.WindowWrite{
						Window: model.Window24h,
						Rows:   []model.Snapshot{snap("a", model.Window24h, 90), snap("b", model.Window24h, 10)},
					})
					So(err, ShouldBeNil)

					n, _ := store.CountSnapshots(ctx, model.Window24h)
					So(n, ShouldEqual, 2)
					got, err := store.GetSnapshot(ctx, model.Window24h, "a")
					So(err, ShouldBeNil)
					So(got.Score, ShouldEqual, 90)
				})

				Convey("Then items absent from the write set should be removed unless retained", func() {
					res, err := store.ReplaceWindow(ctx, repository.WindowWrite{
						Window: model.Window24h,
						Rows:   []model.Snapshot{snap("c", model.Window24h, 5)},
						Retain: []string{"a"},
					})
					So(err, ShouldBeNil)
					So(res.Upserted, ShouldEqual, 1)
					So(res.Removed, ShouldEqual, 1)

					kept, err := store.GetSnapshot(ctx, model.Window24h, "a")
					So(err, ShouldBeNil)
					So(kept.Score, ShouldEqual, 50)

					_, err = store.GetSnapshot(ctx, model.Window24h, "b")
					So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				})

				Convey("Then other windows should be untouched", func() {
					_, err := store.ReplaceWindow(ctx, repository.WindowWrite{Window: model.Window7d})
					So(err, ShouldBeNil)
					n, _ := store.CountSnapshots(ctx, model.Window24h)
					So(n, ShouldEqual, 2)
				})
			})

			Convey("When locking a window", func() {
				ttl := time.Minute
				ok, err := store.TryLock(ctx, "7d", "run-1", ttl, base)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)

				Convey("Then another owner should be refused until expiry", func() {
					ok, err := store.TryLock(ctx, "7d", "run-2", ttl, base.Add(30*time.Second))
					So(err, ShouldBeNil)
					So(ok, ShouldBeFalse)

					ok, err = store.TryLock(ctx, "24h", "run-2", ttl, base)
					So(err, ShouldBeNil)
					So(ok, ShouldBeTrue)

					ok, err = store.TryLock(ctx, "7d", "run-2", ttl, base.Add(2*time.Minute))
					So(err, ShouldBeNil)
					So(ok, ShouldBeTrue)
				})

				Convey("Then unlocking should free the name for others", func() {
					So(store.Unlock(ctx, "7d", "run-2"), ShouldBeNil)
					ok, _ := store.TryLock(ctx, "7d", "run-2", ttl, base)
					So(ok, ShouldBeFalse)

					So(store.Unlock(ctx, "7d", "run-1"), ShouldBeNil)
					ok, err := store.TryLock(ctx, "7d", "run-2", ttl, base)
					So(err, ShouldBeNil)
					So(ok, ShouldBeTrue)
				})

				Convey("Then a non-positive ttl should be rejected", func() {
					_, err := store.TryLock(ctx, "x", "run-1", 0, base)
					So(errors.Is(err, repository.ErrInvalidTTL), ShouldBeTrue)
				})
			})
		})
	}
}

func TestOpen(t *testing.T) {
	Convey("Given an unknown driver", t, func() {
		_, err := repository.Open("postgres", "")
		So(errors.Is(err, repository.ErrUnknownStore), ShouldBeTrue)
	})

	Convey("Given a closed memory store", t, func() {
		s := repository.NewMemory()
		So(s.Close(), ShouldBeNil)
		_, err := s.Listings(context.Background())
		So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
	})
}
