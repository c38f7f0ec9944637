package repository

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/trendscore/internal/domain/model"
)

func snap(id string, score float64, at time.Time) model.Snapshot {
	return model.Snapshot{ItemID: id, Window: model.Window24h, Score: score, CalculatedAt: at}
}

func ids(snaps []model.Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.ItemID
	}
	return out
}

// checkTreap verifies the heap property on priorities and the cached sizes.
func checkTreap(n *node) int {
	if n == nil {
		return 0
	}
	if n.left != nil && n.left.prio > n.prio || n.right != nil && n.right.prio > n.prio {
		panic("heap property violated")
	}
	size := 1 + checkTreap(n.left) + checkTreap(n.right)
	if size != n.size {
		panic(fmt.Sprintf("size %d cached as %d", size, n.size))
	}
	return size
}

func TestSnapshotIndex(t *testing.T) {
	Convey("Given an empty snapshot index", t, func() {
		at := time.Date(2026, 5, 12, 15, 0, 0, 0, time.UTC)
		x := newSnapshotIndex()

		So(x.len(), ShouldEqual, 0)
		So(x.collect(0), ShouldBeEmpty)

		Convey("When snapshots are inserted", func() {
			x.upsert(snap("c", 10, at))
			x.upsert(snap("a", 30, at))
			x.upsert(snap("b", 10, at))
			x.upsert(snap("d", 10, at.Add(time.Minute)))

			Convey("Then traversal should follow score, recency and id", func() {
				So(ids(x.collect(0)), ShouldResemble, []string{"a", "d", "b", "c"})
				So(x.len(), ShouldEqual, 4)
			})

			Convey("And a limit should cut the traversal", func() {
				So(ids(x.collect(2)), ShouldResemble, []string{"a", "d"})
			})

			Convey("And an upsert should move the item", func() {
				x.upsert(snap("c", 50, at))
				So(ids(x.collect(0)), ShouldResemble, []string{"c", "a", "d", "b"})
				So(x.len(), ShouldEqual, 4)
				got, ok := x.get("c")
				So(ok, ShouldBeTrue)
				So(got.Score, ShouldEqual, 50)
			})

			Convey("And a removal should drop only that item", func() {
				So(x.remove("d"), ShouldBeTrue)
				So(x.remove("d"), ShouldBeFalse)
				So(ids(x.collect(0)), ShouldResemble, []string{"a", "b", "c"})
				_, ok := x.get("d")
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When many random operations are applied", func() {
			rng := rand.New(rand.NewPCG(1, 2))
			want := map[string]model.Snapshot{}
			for i := 0; i < 2000; i++ {
				id := fmt.Sprintf("item-%03d", rng.IntN(300))
				if rng.IntN(4) == 0 {
					x.remove(id)
					delete(want, id)
					continue
				}
				s := snap(id, float64(rng.IntN(50)), at.Add(time.Duration(rng.IntN(3))*time.Minute))
				x.upsert(s)
				want[id] = s
			}

			Convey("Then the index should match a sorted copy", func() {
				expected := make([]model.Snapshot, 0, len(want))
				for _, s := range want {
					expected = append(expected, s)
				}
				slices.SortFunc(expected, func(a, b model.Snapshot) int {
					if less(a, b) {
						return -1
					}
					return 1
				})

				So(ids(x.collect(0)), ShouldResemble, ids(expected))
				So(x.len(), ShouldEqual, len(want))
				So(func() { checkTreap(x.root) }, ShouldNotPanic)
			})
		})
	})
}
