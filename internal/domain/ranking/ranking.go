// Package ranking applies lens filters and orderings to scored snapshots.
package ranking

import (
	"cmp"
	"slices"
	"time"

	"github.com/okian/trendscore/internal/domain/model"
)

// NewItemAge is how recently an item must have been created to appear under
// the "new" lens.
const NewItemAge = 48 * time.Hour

// Candidate is a snapshot joined with its item's current status.
type Candidate struct {
	Snapshot model.Snapshot
	Status   model.ItemStatus
}

// Clock is the point in time and time zone a lens is evaluated in.
type Clock struct {
	Now      time.Time
	Location *time.Location
}

func (c Clock) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Matches reports whether an item passes the lens filter.
func Matches(lens model.Lens, item model.ItemStatus, clock Clock) bool {
	switch lens {
	case model.LensToday:
		return SameDay(item.LaunchedAt(), clock.Now, clock.location())
	case model.LensForSale:
		return item.SaleStage.Listed()
	case model.LensNew:
		return !item.CreatedAt.Before(clock.Now.Add(-NewItemAge))
	}
	return true
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// Filter keeps the candidates matching lens, preserving their order.
func Filter(cands []Candidate, lens model.Lens, clock Clock) []Candidate {
	if !lens.NeedsStatus() {
		return cands
	}
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if Matches(lens, c.Status, clock) {
			out = append(out, c)
		}
	}
	return out
}

// Compare orders two snapshots for lens: the lens key descending, then score
// descending, then calculatedAt descending, then item id ascending.
func Compare(lens model.Lens, a, b model.Snapshot) int {
	if lens == model.LensHot {
		if c := cmp.Compare(b.Engagement(), a.Engagement()); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := b.CalculatedAt.Compare(a.CalculatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ItemID, b.ItemID)
}

// Sort orders candidates in place for lens.
func Sort(cands []Candidate, lens model.Lens) {
	slices.SortFunc(cands, func(a, b Candidate) int {
		return Compare(lens, a.Snapshot, b.Snapshot)
	})
}

// Rank filters, sorts and truncates candidates. The input slice is not
// modified. A non-positive limit returns every match.
func Rank(cands []Candidate, lens model.Lens, limit int, clock Clock) []Candidate {
	out := slices.Clone(Filter(cands, lens, clock))
	Sort(out, lens)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
