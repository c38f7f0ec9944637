package scoring

import "github.com/okian/trendscore/internal/domain/model"

// Status modifiers. They are independent factors and commute.
const (
	VerifiedMultiplier = 1.15
	ListedMultiplier   = 1.10
	SoldMultiplier     = 0.20
)

// StatusMultiplier resolves an item's status flags into one multiplicative
// modifier. SOLD replaces the for-sale bonus rather than stacking with it.
func StatusMultiplier(item model.ItemStatus) float64 {
	m := 1.0
	if item.Verified {
		m *= VerifiedMultiplier
	}
	switch {
	case item.SaleStage == model.SaleStageSold:
		m *= SoldMultiplier
	case item.SaleStage.Listed():
		m *= ListedMultiplier
	}
	return m
}
