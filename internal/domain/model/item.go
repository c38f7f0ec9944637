package model

import "time"

// SaleStage is the listing's position in the sale workflow.
type SaleStage string

// Sale stages as reported by the listing provider.
const (
	SaleStageNone      SaleStage = "NONE"
	SaleStageForSale   SaleStage = "FOR_SALE"
	SaleStageExitReady SaleStage = "EXIT_READY"
	SaleStageSold      SaleStage = "SOLD"
)

// ParseSaleStage maps provider values onto a SaleStage. Unknown values are NONE.
func ParseSaleStage(s string) SaleStage {
	switch SaleStage(s) {
	case SaleStageForSale, SaleStageExitReady, SaleStageSold:
		return SaleStage(s)
	}
	return SaleStageNone
}

// Listed reports whether the item is currently offered to buyers.
func (s SaleStage) Listed() bool {
	return s == SaleStageForSale || s == SaleStageExitReady
}

// ItemStatus is the listing provider's view of an item. Title and Tagline are
// display fields owned by the provider and only echoed back to clients.
type ItemStatus struct {
	ID         string
	Title      string
	Tagline    string
	Verified   bool
	SaleStage  SaleStage
	CreatedAt  time.Time
	LaunchDate *time.Time
}

// LaunchedAt returns the launch date when set, otherwise the creation time.
func (s ItemStatus) LaunchedAt() time.Time {
	if s.LaunchDate != nil && !s.LaunchDate.IsZero() {
		return *s.LaunchDate
	}
	return s.CreatedAt
}

// HoursSinceLaunch returns the non-negative age of the launch in hours.
func (s ItemStatus) HoursSinceLaunch(now time.Time) float64 {
	h := now.Sub(s.LaunchedAt()).Hours()
	if h < 0 {
		return 0
	}
	return h
}
