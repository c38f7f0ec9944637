// Package types contains the request and response shapes shared by the
// query service, the recalculation job and the HTTP layer.
package types

import (
	"time"

	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/internal/domain/scoring"
)

// TrendingQuery is a resolved ranking request.
type TrendingQuery struct {
	Lens   model.Lens
	Window model.Window
	Limit  int
	// Period is the raw period value the caller sent, echoed back unchanged.
	Period string
}

// TrendDetails exposes the decomposed score of one ranked item.
type TrendDetails struct {
	UpvoteScore        float64   `json:"upvoteScore"`
	CommentScore       float64   `json:"commentScore"`
	GuessScore         float64   `json:"guessScore"`
	IntroRequestScore  float64   `json:"introRequestScore"`
	IntroAcceptedBonus float64   `json:"introAcceptedBonus"`
	StatusMultiplier   float64   `json:"statusMultiplier"`
	CalculatedAt       time.Time `json:"calculatedAt"`
}

// DetailsOf copies the subscores of a snapshot into TrendDetails.
func DetailsOf(s model.Snapshot) TrendDetails {
	return TrendDetails{
		UpvoteScore:        s.UpvoteScore,
		CommentScore:       s.CommentScore,
		GuessScore:         s.GuessScore,
		IntroRequestScore:  s.IntroRequestScore,
		IntroAcceptedBonus: s.IntroAcceptedBonus,
		StatusMultiplier:   s.StatusMultiplier,
		CalculatedAt:       s.CalculatedAt,
	}
}

// RankedItem is one entry of a ranking response.
type RankedItem struct {
	ID           string       `json:"id"`
	Title        string       `json:"title,omitempty"`
	Tagline      string       `json:"tagline,omitempty"`
	TrendScore   float64      `json:"trendScore"`
	TrendDetails TrendDetails `json:"trendDetails"`
	WhyTrending  string       `json:"whyTrending"`
}

// TrendingResponse is the body of GET /trending.
type TrendingResponse struct {
	Items         []RankedItem    `json:"items"`
	Type          model.Lens      `json:"type"`
	Period        string          `json:"period"`
	Window        model.Window    `json:"window"`
	SnapshotBased bool            `json:"snapshotBased"`
	Complete      bool            `json:"complete"`
	CalculatedAt  time.Time       `json:"calculatedAt"`
	Weights       scoring.Weights `json:"weights"`
	HalfLifeHours float64         `json:"halfLifeHours"`
	Error         string          `json:"error,omitempty"`
}

// ItemTrendResponse is the body of GET /trending/items/{id}.
type ItemTrendResponse struct {
	Item          RankedItem   `json:"item"`
	Window        model.Window `json:"window"`
	SnapshotBased bool         `json:"snapshotBased"`
}

// WindowSummary reports what one recalculation run did to one window.
type WindowSummary struct {
	Window         model.Window `json:"window"`
	ItemsProcessed int          `json:"itemsProcessed"`
	Failures       int          `json:"failures"`
	Removed        int          `json:"removed"`
	Skipped        bool         `json:"skipped"`
	Error          string       `json:"error,omitempty"`
	CalculatedAt   time.Time    `json:"calculatedAt"`
}

// RecalculationSummary is the result of one recalculation run over all windows.
type RecalculationSummary struct {
	RunID          string          `json:"runId"`
	Windows        []WindowSummary `json:"windows"`
	ItemsProcessed int             `json:"itemsProcessed"`
	Failures       int             `json:"failures"`
}

// Failed reports whether every window of the run ended in an error.
func (s RecalculationSummary) Failed() bool {
	if len(s.Windows) == 0 {
		return false
	}
	for _, w := range s.Windows {
		if w.Error == "" {
			return false
		}
	}
	return true
}
