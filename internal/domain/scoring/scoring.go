// Package scoring computes decay-weighted engagement scores for listed items.
//
// Everything in this package is pure: no I/O, no clocks. Callers pass "now"
// explicitly so batch recalculation and on-demand fallback produce the same
// numbers for the same inputs.
package scoring

import (
	"math"
	"time"

	"github.com/okian/trendscore/internal/domain/model"
)

// Default scoring configuration constants.
const (
	DefaultHalfLifeHours = 36.0

	DefaultUpvoteWeight        = 2.0
	DefaultCommentWeight       = 3.0
	DefaultGuessWeight         = 6.0
	DefaultIntroRequestWeight  = 12.0
	DefaultIntroAcceptedWeight = 8.0

	// scoreScale keeps typical final scores in a 0-300 range.
	scoreScale = 100
)

// Weight keys accepted by WithWeightsFromConfig.
const (
	WeightKeyUpvote        = "upvote"
	WeightKeyComment       = "comment"
	WeightKeyGuess         = "guess"
	WeightKeyIntroRequest  = "intro_request"
	WeightKeyIntroAccepted = "intro_accepted"
)

// Weights holds the per-signal base contribution of a fresh event.
type Weights struct {
	Upvote        float64 `json:"upvote"`
	Comment       float64 `json:"comment"`
	Guess         float64 `json:"guess"`
	IntroRequest  float64 `json:"introRequest"`
	IntroAccepted float64 `json:"introAccepted"`
}

// DefaultWeights returns the standard signal weights.
func DefaultWeights() Weights {
	return Weights{
		Upvote:        DefaultUpvoteWeight,
		Comment:       DefaultCommentWeight,
		Guess:         DefaultGuessWeight,
		IntroRequest:  DefaultIntroRequestWeight,
		IntroAccepted: DefaultIntroAcceptedWeight,
	}
}

// For returns the weight of an event kind; unknown kinds weigh nothing.
func (w Weights) For(kind model.EventKind) float64 {
	switch kind {
	case model.KindUpvote:
		return w.Upvote
	case model.KindComment:
		return w.Comment
	case model.KindGuess:
		return w.Guess
	case model.KindIntroRequest:
		return w.IntroRequest
	}
	return 0
}

// Breakdown is the decomposed, pre-multiplier score of one item.
type Breakdown struct {
	Upvote             float64
	Comment            float64
	Guess              float64
	IntroRequest       float64
	IntroAcceptedBonus float64
}

// Base returns the sum of all subscores.
func (b Breakdown) Base() float64 {
	return b.Upvote + b.Comment + b.Guess + b.IntroRequest + b.IntroAcceptedBonus
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithWeights replaces the weights; non-positive fields keep their defaults.
func WithWeights(w Weights) Option {
	return func(c *Calculator) {
		if w.Upvote > 0 {
			c.weights.Upvote = w.Upvote
		}
		if w.Comment > 0 {
			c.weights.Comment = w.Comment
		}
		if w.Guess > 0 {
			c.weights.Guess = w.Guess
		}
		if w.IntroRequest > 0 {
			c.weights.IntroRequest = w.IntroRequest
		}
		if w.IntroAccepted > 0 {
			c.weights.IntroAccepted = w.IntroAccepted
		}
	}
}

// WithWeightsFromConfig sets weights from a configuration map keyed by the
// WeightKey* constants. Unknown keys are ignored.
func WithWeightsFromConfig(weights map[string]float64) Option {
	w := Weights{
		Upvote:        weights[WeightKeyUpvote],
		Comment:       weights[WeightKeyComment],
		Guess:         weights[WeightKeyGuess],
		IntroRequest:  weights[WeightKeyIntroRequest],
		IntroAccepted: weights[WeightKeyIntroAccepted],
	}
	return WithWeights(w)
}

// WithHalfLifeHours sets the decay half-life.
func WithHalfLifeHours(hours float64) Option {
	return func(c *Calculator) {
		if hours > 0 {
			c.halfLifeHours = hours
		}
	}
}

// Calculator turns engagement events into scores.
type Calculator struct {
	weights       Weights
	halfLifeHours float64
}

// NewCalculator creates a calculator with the default weights and half-life.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		weights:       DefaultWeights(),
		halfLifeHours: DefaultHalfLifeHours,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Weights returns the effective weights.
func (c *Calculator) Weights() Weights { return c.weights }

// HalfLifeHours returns the effective half-life.
func (c *Calculator) HalfLifeHours() float64 { return c.halfLifeHours }

// Decay returns the fraction of a contribution left after hoursAgo hours.
// Negative ages are treated as zero.
func (c *Calculator) Decay(hoursAgo float64) float64 {
	if hoursAgo < 0 {
		hoursAgo = 0
	}
	return math.Pow(0.5, hoursAgo/c.halfLifeHours)
}

// Breakdown scores every event in events relative to now.
func (c *Calculator) Breakdown(events []model.Event, now time.Time) Breakdown {
	var b Breakdown
	for _, e := range events {
		decay := c.Decay(now.Sub(e.CreatedAt).Hours())
		contribution := c.weights.For(e.Kind) * decay

		switch e.Kind {
		case model.KindUpvote:
			b.Upvote += contribution
		case model.KindComment:
			b.Comment += contribution
		case model.KindGuess:
			b.Guess += contribution
		case model.KindIntroRequest:
			b.IntroRequest += contribution
			if e.Accepted() {
				b.IntroAcceptedBonus += c.weights.IntroAccepted * decay
			}
		}
	}
	return b
}

// InWindow returns the events created within [now-window, now].
func InWindow(events []model.Event, window model.Window, now time.Time) []model.Event {
	from := now.Add(-window.Duration())
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if e.CreatedAt.Before(from) || e.CreatedAt.After(now) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Snapshot computes the complete snapshot of one item for one window. It is
// the single computation shared by batch recalculation and the live fallback.
func (c *Calculator) Snapshot(item model.ItemStatus, events []model.Event, window model.Window, now time.Time) model.Snapshot {
	b := c.Breakdown(InWindow(events, window, now), now)
	multiplier := StatusMultiplier(item)

	return model.Snapshot{
		ItemID:             item.ID,
		Window:             window,
		Score:              FinalScore(b.Base(), multiplier),
		UpvoteScore:        b.Upvote,
		CommentScore:       b.Comment,
		GuessScore:         b.Guess,
		IntroRequestScore:  b.IntroRequest,
		IntroAcceptedBonus: b.IntroAcceptedBonus,
		StatusMultiplier:   multiplier,
		CalculatedAt:       now,
	}
}

// FinalScore compresses a base score logarithmically and applies the status
// multiplier.
func FinalScore(base, multiplier float64) float64 {
	if base <= 0 {
		return 0
	}
	return math.Log1p(base) * scoreScale * multiplier
}
