// Package explain renders the short "why is this trending" string shown next
// to every ranked item.
//
// Counts are approximated by inverting the decay-weighted subscores
// (round(subscore / weight)). The inversion is lossy and is a display
// heuristic only: nothing in the engine feeds these counts back into scoring.
package explain

import (
	"fmt"
	"math"
	"strings"

	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/internal/domain/scoring"
)

// GenericReason is returned when there is nothing specific to say.
const GenericReason = "Picking up momentum"

// Markers appended on the trending lens.
const (
	AcceptedIntroMarker = "🔥"
	IntroRequestMarker  = "⚡"
)

const separator = " · "

// Input is everything the generator needs about one ranked item.
type Input struct {
	Snapshot         model.Snapshot
	Status           model.ItemStatus
	HoursSinceLaunch float64
	Lens             model.Lens
}

// Counts are approximate event counts recovered from subscores.
type Counts struct {
	Upvotes       int
	Comments      int
	Guesses       int
	IntroRequests int
}

func (c Counts) zero() bool {
	return c.Upvotes == 0 && c.Comments == 0 && c.Guesses == 0 && c.IntroRequests == 0
}

// Generator produces explanations with a fixed set of weights.
type Generator struct {
	weights scoring.Weights
}

// NewGenerator creates a generator that inverts subscores with weights.
func NewGenerator(weights scoring.Weights) *Generator {
	return &Generator{weights: weights}
}

// ApproximateCount inverts a decay-weighted subscore back to an event count.
func ApproximateCount(subscore, weight float64) int {
	if weight <= 0 || subscore <= 0 || math.IsNaN(subscore) || math.IsInf(subscore, 0) {
		return 0
	}
	return int(math.Round(subscore / weight))
}

// Counts approximates the event counts behind a snapshot.
func (g *Generator) Counts(s model.Snapshot) Counts {
	return Counts{
		Upvotes:       ApproximateCount(s.UpvoteScore, g.weights.Upvote),
		Comments:      ApproximateCount(s.CommentScore, g.weights.Comment),
		Guesses:       ApproximateCount(s.GuessScore, g.weights.Guess),
		IntroRequests: ApproximateCount(s.IntroRequestScore, g.weights.IntroRequest),
	}
}

// Explain returns the display string for one item under one lens. It never
// fails; degenerate input yields GenericReason.
func (g *Generator) Explain(in Input) string {
	c := g.Counts(in.Snapshot)
	if c.zero() {
		return GenericReason
	}

	switch in.Lens {
	case model.LensToday:
		if c.Upvotes > 0 {
			return plural(c.Upvotes, "upvote") + " today"
		}
		return join("Launched today", signals(c))
	case model.LensForSale:
		out := join(stagePhrase(in.Status.SaleStage), signals(c))
		if in.Status.Verified {
			out += " (Verified)"
		}
		return out
	case model.LensNew:
		return join(launchPhrase(in.HoursSinceLaunch), signals(c))
	case model.LensHot:
		if c.Upvotes == 0 && c.Comments == 0 {
			return signals(c)
		}
		return plural(c.Upvotes, "upvote") + " and " + plural(c.Comments, "comment")
	}

	out := signals(c)
	switch {
	case in.Snapshot.IntroAcceptedBonus > 0:
		out += " " + AcceptedIntroMarker
	case in.Snapshot.IntroRequestScore > 0:
		out += " " + IntroRequestMarker
	}
	return out
}

func signals(c Counts) string {
	parts := make([]string, 0, 4)
	if c.Upvotes > 0 {
		parts = append(parts, plural(c.Upvotes, "upvote"))
	}
	if c.Comments > 0 {
		parts = append(parts, plural(c.Comments, "comment"))
	}
	if c.Guesses > 0 {
		parts = append(parts, plural(c.Guesses, "revenue guess"))
	}
	if c.IntroRequests > 0 {
		parts = append(parts, plural(c.IntroRequests, "intro request"))
	}
	return strings.Join(parts, separator)
}

func stagePhrase(stage model.SaleStage) string {
	switch stage {
	case model.SaleStageForSale:
		return "For sale"
	case model.SaleStageExitReady:
		return "Exit ready"
	case model.SaleStageSold:
		return "Sold"
	}
	return ""
}

func launchPhrase(hours float64) string {
	h := int(math.Floor(hours))
	if h < 1 {
		return "Just launched"
	}
	return "Launched " + plural(h, "hour") + " ago"
}

func join(head, tail string) string {
	switch {
	case head == "":
		return tail
	case tail == "":
		return head
	}
	return head + separator + tail
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	if strings.HasSuffix(noun, "ss") {
		return fmt.Sprintf("%d %ses", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
