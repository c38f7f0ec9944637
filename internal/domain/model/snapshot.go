package model

import "time"

// Window is the lookback period a snapshot is computed over.
type Window string

// Supported windows.
const (
	Window24h Window = "24h"
	Window7d  Window = "7d"
)

// DefaultWindow is used when a caller supplies no or an unknown window.
const DefaultWindow = Window7d

// Windows returns every window the recalculation job maintains.
func Windows() []Window {
	return []Window{Window24h, Window7d}
}

// ParseWindow returns the window named by s and whether it was recognized.
func ParseWindow(s string) (Window, bool) {
	switch Window(s) {
	case Window24h:
		return Window24h, true
	case Window7d:
		return Window7d, true
	}
	return DefaultWindow, false
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	switch w {
	case Window24h:
		return 24 * time.Hour
	case Window7d:
		return 7 * 24 * time.Hour
	}
	return 7 * 24 * time.Hour
}

// Snapshot is the precomputed score of one item in one window.
// There is at most one snapshot per (ItemID, Window).
type Snapshot struct {
	ItemID             string
	Window             Window
	Score              float64
	UpvoteScore        float64
	CommentScore       float64
	GuessScore         float64
	IntroRequestScore  float64
	IntroAcceptedBonus float64
	StatusMultiplier   float64
	CalculatedAt       time.Time
}

// BaseScore is the pre-multiplier, pre-log sum of all subscores.
func (s Snapshot) BaseScore() float64 {
	return s.UpvoteScore + s.CommentScore + s.GuessScore + s.IntroRequestScore + s.IntroAcceptedBonus
}

// Engagement is the hot-lens sort key.
func (s Snapshot) Engagement() float64 {
	return s.UpvoteScore + s.CommentScore
}
