// Package model contains domain models passed between layers.
package model

import "time"

// EventKind identifies which engagement signal an event represents.
type EventKind string

// Supported engagement signals.
const (
	KindUpvote       EventKind = "UPVOTE"
	KindComment      EventKind = "COMMENT"
	KindGuess        EventKind = "GUESS"
	KindIntroRequest EventKind = "INTRO_REQUEST"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case KindUpvote, KindComment, KindGuess, KindIntroRequest:
		return true
	}
	return false
}

// Outcome is the review result of an intro request. Empty for other kinds.
type Outcome string

// Intro request outcomes.
const (
	OutcomeNone     Outcome = ""
	OutcomePending  Outcome = "PENDING"
	OutcomeAccepted Outcome = "ACCEPTED"
	OutcomeDeclined Outcome = "DECLINED"
)

// Event is an immutable engagement record read from the event store.
type Event struct {
	ID        string
	ItemID    string
	UserID    string
	Kind      EventKind
	Outcome   Outcome
	CreatedAt time.Time
}

// Accepted reports whether the event is an intro request that was accepted.
func (e Event) Accepted() bool {
	return e.Kind == KindIntroRequest && e.Outcome == OutcomeAccepted
}
