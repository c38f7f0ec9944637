// Package retry runs store calls under a per-attempt timeout with a small,
// fixed retry budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Action tells Do what to do with a failed attempt.
type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	Retry               // transient error, back off and try again
)

// DefaultMaxAttempts is one call plus one retry.
const DefaultMaxAttempts = 2

// Policy bounds a retried operation.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	// AttemptTimeout bounds every single attempt; zero disables it.
	AttemptTimeout time.Duration
	Clock          clockwork.Clock
	OnRetry        func(attempt int, err error, backoff time.Duration)
}

// Classify maps an attempt error to an Action.
type Classify func(err error) Action

// Operation is one attempt; ctx carries the per-attempt deadline.
type Operation[T any] func(ctx context.Context) (T, error)

// Transient retries every error except caller cancellation.
func Transient(err error) Action {
	if errors.Is(err, context.Canceled) {
		return Stop
	}
	return Retry
}

// Do runs op until it succeeds, classify says Stop, the attempts run out or
// ctx is done.
func Do[T any](ctx context.Context, p Policy, classify Classify, op Operation[T]) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if classify == nil {
		classify = Transient
	}
	backoff := p.InitialBackoff

	for attempt := 1; attempt <= attempts; attempt++ {
		val, err := attemptOnce(ctx, p.AttemptTimeout, op)
		if err == nil {
			return val, nil
		}

		if classify(err) == Stop {
			return zero, &PermanentError{Err: err}
		}

		if attempt == attempts {
			return zero, fmt.Errorf("failed after %d attempts: %w", attempts, err)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}

		if backoff <= 0 {
			if ctx.Err() != nil {
				return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
			}
			continue
		}

		select {
		case <-clock.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}

	return zero, fmt.Errorf("failed after %d attempts", attempts)
}

func attemptOnce[T any](ctx context.Context, timeout time.Duration, op Operation[T]) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(ctx)
}

// PermanentError marks an error that was not retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
