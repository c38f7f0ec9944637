package repository

import (
	"errors"
	"fmt"

	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/internal/domain/types"
)

// Sentinel kinds for storage errors.
var (
	ErrNotFound     = fmt.Errorf("repository: %w", types.ErrNotFound)
	ErrClosed       = errors.New("repository: store closed")
	ErrInvalidTTL   = errors.New("repository: lock ttl must be positive")
	ErrUnknownStore = errors.New("repository: unknown storage driver")
	ErrInvalidEvent = errors.New("repository: invalid event")
)

func validateEvents(events []model.Event) error {
	for _, e := range events {
		if !e.Kind.Valid() {
			return fmt.Errorf("%w: %s has kind %q", ErrInvalidEvent, e.ID, e.Kind)
		}
		if e.ItemID == "" {
			return fmt.Errorf("%w: %s has no item", ErrInvalidEvent, e.ID)
		}
	}
	return nil
}
