package service

import (
	"errors"
	"fmt"

	"github.com/okian/trendscore/internal/domain/types"
	"github.com/okian/trendscore/internal/platform/retry"
)

// ErrNotStarted is returned by Service methods called before Start.
var ErrNotStarted = errors.New("service: not started")

// classifyStore never retries lookups of rows that do not exist.
func classifyStore(err error) retry.Action {
	if errors.Is(err, types.ErrNotFound) {
		return retry.Stop
	}
	return retry.Transient(err)
}

// wrapLookup keeps not-found errors as they are and marks everything else
// as a computation failure.
func wrapLookup(err error) error {
	if errors.Is(err, types.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", types.ErrComputationUnavailable, err)
}
