package types

import "errors"

// Domain errors shared across the engine. Callers wrap them with %w and
// classify with errors.Is.
var (
	ErrEventStoreUnavailable  = errors.New("event store unavailable")
	ErrSnapshotWriteConflict  = errors.New("snapshot write conflict")
	ErrComputationUnavailable = errors.New("computation unavailable")
	ErrNotFound               = errors.New("not found")
)

// Error codes rendered to API clients.
const (
	CodeEventStoreUnavailable  = "event_store_unavailable"
	CodeSnapshotWriteConflict  = "snapshot_write_conflict"
	CodeComputationUnavailable = "computation_unavailable"
	CodeNotFound               = "not_found"
	CodeInternal               = "internal_error"
)

// ErrorCode maps an error to its client-facing code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrComputationUnavailable):
		return CodeComputationUnavailable
	case errors.Is(err, ErrEventStoreUnavailable):
		return CodeEventStoreUnavailable
	case errors.Is(err, ErrSnapshotWriteConflict):
		return CodeSnapshotWriteConflict
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	}
	return CodeInternal
}
