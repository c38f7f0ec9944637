package worker

import "errors"

// Sentinel kinds for worker errors.
var (
	ErrPanic           = errors.New("worker: task panicked")
	ErrShutdownTimeout = errors.New("worker: shutdown timed out")
)
