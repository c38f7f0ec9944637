package repository

import "github.com/okian/trendscore/pkg/logger"

// Option applies a configuration option to a store.
type Option func(*options)

type options struct {
	log          logger.Logger
	maxOpenConns int
}

func defaultOptions() options {
	return options{maxOpenConns: 1}
}

// WithLogger sets the logger used by the store.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMaxOpenConns caps the SQLite connection pool. SQLite serializes writers,
// so values above one only help concurrent readers.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}
