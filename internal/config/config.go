// Package config defines the engine configuration and how it is loaded.
//
// Values are layered: defaults from New, then an optional YAML file named by
// TRENDING_CONFIG, then TRENDING_* environment variables.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Supported storage drivers.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StorageDriver selects sqlite or memory.
	StorageDriver string `koanf:"storage_driver"`
	// DatabasePath is the SQLite file.
	DatabasePath string `koanf:"database_path"`

	// WorkerCount sets the number of scoring workers used by a recalculation.
	WorkerCount int `koanf:"worker_count"`
	// QueueSize bounds the per-run scoring task queue.
	QueueSize int `koanf:"queue_size"`

	// RecalculateIntervalSec schedules recalculation in-process; 0 disables it.
	RecalculateIntervalSec int `koanf:"recalculate_interval_sec"`
	// RecalculateOnStart runs one recalculation when the server starts.
	RecalculateOnStart bool `koanf:"recalculate_on_start"`
	// RecalculateToken, when set, must be sent as X-Recalculate-Token.
	RecalculateToken string `koanf:"recalculate_token"`
	// LockTTLSec bounds how long a window lock survives a crashed run.
	LockTTLSec int `koanf:"lock_ttl_sec"`

	// QueryTimeoutMS bounds each store call attempt.
	QueryTimeoutMS int `koanf:"query_timeout_ms"`
	// FallbackTimeoutMS bounds a whole live fallback computation.
	FallbackTimeoutMS int `koanf:"fallback_timeout_ms"`
	// RetryAttempts counts the first call; 2 means one retry.
	RetryAttempts int `koanf:"retry_attempts"`
	// RetryBackoffMS is the pause before a retry.
	RetryBackoffMS int `koanf:"retry_backoff_ms"`

	// DefaultLimit and MaxLimit shape GET /trending?limit.
	DefaultLimit int `koanf:"default_limit"`
	MaxLimit     int `koanf:"max_limit"`

	// Timezone is the IANA zone the "today" lens uses for calendar days.
	Timezone string `koanf:"timezone"`

	// HalfLifeHours overrides the decay half-life.
	HalfLifeHours float64 `koanf:"half_life_hours"`
	// Weights overrides per-signal weights by key (upvote, comment, guess,
	// intro_request, intro_accepted).
	Weights map[string]float64 `koanf:"weights"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		StorageDriver:      StorageSQLite,
		DatabasePath:       "trendscore.db",
		WorkerCount:        runtime.NumCPU() * 2,
		QueueSize:          1024,
		RecalculateOnStart: false,
		LockTTLSec:         300,
		QueryTimeoutMS:     2000,
		FallbackTimeoutMS:  10000,
		RetryAttempts:      2,
		RetryBackoffMS:     100,
		DefaultLimit:       10,
		MaxLimit:           100,
		Timezone:           "UTC",
		HalfLifeHours:      36,
		Weights:            map[string]float64{},
	}
}

var weightKeys = map[string]struct{}{
	"upvote": {}, "comment": {}, "guess": {}, "intro_request": {}, "intro_accepted": {},
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StorageDriver != StorageSQLite && c.StorageDriver != StorageMemory:
		return fmt.Errorf("%w: unknown storage_driver %q", ErrInvalidConfig, c.StorageDriver)
	case c.StorageDriver == StorageSQLite && c.DatabasePath == "":
		return fmt.Errorf("%w: database_path must not be empty", ErrInvalidConfig)
	case c.DefaultLimit <= 0 || c.MaxLimit <= 0:
		return fmt.Errorf("%w: limits must be positive", ErrInvalidConfig)
	case c.DefaultLimit > c.MaxLimit:
		return fmt.Errorf("%w: default_limit exceeds max_limit", ErrInvalidConfig)
	case c.RecalculateIntervalSec < 0:
		return fmt.Errorf("%w: recalculate_interval_sec must not be negative", ErrInvalidConfig)
	case c.LockTTLSec <= 0:
		return fmt.Errorf("%w: lock_ttl_sec must be positive", ErrInvalidConfig)
	case c.RetryAttempts < 1:
		return fmt.Errorf("%w: retry_attempts must be at least 1", ErrInvalidConfig)
	case c.HalfLifeHours < 0:
		return fmt.Errorf("%w: half_life_hours must not be negative", ErrInvalidConfig)
	}
	for k, v := range c.Weights {
		if _, ok := weightKeys[k]; !ok {
			return fmt.Errorf("%w: unknown weight %q", ErrInvalidConfig, k)
		}
		if v < 0 {
			return fmt.Errorf("%w: weight %q must not be negative", ErrInvalidConfig, k)
		}
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// RecalculateInterval is RecalculateIntervalSec as a duration.
func (c *Config) RecalculateInterval() time.Duration {
	return time.Duration(c.RecalculateIntervalSec) * time.Second
}

// LockTTL is LockTTLSec as a duration.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSec) * time.Second
}

// QueryTimeout is QueryTimeoutMS as a duration.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMS) * time.Millisecond
}

// FallbackTimeout is FallbackTimeoutMS as a duration.
func (c *Config) FallbackTimeout() time.Duration {
	return time.Duration(c.FallbackTimeoutMS) * time.Millisecond
}

// RetryBackoff is RetryBackoffMS as a duration.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}
