// Package repository holds the storage contracts of the trending engine and
// their SQLite and in-memory implementations.
//
// The engine reads two collaborator datasets it does not own (listings and
// engagement events) and owns two tables (snapshots and recalculation locks).
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/trendscore/internal/domain/model"
)

// EventSource reads engagement events by time range.
type EventSource interface {
	// EventsBetween returns every event created in [from, to].
	EventsBetween(ctx context.Context, from, to time.Time) ([]model.Event, error)
	// ItemEvents returns the events of one item created in [from, to].
	ItemEvents(ctx context.Context, itemID string, from, to time.Time) ([]model.Event, error)
}

// ListingSource reads the current status of listed items.
type ListingSource interface {
	Listings(ctx context.Context) ([]model.ItemStatus, error)
	// Listing returns ErrNotFound for unknown ids.
	Listing(ctx context.Context, id string) (model.ItemStatus, error)
}

// WindowWrite is the complete write set of one window recalculation.
type WindowWrite struct {
	Window model.Window
	// Rows are upserted; each replaces the item's previous row.
	Rows []model.Snapshot
	// Retain lists items whose existing rows must survive although they are
	// not in Rows (their computation failed this run).
	Retain []string
}

// WriteResult reports what ReplaceWindow changed.
type WriteResult struct {
	Upserted int
	Removed  int
}

// SnapshotStore persists one snapshot per (item, window).
type SnapshotStore interface {
	CountSnapshots(ctx context.Context, window model.Window) (int, error)
	// ListSnapshots returns a window's snapshots ordered by score desc.
	ListSnapshots(ctx context.Context, window model.Window) ([]model.Snapshot, error)
	// GetSnapshot returns ErrNotFound when the item has no row for window.
	GetSnapshot(ctx context.Context, window model.Window, itemID string) (model.Snapshot, error)
	// ReplaceWindow atomically upserts w.Rows and deletes every other row of
	// the window that is not listed in w.Retain.
	ReplaceWindow(ctx context.Context, w WindowWrite) (WriteResult, error)
}

// Locker is an advisory lock keyed by name with an expiry.
type Locker interface {
	// TryLock acquires name for owner until now+ttl. It returns false without
	// error when another owner holds an unexpired lock.
	TryLock(ctx context.Context, name, owner string, ttl time.Duration, now time.Time) (bool, error)
	// Unlock releases name if owner still holds it.
	Unlock(ctx context.Context, name, owner string) error
}

// Writer loads collaborator data. It backs seeding and tests; the engine
// itself never writes listings or events.
type Writer interface {
	SaveListings(ctx context.Context, items []model.ItemStatus) error
	DeleteListing(ctx context.Context, id string) error
	AppendEvents(ctx context.Context, events []model.Event) error
}

// Store is everything a storage driver provides.
type Store interface {
	EventSource
	ListingSource
	SnapshotStore
	Locker
	Writer
	Close() error
}

// Storage drivers accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Open creates the store selected by driver. path is ignored for memory.
func Open(driver, path string, opts ...Option) (Store, error) {
	switch driver {
	case DriverSQLite:
		return NewSQLite(path, opts...)
	case DriverMemory:
		return NewMemory(opts...), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStore, driver)
}
