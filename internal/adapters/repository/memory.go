package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/pkg/logger"
)

type lease struct {
	owner   string
	expires time.Time
}

// MemoryStore implements Store in process memory. ReplaceWindow runs under
// the write lock, so readers never observe a partial window.
type MemoryStore struct {
	mu        sync.RWMutex
	listings  map[string]model.ItemStatus
	events    []model.Event
	eventIDs  map[string]struct{}
	snapshots map[model.Window]*snapshotIndex
	locks     map[string]lease
	closed    bool
	log       logger.Logger
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Get().Named("memory_store")
	}
	return &MemoryStore{
		listings:  make(map[string]model.ItemStatus),
		eventIDs:  make(map[string]struct{}),
		snapshots: make(map[model.Window]*snapshotIndex),
		locks:     make(map[string]lease),
		log:       o.log,
	}
}

// Close marks the store closed; later calls fail with ErrClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.closed {
		return ErrClosed
	}
	return nil
}

// EventsBetween implements EventSource.
func (m *MemoryStore) EventsBetween(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	return m.selectEvents(ctx, func(e model.Event) bool { return inRange(e.CreatedAt, from, to) })
}

// ItemEvents implements EventSource.
func (m *MemoryStore) ItemEvents(ctx context.Context, itemID string, from, to time.Time) ([]model.Event, error) {
	return m.selectEvents(ctx, func(e model.Event) bool {
		return e.ItemID == itemID && inRange(e.CreatedAt, from, to)
	})
}

func (m *MemoryStore) selectEvents(ctx context.Context, keep func(model.Event) bool) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Event, 0)
	for _, e := range m.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Listings implements ListingSource.
func (m *MemoryStore) Listings(ctx context.Context) ([]model.ItemStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	out := make([]model.ItemStatus, 0, len(m.listings))
	for _, item := range m.listings {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Listing implements ListingSource.
func (m *MemoryStore) Listing(ctx context.Context, id string) (model.ItemStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return model.ItemStatus{}, err
	}
	item, ok := m.listings[id]
	if !ok {
		return model.ItemStatus{}, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	return item, nil
}

// CountSnapshots implements SnapshotStore.
func (m *MemoryStore) CountSnapshots(ctx context.Context, window model.Window) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return 0, err
	}
	if x, ok := m.snapshots[window]; ok {
		return x.len(), nil
	}
	return 0, nil
}

// ListSnapshots implements SnapshotStore.
func (m *MemoryStore) ListSnapshots(ctx context.Context, window model.Window) ([]model.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	x, ok := m.snapshots[window]
	if !ok {
		return []model.Snapshot{}, nil
	}
	return x.collect(0), nil
}

// GetSnapshot implements SnapshotStore.
func (m *MemoryStore) GetSnapshot(ctx context.Context, window model.Window, itemID string) (model.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return model.Snapshot{}, err
	}
	x, ok := m.snapshots[window]
	if !ok {
		return model.Snapshot{}, fmt.Errorf("snapshot %s/%s: %w", window, itemID, ErrNotFound)
	}
	s, ok := x.get(itemID)
	if !ok {
		return model.Snapshot{}, fmt.Errorf("snapshot %s/%s: %w", window, itemID, ErrNotFound)
	}
	return s, nil
}

// ReplaceWindow implements SnapshotStore.
func (m *MemoryStore) ReplaceWindow(ctx context.Context, w WindowWrite) (WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return WriteResult{}, err
	}

	keep := make(map[string]struct{}, len(w.Rows)+len(w.Retain))
	for _, id := range w.Retain {
		keep[id] = struct{}{}
	}

	x, ok := m.snapshots[w.Window]
	if !ok {
		x = newSnapshotIndex()
		m.snapshots[w.Window] = x
	}

	var res WriteResult
	for _, s := range w.Rows {
		s.Window = w.Window
		x.upsert(s)
		keep[s.ItemID] = struct{}{}
		res.Upserted++
	}
	for _, id := range x.ids() {
		if _, ok := keep[id]; !ok && x.remove(id) {
			res.Removed++
		}
	}
	return res, nil
}

// TryLock implements Locker.
func (m *MemoryStore) TryLock(ctx context.Context, name, owner string, ttl time.Duration, now time.Time) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return false, err
	}
	if l, ok := m.locks[name]; ok && l.owner != owner && l.expires.After(now) {
		return false, nil
	}
	m.locks[name] = lease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

// Unlock implements Locker.
func (m *MemoryStore) Unlock(ctx context.Context, name, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	if l, ok := m.locks[name]; ok && l.owner == owner {
		delete(m.locks, name)
	}
	return nil
}

// SaveListings implements Writer.
func (m *MemoryStore) SaveListings(ctx context.Context, items []model.ItemStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	for _, item := range items {
		if item.SaleStage == "" {
			item.SaleStage = model.SaleStageNone
		}
		m.listings[item.ID] = item
	}
	return nil
}

// DeleteListing implements Writer.
func (m *MemoryStore) DeleteListing(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	delete(m.listings, id)
	return nil
}

// AppendEvents implements Writer. Events with an existing id are ignored.
func (m *MemoryStore) AppendEvents(ctx context.Context, events []model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	if err := validateEvents(events); err != nil {
		return err
	}
	for _, e := range events {
		if e.ID != "" {
			if _, dup := m.eventIDs[e.ID]; dup {
				continue
			}
			m.eventIDs[e.ID] = struct{}{}
		}
		m.events = append(m.events, e)
	}
	m.log.Debug(ctx, "events appended", logger.Int("count", len(events)))
	return nil
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}
