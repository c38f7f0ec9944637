package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	service "github.com/okian/trendscore/internal/app"
	"github.com/okian/trendscore/internal/adapters/repository"
	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/internal/domain/scoring"
	"github.com/okian/trendscore/internal/platform/retry"
)

var (
	now          = time.Date(2026, 5, 12, 15, 0, 0, 0, time.UTC)
	errStoreDown = errors.New("store down")
	noBackoff    = retry.Policy{MaxAttempts: retry.DefaultMaxAttempts}
)

// flakyStore fails selected reads of an otherwise working store.
type flakyStore struct {
	repository.Store

	mu           sync.Mutex
	failItems    map[string]bool
	panicItems   map[string]bool
	failListings bool
	failCount    bool
	lockErr      error
	itemCalls    map[string]int
	writes       map[model.Window]int

	entered chan struct{}
	gate    chan struct{}
}

func newFlakyStore() *flakyStore {
	return &flakyStore{
		Store:     repository.NewMemory(),
		failItems:  map[string]bool{},
		panicItems: map[string]bool{},
		itemCalls:  map[string]int{},
		writes:     map[model.Window]int{},
	}
}

func (f *flakyStore) panicItem(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panicItems[id] = true
}

func (f *flakyStore) setLockError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lockErr = err
}

// holdEvents makes item event reads wait until release is closed. entered
// receives once the first read is waiting.
func (f *flakyStore) holdEvents() (entered <-chan struct{}, release chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entered = make(chan struct{}, 1)
	f.gate = make(chan struct{})
	return f.entered, f.gate
}

func (f *flakyStore) writeCount(w model.Window) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[w]
}

func (f *flakyStore) failItem(id string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failItems[id] = fail
}

func (f *flakyStore) setListingsFailure(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failListings = fail
}

func (f *flakyStore) calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.itemCalls[id]
}

func (f *flakyStore) ItemEvents(ctx context.Context, itemID string, from, to time.Time) ([]model.Event, error) {
	f.mu.Lock()
	f.itemCalls[itemID]++
	fail := f.failItems[itemID]
	crash := f.panicItems[itemID]
	entered, gate := f.entered, f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-gate
	}
	if crash {
		var rows []model.Event
		return rows[:len(itemID)+1], nil
	}
	if fail {
		return nil, errStoreDown
	}
	return f.Store.ItemEvents(ctx, itemID, from, to)
}

func (f *flakyStore) TryLock(ctx context.Context, name, owner string, ttl time.Duration, at time.Time) (bool, error) {
	f.mu.Lock()
	err := f.lockErr
	f.mu.Unlock()
	if err != nil {
		return false, err
	}
	return f.Store.TryLock(ctx, name, owner, ttl, at)
}

func (f *flakyStore) ReplaceWindow(ctx context.Context, w repository.WindowWrite) (repository.WriteResult, error) {
	res, err := f.Store.ReplaceWindow(ctx, w)
	if err == nil {
		f.mu.Lock()
		f.writes[w.Window]++
		f.mu.Unlock()
	}
	return res, err
}

func (f *flakyStore) Listings(ctx context.Context) ([]model.ItemStatus, error) {
	f.mu.Lock()
	fail := f.failListings
	f.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return f.Store.Listings(ctx)
}

func (f *flakyStore) CountSnapshots(ctx context.Context, window model.Window) (int, error) {
	f.mu.Lock()
	fail := f.failCount
	f.mu.Unlock()
	if fail {
		return 0, errStoreDown
	}
	return f.Store.CountSnapshots(ctx, window)
}

func ago(d time.Duration) time.Time { return now.Add(-d) }

func ev(id, item string, kind model.EventKind, age time.Duration) model.Event {
	return model.Event{ID: id, ItemID: item, UserID: "u-" + id, Kind: kind, CreatedAt: ago(age)}
}

// seed loads four items: a verified listing with rich recent activity, a
// fresh launch, a sold item with many upvotes and a quiet item.
func seed(t *testing.T, store repository.Store) {
	t.Helper()
	ctx := context.Background()

	launch := ago(2 * time.Hour)
	items := []model.ItemStatus{
		{ID: "alpha", Title: "Alpha", Tagline: "analytics", Verified: true, SaleStage: model.SaleStageForSale, CreatedAt: ago(72 * time.Hour)},
		{ID: "beta", Title: "Beta", SaleStage: model.SaleStageNone, CreatedAt: ago(10 * time.Hour), LaunchDate: &launch},
		{ID: "gamma", Title: "Gamma", SaleStage: model.SaleStageSold, CreatedAt: ago(200 * time.Hour)},
		{ID: "delta", Title: "Delta", SaleStage: model.SaleStageExitReady, CreatedAt: ago(30 * time.Hour)},
	}
	if err := store.SaveListings(ctx, items); err != nil {
		t.Fatalf("save listings: %v", err)
	}

	accepted := ev("e6", "alpha", model.KindIntroRequest, 10*time.Hour)
	accepted.Outcome = model.OutcomeAccepted

	events := []model.Event{
		ev("e1", "alpha", model.KindUpvote, 1*time.Hour),
		ev("e2", "alpha", model.KindUpvote, 5*time.Hour),
		ev("e3", "alpha", model.KindUpvote, 30*time.Hour),
		ev("e4", "alpha", model.KindComment, 2*time.Hour),
		ev("e5", "alpha", model.KindGuess, 50*time.Hour),
		accepted,
		ev("e7", "beta", model.KindUpvote, 100*time.Hour),
		ev("e8", "beta", model.KindGuess, 3*time.Hour),
		ev("e9", "beta", model.KindComment, 1*time.Hour),
		ev("e10", "gamma", model.KindUpvote, 1*time.Hour),
		ev("e11", "gamma", model.KindUpvote, 2*time.Hour),
		ev("e12", "gamma", model.KindUpvote, 3*time.Hour),
		ev("e13", "gamma", model.KindUpvote, 4*time.Hour),
		ev("e14", "gamma", model.KindUpvote, 5*time.Hour),
		ev("e15", "delta", model.KindIntroRequest, 20*time.Hour),
	}
	if err := store.AppendEvents(ctx, events); err != nil {
		t.Fatalf("append events: %v", err)
	}
}

type engine struct {
	store  *flakyStore
	clock  *clockwork.FakeClock
	calc   *scoring.Calculator
	job    *service.Job
	legacy *service.LegacyCalculator
	query  *service.QueryService
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	store := newFlakyStore()
	seed(t, store)

	clock := clockwork.NewFakeClockAt(now)
	calc := scoring.NewCalculator()
	builder := service.NewBuilder(store, calc,
		service.WithBuilderWorkers(3),
		service.WithBuilderRetry(noBackoff),
	)
	job := service.NewJob(store, builder,
		service.WithJobClock(clock),
		service.WithJobRetry(noBackoff),
	)
	legacy := service.NewLegacyCalculator(store, store, calc,
		service.WithLegacyClock(clock),
		service.WithLegacyRetry(noBackoff),
	)
	query := service.NewQueryService(store, store, legacy, calc,
		service.WithQueryClock(clock),
		service.WithQueryRetry(noBackoff),
	)

	return &engine{store: store, clock: clock, calc: calc, job: job, legacy: legacy, query: query}
}
