package seed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/pkg/logger"
)

// Popularity skew of the generated engagement; a few items collect most of it.
const (
	zipfS = 1.2
	zipfV = 1.0
)

// Dataset is one generated batch of collaborator data.
type Dataset struct {
	Listings []model.ItemStatus
	Events   []model.Event
	Now      time.Time

	byID    map[string]model.ItemStatus
	byItem  map[string][]model.Event
	indexed bool
}

// Listing returns the generated listing with id.
func (d *Dataset) Listing(id string) (model.ItemStatus, bool) {
	d.index()
	item, ok := d.byID[id]
	return item, ok
}

// ItemEvents returns every generated event of one item.
func (d *Dataset) ItemEvents(id string) []model.Event {
	d.index()
	return d.byItem[id]
}

func (d *Dataset) index() {
	if d.indexed {
		return
	}
	d.byID = make(map[string]model.ItemStatus, len(d.Listings))
	for _, l := range d.Listings {
		d.byID[l.ID] = l
	}
	d.byItem = make(map[string][]model.Event, len(d.Listings))
	for _, e := range d.Events {
		d.byItem[e.ItemID] = append(d.byItem[e.ItemID], e)
	}
	d.indexed = true
}

// Generator produces datasets from a seeded random source.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a generator. The same seed yields the same dataset
// shape; ids are random.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Generate creates items listings and events engagement events ending at now.
func (g *Generator) Generate(ctx context.Context, items, events int, span time.Duration, now time.Time) (*Dataset, error) {
	if items <= 0 {
		return nil, fmt.Errorf("items must be positive, got %d", items)
	}
	if events < 0 {
		return nil, fmt.Errorf("events must not be negative, got %d", events)
	}
	if span <= 0 {
		span = DefaultSpan
	}
	now = now.UTC().Truncate(time.Millisecond)

	logger.Get().Info(ctx, "generating dataset",
		logger.Int("items", items),
		logger.Int("events", events),
		logger.Duration("span", span))

	ds := &Dataset{
		Listings: make([]model.ItemStatus, items),
		Events:   make([]model.Event, 0, events),
		Now:      now,
	}
	for i := range ds.Listings {
		ds.Listings[i] = g.listing(i, now)
	}

	zipf := rand.NewZipf(g.rng, zipfS, zipfV, uint64(items-1))
	for i := 0; i < events; i++ {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("context cancelled during generation: %w", err)
			}
		}
		item := ds.Listings[zipf.Uint64()]
		ds.Events = append(ds.Events, g.event(item, span, now))
	}

	return ds, nil
}

func (g *Generator) listing(i int, now time.Time) model.ItemStatus {
	created := now.Add(-g.duration(maxListingAge))
	item := model.ItemStatus{
		ID:        uuid.NewString(),
		Title:     fmt.Sprintf("Item %d", i+1),
		Tagline:   fmt.Sprintf("Synthetic listing number %d", i+1),
		Verified:  g.rng.Float64() < verifiedShare,
		SaleStage: g.stage(),
		CreatedAt: created,
	}
	if g.rng.Float64() < launchDateShare {
		launch := created.Add(g.duration(now.Sub(created)))
		item.LaunchDate = &launch
	}
	return item
}

func (g *Generator) stage() model.SaleStage {
	switch g.rng.IntN(6) {
	case 0:
		return model.SaleStageForSale
	case 1:
		return model.SaleStageExitReady
	case 2:
		return model.SaleStageSold
	}
	return model.SaleStageNone
}

// event draws a kind with upvotes most common and intro requests rarest.
func (g *Generator) event(item model.ItemStatus, span time.Duration, now time.Time) model.Event {
	e := model.Event{
		ID:        uuid.NewString(),
		ItemID:    item.ID,
		UserID:    fmt.Sprintf("user-%d", g.rng.IntN(1000)),
		CreatedAt: now.Add(-g.duration(span)),
	}

	switch r := g.rng.Float64(); {
	case r < 0.5:
		e.Kind = model.KindUpvote
	case r < 0.75:
		e.Kind = model.KindComment
	case r < 0.9:
		e.Kind = model.KindGuess
	default:
		e.Kind = model.KindIntroRequest
		switch o := g.rng.Float64(); {
		case o < acceptedIntroShare:
			e.Outcome = model.OutcomeAccepted
		case o < acceptedIntroShare+declinedIntroShare:
			e.Outcome = model.OutcomeDeclined
		default:
			e.Outcome = model.OutcomePending
		}
	}
	return e
}

// duration returns a uniform duration in [0, upTo) at millisecond precision.
func (g *Generator) duration(upTo time.Duration) time.Duration {
	if upTo <= time.Millisecond {
		return 0
	}
	return time.Duration(g.rng.Int64N(int64(upTo/time.Millisecond))) * time.Millisecond
}
