package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/trendscore/internal/adapters/http/api"
	"github.com/okian/trendscore/internal/adapters/repository"
	service "github.com/okian/trendscore/internal/app"
	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

var now = time.Date(2026, 5, 12, 15, 0, 0, 0, time.UTC)

// Mock implementations for testing
type mockDependencies struct {
	lastQuery   types.TrendingQuery
	trending    types.TrendingResponse
	trendingErr error
	item        types.ItemTrendResponse
	itemErr     error
	lastWindow  model.Window
	summary     types.RecalculationSummary
	recalcErr   error
	recalcCalls int
	stats       map[string]interface{}
}

func (m *mockDependencies) ResolveQuery(lens, period, limit string) types.TrendingQuery {
	l, _ := model.ParseLens(lens)
	w, _ := model.ParseWindow(period)
	return types.TrendingQuery{Lens: l, Window: w, Limit: 10, Period: period}
}

func (m *mockDependencies) Trending(ctx context.Context, q types.TrendingQuery) (types.TrendingResponse, error) {
	m.lastQuery = q
	return m.trending, m.trendingErr
}

func (m *mockDependencies) ItemTrend(ctx context.Context, window model.Window, itemID string) (types.ItemTrendResponse, error) {
	m.lastWindow = window
	if m.itemErr != nil {
		return types.ItemTrendResponse{}, m.itemErr
	}
	resp := m.item
	resp.Item.ID = itemID
	return resp, nil
}

func (m *mockDependencies) Recalculate(ctx context.Context) (types.RecalculationSummary, error) {
	m.recalcCalls++
	return m.summary, m.recalcErr
}

func (m *mockDependencies) GetStats() map[string]interface{} {
	if m.stats == nil {
		return map[string]interface{}{}
	}
	return m.stats
}

func newMux(deps api.Dependencies, token string) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, token).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestServer_Register(t *testing.T) {
	Convey("Given a new API server", t, func() {
		deps := &mockDependencies{stats: map[string]interface{}{"started": true}}
		mux := newMux(deps, "")

		Convey("When the health endpoint is called", func() {
			w := do(mux, http.MethodGet, "/healthz", nil)

			Convey("Then it should report ok", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
			})
		})

		Convey("When metrics are scraped after a request", func() {
			do(mux, http.MethodGet, "/healthz", nil)
			w := do(mux, http.MethodGet, "/metrics", nil)

			Convey("Then the engine metrics should be exposed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "trendscore_engine_http_requests_total")
			})
		})

		Convey("When stats are requested", func() {
			w := do(mux, http.MethodGet, "/stats", nil)

			Convey("Then service and runtime stats should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body map[string]any
				So(json.NewDecoder(w.Body).Decode(&body), ShouldBeNil)
				So(body["started"], ShouldEqual, true)
				So(body, ShouldContainKey, "goroutines")
			})
		})

		Convey("When an unknown path is requested", func() {
			w := do(mux, http.MethodGet, "/unknown", nil)

			Convey("Then it should not be found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestTrendingHandler(t *testing.T) {
	Convey("Given a trending handler", t, func() {
		deps := &mockDependencies{
			trending: types.TrendingResponse{
				Items:         []types.RankedItem{{ID: "alpha", TrendScore: 120.5, WhyTrending: "3 upvotes"}},
				Type:          model.LensHot,
				Window:        model.Window24h,
				Period:        "24h",
				SnapshotBased: true,
				Complete:      true,
			},
		}
		mux := newMux(deps, "")

		Convey("When requesting a lens and period", func() {
			w := do(mux, http.MethodGet, "/trending?type=hot&period=24h&limit=5", nil)

			Convey("Then the parameters should be resolved and the ranking returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastQuery.Lens, ShouldEqual, model.LensHot)
				So(deps.lastQuery.Window, ShouldEqual, model.Window24h)

				var body map[string]any
				So(json.NewDecoder(w.Body).Decode(&body), ShouldBeNil)
				So(body["type"], ShouldEqual, "hot")
				So(body["snapshotBased"], ShouldEqual, true)
				items := body["items"].([]any)
				So(items, ShouldHaveLength, 1)
				So(items[0].(map[string]any)["whyTrending"], ShouldEqual, "3 upvotes")
				So(items[0].(map[string]any), ShouldContainKey, "trendDetails")
			})
		})

		Convey("When the computation is unavailable", func() {
			deps.trending = types.TrendingResponse{}
			deps.trendingErr = fmt.Errorf("%w: listings down", types.ErrComputationUnavailable)
			w := do(mux, http.MethodGet, "/trending?type=for_sale", nil)

			Convey("Then it should answer 503 with an empty ranking", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				var body types.TrendingResponse
				So(json.NewDecoder(w.Body).Decode(&body), ShouldBeNil)
				So(body.Error, ShouldEqual, types.CodeComputationUnavailable)
				So(body.SnapshotBased, ShouldBeFalse)
				So(body.Items, ShouldNotBeNil)
				So(body.Items, ShouldBeEmpty)
			})
		})

		Convey("When the method is not GET", func() {
			w := do(mux, http.MethodPost, "/trending", nil)

			Convey("Then it should not be found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestItemHandler(t *testing.T) {
	Convey("Given an item handler", t, func() {
		deps := &mockDependencies{item: types.ItemTrendResponse{SnapshotBased: true, Window: model.Window7d}}
		mux := newMux(deps, "")

		Convey("When requesting a known item", func() {
			w := do(mux, http.MethodGet, "/trending/items/alpha?period=24h", nil)

			Convey("Then its trend should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastWindow, ShouldEqual, model.Window24h)
				So(w.Body.String(), ShouldContainSubstring, `"id":"alpha"`)
			})
		})

		Convey("When the item does not exist", func() {
			deps.itemErr = fmt.Errorf("item omega: %w", types.ErrNotFound)
			w := do(mux, http.MethodGet, "/trending/items/omega", nil)

			Convey("Then it should answer 404 with an error code", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(w.Body.String(), ShouldContainSubstring, `"code":"not_found"`)
			})
		})

		Convey("When the id is missing or nested", func() {
			So(do(mux, http.MethodGet, "/trending/items/", nil).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/trending/items/a/b", nil).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestRecalculateHandler(t *testing.T) {
	Convey("Given a recalculate handler protected by a token", t, func() {
		deps := &mockDependencies{
			summary: types.RecalculationSummary{
				RunID:          "run-1",
				Windows:        []types.WindowSummary{{Window: model.Window24h, ItemsProcessed: 3}, {Window: model.Window7d, ItemsProcessed: 3}},
				ItemsProcessed: 6,
			},
		}
		mux := newMux(deps, "s3cret")

		Convey("When the token is missing", func() {
			w := do(mux, http.MethodPost, "/trending/recalculate", nil)

			Convey("Then the run should be refused", func() {
				So(w.Code, ShouldEqual, http.StatusUnauthorized)
				So(deps.recalcCalls, ShouldEqual, 0)
			})
		})

		Convey("When the token matches", func() {
			w := do(mux, http.MethodPost, "/trending/recalculate", map[string]string{api.RecalculateTokenHeader: "s3cret"})

			Convey("Then the summary should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.recalcCalls, ShouldEqual, 1)
				var body types.RecalculationSummary
				So(json.NewDecoder(w.Body).Decode(&body), ShouldBeNil)
				So(body.RunID, ShouldEqual, "run-1")
				So(body.Windows, ShouldHaveLength, 2)
			})
		})

		Convey("When every window fails", func() {
			deps.summary.Windows[0].Error = types.CodeComputationUnavailable
			deps.summary.Windows[1].Error = types.CodeSnapshotWriteConflict
			deps.recalcErr = errors.Join(types.ErrComputationUnavailable, types.ErrSnapshotWriteConflict)
			w := do(mux, http.MethodPost, "/trending/recalculate", map[string]string{api.RecalculateTokenHeader: "s3cret"})

			Convey("Then it should answer 503 with the summary", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(w.Body.String(), ShouldContainSubstring, `"runId":"run-1"`)
			})
		})

		Convey("When only one window fails", func() {
			deps.summary.Windows[0].Error = types.CodeComputationUnavailable
			w := do(mux, http.MethodPost, "/trending/recalculate", map[string]string{api.RecalculateTokenHeader: "s3cret"})

			Convey("Then the partial run should still succeed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When the method is GET", func() {
			w := do(mux, http.MethodGet, "/trending/recalculate", nil)

			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestServer_EndToEnd(t *testing.T) {
	Convey("Given the API over a running service", t, func() {
		ctx := context.Background()
		store := repository.NewMemory()
		So(store.SaveListings(ctx, []model.ItemStatus{
			{ID: "alpha", Title: "Alpha", Verified: true, SaleStage: model.SaleStageForSale, CreatedAt: now.Add(-72 * time.Hour)},
			{ID: "beta", Title: "Beta", CreatedAt: now.Add(-3 * time.Hour)},
		}), ShouldBeNil)
		So(store.AppendEvents(ctx, []model.Event{
			{ID: "e1", ItemID: "alpha", Kind: model.KindUpvote, CreatedAt: now.Add(-time.Hour)},
			{ID: "e2", ItemID: "beta", Kind: model.KindComment, CreatedAt: now.Add(-time.Hour)},
			{ID: "e3", ItemID: "beta", Kind: model.KindComment, CreatedAt: now.Add(-2 * time.Hour)},
		}), ShouldBeNil)

		svc := service.New(
			service.WithStore(store),
			service.WithClock(clockwork.NewFakeClockAt(now)),
			service.WithRetry(2, 0),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		mux := newMux(svc, "")

		Convey("When ranking before and after a recalculation", func() {
			before := do(mux, http.MethodGet, "/trending?period=24h", nil)
			recalc := do(mux, http.MethodPost, "/trending/recalculate", nil)
			after := do(mux, http.MethodGet, "/trending?period=24h", nil)

			Convey("Then the source should switch from live to snapshots", func() {
				So(before.Code, ShouldEqual, http.StatusOK)
				So(before.Body.String(), ShouldContainSubstring, `"snapshotBased":false`)
				So(recalc.Code, ShouldEqual, http.StatusOK)
				So(after.Code, ShouldEqual, http.StatusOK)
				So(after.Body.String(), ShouldContainSubstring, `"snapshotBased":true`)

				var body types.TrendingResponse
				So(json.NewDecoder(strings.NewReader(after.Body.String())).Decode(&body), ShouldBeNil)
				So(body.Items, ShouldHaveLength, 2)
				So(body.Items[0].ID, ShouldEqual, "beta")
				So(body.Items[0].WhyTrending, ShouldEqual, "2 comments")
			})
		})
	})
}
