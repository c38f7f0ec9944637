// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	TrendingDependencies
	ItemDependencies
	RecalculateDependencies
	StatsProvider
}

// Server wires HTTP routes for the trending API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	trendingHandler    *TrendingHandler
	itemHandler        *ItemHandler
	recalculateHandler *RecalculateHandler
}

// NewServer creates a new API server with all handlers. An empty
// recalculateToken leaves POST /trending/recalculate open.
func NewServer(deps Dependencies, recalculateToken string) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		trendingHandler:    NewTrendingHandler(deps),
		itemHandler:        NewItemHandler(deps),
		recalculateHandler: NewRecalculateHandler(deps, recalculateToken),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/trending/recalculate", MetricsMiddleware(s.recalculateHandler.HandleRecalculate, "recalculate"))
	mux.HandleFunc("/trending/items/", MetricsMiddleware(s.itemHandler.HandleGetItem, "trending_item"))
	mux.HandleFunc("/trending", MetricsMiddleware(s.trendingHandler.HandleGetTrending, "trending"))
}

// windowParam resolves the period query parameter; unknown values select
// the default window.
func windowParam(r *http.Request) model.Window {
	w, _ := model.ParseWindow(r.URL.Query().Get("period"))
	return w
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// Entry is one ranked item as rendered by the API.
type Entry = types.RankedItem
