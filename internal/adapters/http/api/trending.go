package api

import (
	"context"
	"net/http"

	"github.com/okian/trendscore/internal/domain/types"
)

// TrendingDependencies defines the interface for ranking operations.
type TrendingDependencies interface {
	ResolveQuery(lens, period, limit string) types.TrendingQuery
	Trending(ctx context.Context, q types.TrendingQuery) (types.TrendingResponse, error)
}

// TrendingHandler handles ranking requests.
type TrendingHandler struct {
	deps TrendingDependencies
}

// NewTrendingHandler creates a new trending handler.
func NewTrendingHandler(deps TrendingDependencies) *TrendingHandler {
	return &TrendingHandler{deps: deps}
}

// HandleGetTrending handles GET /trending?type=&period=&limit= requests.
// Invalid parameters never fail the request; they select defaults.
func (h *TrendingHandler) HandleGetTrending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	query := h.deps.ResolveQuery(q.Get("type"), q.Get("period"), q.Get("limit"))

	resp, err := h.deps.Trending(r.Context(), query)
	if err != nil {
		// The body still carries the ranking envelope with its error code.
		if resp.Error == "" {
			resp.Error = codeFor(err)
		}
		if resp.Items == nil {
			resp.Items = []types.RankedItem{}
		}
		resp.SnapshotBased = false
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
