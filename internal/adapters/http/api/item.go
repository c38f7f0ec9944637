package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/trendscore/internal/domain/model"
	"github.com/okian/trendscore/internal/domain/types"
)

// ItemDependencies defines the interface for single item lookups.
type ItemDependencies interface {
	ItemTrend(ctx context.Context, window model.Window, itemID string) (types.ItemTrendResponse, error)
}

// ItemHandler handles single item trend requests.
type ItemHandler struct {
	deps ItemDependencies
}

// NewItemHandler creates a new item handler.
func NewItemHandler(deps ItemDependencies) *ItemHandler {
	return &ItemHandler{deps: deps}
}

// HandleGetItem handles GET /trending/items/{id}?period= requests.
func (h *ItemHandler) HandleGetItem(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_item_trend"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	// Extract path parameter after /trending/items/
	id := strings.TrimPrefix(r.URL.Path, "/trending/items/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	resp, err := h.deps.ItemTrend(r.Context(), windowParam(r), id)
	if err != nil {
		writeError(w, statusFor(err), codeFor(err), Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
