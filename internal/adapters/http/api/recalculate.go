package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/okian/trendscore/internal/domain/types"
)

// RecalculateTokenHeader carries the shared secret of POST /trending/recalculate.
const RecalculateTokenHeader = "X-Recalculate-Token"

// RecalculateDependencies defines the interface for triggering recalculation.
type RecalculateDependencies interface {
	Recalculate(ctx context.Context) (types.RecalculationSummary, error)
}

// RecalculateHandler handles recalculation triggers.
type RecalculateHandler struct {
	deps  RecalculateDependencies
	token string
}

// NewRecalculateHandler creates a new recalculate handler.
func NewRecalculateHandler(deps RecalculateDependencies, token string) *RecalculateHandler {
	return &RecalculateHandler{deps: deps, token: token}
}

// HandleRecalculate handles POST /trending/recalculate requests.
func (h *RecalculateHandler) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	const op = "api.recalculate"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if h.token != "" {
		got := r.Header.Get(RecalculateTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", NewKind(op, ErrUnauthorized))
			return
		}
	}

	// A client hanging up must not abort the snapshot writes.
	summary, err := h.deps.Recalculate(context.WithoutCancel(r.Context()))
	if err != nil && summary.RunID == "" {
		writeError(w, statusFor(err), codeFor(err), Wrap(op, err))
		return
	}
	if summary.Failed() {
		writeJSON(w, http.StatusServiceUnavailable, summary)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
