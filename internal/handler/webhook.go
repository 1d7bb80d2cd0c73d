package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

type cartEventRequest struct {
	EventID string `json:"event_id"`
	CartID  string `json:"cart_id"`
}

type cartEventResponse struct {
	Status string `json:"status"`
}

// cartEvent accepts externally delivered cart-changed notifications and
// enqueues an async reconciliation pass. Senders retry for days, so the
// event id is recorded in the idempotency store and duplicates are
// acknowledged without re-enqueueing.
func (h *Handler) cartEvent(w http.ResponseWriter, r *http.Request) {
	var req cartEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventID == "" || req.CartID == "" {
		writeError(w, http.StatusBadRequest, "event_id and cart_id required")
		return
	}

	ctx := r.Context()
	key := "cart-events:" + req.EventID

	seen, err := h.idem.Has(ctx, key)
	if err != nil {
		zctx.From(ctx).Error("idempotency lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if seen {
		writeJSON(w, http.StatusOK, cartEventResponse{Status: "duplicate"})
		return
	}

	h.events.CartChanged(req.CartID)

	if err := h.idem.Set(ctx, key, req.CartID, h.idemTTL); err != nil {
		// The event is already enqueued; a failed record just means a
		// duplicate delivery may enqueue one more pass, which is harmless.
		zctx.From(ctx).Warn("idempotency record failed", zap.Error(err))
	}

	writeJSON(w, http.StatusAccepted, cartEventResponse{Status: "accepted"})
}
