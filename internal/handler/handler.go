// Package handler exposes the cart pricing engine over HTTP. Handlers are
// thin: decode, delegate to the domain, map errors to the JSON envelope.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/storelane/cartsync/internal/domain/cart"
	"github.com/storelane/cartsync/internal/domain/catalog"
	"github.com/storelane/cartsync/internal/domain/pricing"
	"github.com/storelane/cartsync/internal/idempotency"
)

// Handler carries the dependencies of every HTTP endpoint.
type Handler struct {
	carts      *cart.Service
	reconciler *cart.Reconciler
	events     cart.ChangePublisher
	idem       idempotency.Store
	idemTTL    time.Duration
}

// New constructs a Handler. A non-positive idemTTL falls back to
// idempotency.DefaultTTL.
func New(
	carts *cart.Service,
	reconciler *cart.Reconciler,
	events cart.ChangePublisher,
	idem idempotency.Store,
	idemTTL time.Duration,
) *Handler {
	if idemTTL <= 0 {
		idemTTL = idempotency.DefaultTTL
	}
	return &Handler{
		carts:      carts,
		reconciler: reconciler,
		events:     events,
		idem:       idem,
		idemTTL:    idemTTL,
	}
}

// Register mounts every route on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/carts/{id}/line-items", h.addLineItem)
	mux.HandleFunc("PATCH /api/carts/{id}/line-items/{lineID}", h.updateLineItem)
	mux.HandleFunc("DELETE /api/carts/{id}/line-items/{lineID}", h.deleteLineItem)
	mux.HandleFunc("POST /api/carts/{id}/sync-prices", h.syncPrices)
	mux.HandleFunc("POST /api/webhooks/cart-events", h.cartEvent)
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

// writeDomainError maps domain errors onto HTTP status semantics: 400 for
// invalid input, 404 for missing resources, 422 for an unpriceable variant,
// 500 otherwise.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrMissingVariant):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, cart.ErrNotFound), errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, catalog.ErrVariantNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pricing.ErrPriceUnavailable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
