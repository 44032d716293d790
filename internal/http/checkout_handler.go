package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/idempotency"
)

// Checkout converts the cart into an order. With an Idempotency-Key the
// first successful response is stored and replayed with 200 for repeats.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartId")
	key := idempotency.Key(r)

	if key == "" || h.idem == nil {
		o, err := h.checkout.Checkout(r.Context(), cartID)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toOrderResponse(o))
		return
	}

	scoped := cartID + ":" + key
	if h.replay(w, r, scoped) {
		return
	}

	// The shared attempt must outlive any one caller; the coordinator
	// bounds it with its own timeout.
	flightCtx := context.WithoutCancel(r.Context())
	v, err, _ := h.flight.Do(scoped, func() (any, error) {
		return h.checkoutAndStore(flightCtx, cartID, scoped)
	})
	if err != nil {
		// a concurrent request under the same key may have won
		if errors.Is(err, checkout.ErrCartAlreadyCheckedOut) && h.replay(w, r, scoped) {
			return
		}
		h.writeDomainError(w, r, err)
		return
	}

	e := v.(idempotency.Entry)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_, _ = w.Write(e.Body)
}

func (h *Handler) checkoutAndStore(ctx context.Context, cartID, scoped string) (idempotency.Entry, error) {
	o, err := h.checkout.Checkout(ctx, cartID)
	if err != nil {
		return idempotency.Entry{}, err
	}

	body, err := json.Marshal(toOrderResponse(o))
	if err != nil {
		return idempotency.Entry{}, fmt.Errorf("encode order: %w", err)
	}
	e := idempotency.Entry{Status: http.StatusCreated, Body: body}
	if err := h.idem.Put(ctx, scoped, e); err != nil {
		h.logger.Warn().Err(err).Str("cart_id", cartID).Msg("store idempotent response")
	}
	return e, nil
}

// replay writes a stored response and reports whether one existed.
func (h *Handler) replay(w http.ResponseWriter, r *http.Request, scoped string) bool {
	e, err := h.idem.Get(r.Context(), scoped)
	if err != nil {
		if !errors.Is(err, idempotency.ErrNotFound) {
			h.logger.Warn().Err(err).Msg("idempotency lookup")
		}
		return false
	}

	var resp orderResponse
	if err := json.Unmarshal(e.Body, &resp); err != nil {
		h.logger.Warn().Err(err).Msg("decode stored response")
		return false
	}
	resp.Replayed = true
	writeJSON(w, http.StatusOK, resp)
	return true
}
