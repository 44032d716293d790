package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

// StatusClientClosedRequest is the nginx convention for a request the client
// abandoned before a response was written.
const StatusClientClosedRequest = 499

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:         msg,
		CorrelationID: events.CorrelationID(r.Context()),
	})
}

// writeDomainError maps store and checkout errors onto status codes.
// Anything unrecognised is logged and reported as 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var short *inventory.InsufficientStockError
	if errors.As(err, &short) {
		available, requested := short.Available, short.Requested
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:         "insufficient stock",
			CorrelationID: events.CorrelationID(r.Context()),
			ProductID:     short.ProductID,
			Available:     &available,
			Requested:     &requested,
		})
		return
	}

	switch {
	case errors.Is(err, cart.ErrCartNotFound),
		errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, order.ErrOrderNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidUser),
		errors.Is(err, inventory.ErrInvalidProduct),
		errors.Is(err, inventory.ErrInvalidDemand):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, checkout.ErrCartAlreadyCheckedOut),
		errors.Is(err, cart.ErrCartClosed),
		errors.Is(err, checkout.ErrConflict):
		writeError(w, r, http.StatusConflict, errorMessage(err))
	case errors.Is(err, checkout.ErrCheckoutTimeout):
		writeError(w, r, http.StatusGatewayTimeout, checkout.ErrCheckoutTimeout.Error())
	case errors.Is(err, context.Canceled):
		// client went away; nobody reads the body
		h.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("request canceled by client")
		w.WriteHeader(StatusClientClosedRequest)
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// errorMessage hides wrapped driver detail behind the sentinel text.
func errorMessage(err error) string {
	if errors.Is(err, checkout.ErrConflict) {
		return checkout.ErrConflict.Error()
	}
	return err.Error()
}
