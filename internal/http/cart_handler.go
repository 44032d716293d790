package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/inventory"
)

type createCartRequest struct {
	UserID string `json:"userId"`
}

type upsertItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) CreateCart(w http.ResponseWriter, r *http.Request) {
	var req createCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return
	}

	c, err := h.carts.Create(r.Context(), req.UserID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp, err := h.cartView(r, c)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), chi.URLParam(r, "cartId"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp, err := h.cartView(r, c)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpsertItem sets the quantity of a line; it does not add to it.
func (h *Handler) UpsertItem(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartId")

	var req upsertItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ProductID == "" {
		writeError(w, r, http.StatusBadRequest, "productId is required")
		return
	}

	if err := h.carts.UpsertItem(r.Context(), cartID, req.ProductID, req.Quantity); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	c, err := h.carts.Get(r.Context(), cartID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	resp, err := h.cartView(r, c)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// cartView joins cart lines with the current catalog, ordered by name.
func (h *Handler) cartView(r *http.Request, c cart.Cart) (cartResponse, error) {
	lines := make([]cartLineResponse, 0, len(c.Items))
	var total int64
	for _, it := range c.Items {
		p, err := h.catalog.GetProduct(r.Context(), it.ProductID)
		if err != nil && !errors.Is(err, inventory.ErrProductNotFound) {
			return cartResponse{}, err
		}
		lineTotal := p.PriceCents * int64(it.Quantity)
		total += lineTotal
		lines = append(lines, cartLineResponse{
			ProductID:      it.ProductID,
			Name:           p.Name,
			Quantity:       it.Quantity,
			UnitPriceCents: p.PriceCents,
			LineTotalCents: lineTotal,
			LineTotal:      money(lineTotal),
		})
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].Name != lines[j].Name {
			return lines[i].Name < lines[j].Name
		}
		return lines[i].ProductID < lines[j].ProductID
	})

	return cartResponse{
		CartID:     c.ID,
		UserID:     c.UserID,
		Status:     c.Status,
		Items:      lines,
		TotalCents: total,
		Total:      money(total),
		CreatedAt:  c.CreatedAt,
	}, nil
}
