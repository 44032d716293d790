package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

// money renders minor units as a fixed two-decimal string.
func money(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlationId,omitempty"`
	ProductID     string `json:"productId,omitempty"`
	Available     *int   `json:"available,omitempty"`
	Requested     *int   `json:"requested,omitempty"`
}

type cartLineResponse struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	LineTotalCents int64  `json:"lineTotalCents"`
	LineTotal      string `json:"lineTotal"`
}

type cartResponse struct {
	CartID     string             `json:"cartId"`
	UserID     string             `json:"userId"`
	Status     cart.Status        `json:"status"`
	Items      []cartLineResponse `json:"items"`
	TotalCents int64              `json:"totalCents"`
	Total      string             `json:"total"`
	CreatedAt  time.Time          `json:"createdAt"`
}

type orderItemResponse struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	UnitPrice      string `json:"unitPrice"`
}

type orderResponse struct {
	OrderID    string              `json:"orderId"`
	CartID     string              `json:"cartId"`
	UserID     string              `json:"userId"`
	Items      []orderItemResponse `json:"items"`
	TotalCents int64               `json:"totalCents"`
	Total      string              `json:"total"`
	CreatedAt  time.Time           `json:"createdAt"`
	Replayed   bool                `json:"replayed,omitempty"`
}

func toOrderResponse(o order.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ProductID:      it.ProductID,
			Name:           it.Name,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			UnitPrice:      money(it.UnitPriceCents),
		})
	}
	return orderResponse{
		OrderID:    o.ID,
		CartID:     o.CartID,
		UserID:     o.UserID,
		Items:      items,
		TotalCents: o.TotalCents,
		Total:      money(o.TotalCents),
		CreatedAt:  o.CreatedAt,
	}
}

type productResponse struct {
	ProductID  string `json:"productId"`
	Name       string `json:"name"`
	PriceCents int64  `json:"priceCents"`
	Price      string `json:"price"`
	Stock      int    `json:"stock"`
}

func toProductResponse(p inventory.Product) productResponse {
	return productResponse{
		ProductID:  p.ID,
		Name:       p.Name,
		PriceCents: p.PriceCents,
		Price:      money(p.PriceCents),
		Stock:      p.Stock,
	}
}
