package inventory

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidDemand   = errors.New("demand quantity must be positive")
	ErrInvalidProduct  = errors.New("invalid product")
)

type Product struct {
	ID         string `json:"productId"`
	Name       string `json:"name"`
	PriceCents int64  `json:"priceCents"`
	Stock      int    `json:"stock"`
}

// Demand asks for Quantity units of a product.
type Demand struct {
	ProductID string
	Quantity  int
}

// Reservation is a satisfied demand together with the catalog data captured
// while the product row was held.
type Reservation struct {
	ProductID      string
	Name           string
	Quantity       int
	UnitPriceCents int64
}

// InsufficientStockError reports the first demand that could not be met.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

// Validate reports whether p may be stored.
func (p Product) Validate() error {
	if p.ID == "" || p.PriceCents < 0 || p.Stock < 0 {
		return ErrInvalidProduct
	}
	return nil
}

// NormalizeDemands merges demands for the same product and orders them by
// ascending product ID. Every ledger locks products in this order.
func NormalizeDemands(demands []Demand) []Demand {
	merged := make(map[string]int, len(demands))
	for _, d := range demands {
		merged[d.ProductID] += d.Quantity
	}

	out := make([]Demand, 0, len(merged))
	for id, qty := range merged {
		out = append(out, Demand{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// ValidateDemands rejects demands without a product or with a non-positive
// quantity.
func ValidateDemands(demands []Demand) error {
	for _, d := range demands {
		if d.ProductID == "" || d.Quantity <= 0 {
			return fmt.Errorf("%w: product %q quantity %d", ErrInvalidDemand, d.ProductID, d.Quantity)
		}
	}
	return nil
}
