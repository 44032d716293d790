package inventory

import "context"

// Ledger owns stock counts. ReserveAll is all-or-nothing: on
// *InsufficientStockError no product has changed.
type Ledger interface {
	GetStock(ctx context.Context, productID string) (int, error)
	ReserveAll(ctx context.Context, demands []Demand) ([]Reservation, error)
}

// Catalog is the administrative side of the ledger.
type Catalog interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
	SetProduct(ctx context.Context, p Product) error
	// SeedProduct inserts p only if no product with its ID exists.
	SeedProduct(ctx context.Context, p Product) error
	AdjustStock(ctx context.Context, productID string, stock int) error
}
