package order

import "context"

// Ledger is the append-only record of committed orders. At most one order
// may reference a given cart.
type Ledger interface {
	RecordOrder(ctx context.Context, o Order) (string, error)
	Get(ctx context.Context, orderID string) (Order, error)
	GetByCart(ctx context.Context, cartID string) (Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}
