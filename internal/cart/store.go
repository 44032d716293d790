package cart

import "context"

// Store is the client-facing cart API. Item mutation only contends with
// checkout or mutation of the same cart.
type Store interface {
	Create(ctx context.Context, userID string) (Cart, error)
	UpsertItem(ctx context.Context, cartID, productID string, quantity int) error
	Get(ctx context.Context, cartID string) (Cart, error)
}

// TxStore is the view of carts available inside a checkout transaction.
// GetForUpdate holds the cart exclusively until the transaction ends.
type TxStore interface {
	GetForUpdate(ctx context.Context, cartID string) (Cart, error)
	MarkCheckedOut(ctx context.Context, cartID string) error
}
