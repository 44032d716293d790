// Package checkout turns an open cart into an order. The whole attempt runs
// inside one storage transaction: the cart is locked, stock is reserved in
// ascending product order, the order and its OrderCreated outbox record are
// written and the cart is closed, or nothing is.
package checkout

import (
	"context"
	"errors"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

var (
	ErrCartAlreadyCheckedOut = errors.New("cart already checked out")
	ErrEmptyCart             = errors.New("cart has no items")
	ErrCheckoutTimeout       = errors.New("checkout timed out waiting for locks")
	ErrConflict              = errors.New("checkout conflicted with a concurrent transaction")
)

// State of a single checkout attempt.
type State string

const (
	StateStarted   State = "started"
	StateValidated State = "validated"
	StateReserved  State = "reserved"
	StateCommitted State = "committed"
	StateAborted   State = "aborted"
)

// Tx exposes the stores bound to one transaction. Locks taken through them
// are held until the transaction ends.
type Tx interface {
	Carts() cart.TxStore
	Stock() inventory.Ledger
	Orders() order.Ledger
	Outbox() events.Outbox
}

// UnitOfWork runs fn in a transaction and commits if fn returns nil.
// Any error from fn, or a failed commit, leaves no effect behind.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Outcome labels used for logging and metrics.
const (
	OutcomeCommitted         = "committed"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeEmptyCart         = "empty_cart"
	OutcomeNotFound          = "not_found"
	OutcomeAlreadyCheckedOut = "already_checked_out"
	OutcomeTimeout           = "timeout"
	OutcomeConflict          = "conflict"
	OutcomeCanceled          = "canceled"
	OutcomeError             = "error"
)

func Outcome(err error) string {
	var short *inventory.InsufficientStockError
	switch {
	case err == nil:
		return OutcomeCommitted
	case errors.As(err, &short):
		return OutcomeInsufficientStock
	case errors.Is(err, ErrEmptyCart):
		return OutcomeEmptyCart
	case errors.Is(err, cart.ErrCartNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrCartAlreadyCheckedOut):
		return OutcomeAlreadyCheckedOut
	case errors.Is(err, ErrCheckoutTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrConflict):
		return OutcomeConflict
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}
