package cart

import (
	"errors"
	"time"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusCheckedOut Status = "checked_out"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrCartClosed      = errors.New("cart is not open")
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	ErrInvalidUser     = errors.New("user id is required")
)

type Item struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type Cart struct {
	ID        string    `json:"cartId"`
	UserID    string    `json:"userId"`
	Status    Status    `json:"status"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a copy that shares no memory with c.
func (c Cart) Clone() Cart {
	out := c
	out.Items = make([]Item, len(c.Items))
	copy(out.Items, c.Items)
	return out
}
