package order

import (
	"errors"
	"time"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order already recorded for cart")
)

// Item is the snapshot of a cart line at commit time.
type Item struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

func (it Item) LineTotalCents() int64 {
	return it.UnitPriceCents * int64(it.Quantity)
}

type Order struct {
	ID         string    `json:"orderId"`
	CartID     string    `json:"cartId"`
	UserID     string    `json:"userId"`
	Items      []Item    `json:"items"`
	TotalCents int64     `json:"totalCents"`
	CreatedAt  time.Time `json:"createdAt"`
}

func TotalCents(items []Item) int64 {
	var total int64
	for _, it := range items {
		total += it.LineTotalCents()
	}
	return total
}

// Clone returns a copy that shares no slices with o.
func (o Order) Clone() Order {
	out := o
	out.Items = make([]Item, len(o.Items))
	copy(out.Items, o.Items)
	return out
}
