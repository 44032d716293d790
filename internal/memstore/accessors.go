package memstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

type CartStore struct{ s *Store }

var _ cart.Store = (*CartStore)(nil)

func (c *CartStore) Create(_ context.Context, userID string) (cart.Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return cart.Cart{}, cart.ErrInvalidUser
	}
	ct := cart.Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    cart.StatusOpen,
		Items:     []cart.Item{},
		CreatedAt: c.s.now().UTC(),
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if c.s.closed {
		return cart.Cart{}, ErrClosed
	}
	c.s.carts[ct.ID] = ct
	return ct.Clone(), nil
}

// UpsertItem locks only the cart, so it contends with nothing but checkout
// or mutation of the same cart.
func (c *CartStore) UpsertItem(ctx context.Context, cartID, productID string, quantity int) error {
	return c.s.run(ctx, func(ctx context.Context, t *tx) error {
		return t.upsertItem(ctx, cartID, productID, quantity)
	})
}

func (c *CartStore) Get(_ context.Context, cartID string) (cart.Cart, error) {
	if err := c.s.checkOpen(); err != nil {
		return cart.Cart{}, err
	}
	ct, ok := c.s.cart(cartID)
	if !ok {
		return cart.Cart{}, cart.ErrCartNotFound
	}
	return ct, nil
}

type InventoryStore struct{ s *Store }

var (
	_ inventory.Ledger  = (*InventoryStore)(nil)
	_ inventory.Catalog = (*InventoryStore)(nil)
)

func (i *InventoryStore) GetStock(ctx context.Context, productID string) (int, error) {
	p, err := i.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	return p.Stock, nil
}

func (i *InventoryStore) GetProduct(_ context.Context, productID string) (inventory.Product, error) {
	if err := i.s.checkOpen(); err != nil {
		return inventory.Product{}, err
	}
	p, ok := i.s.product(productID)
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return p, nil
}

func (i *InventoryStore) ReserveAll(ctx context.Context, demands []inventory.Demand) ([]inventory.Reservation, error) {
	var reserved []inventory.Reservation
	err := i.s.run(ctx, func(ctx context.Context, t *tx) error {
		var err error
		reserved, err = t.reserveAll(ctx, demands)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reserved, nil
}

func (i *InventoryStore) SetProduct(ctx context.Context, p inventory.Product) error {
	return i.s.run(ctx, func(ctx context.Context, t *tx) error {
		return t.setProduct(ctx, p)
	})
}

func (i *InventoryStore) SeedProduct(ctx context.Context, p inventory.Product) error {
	return i.s.run(ctx, func(ctx context.Context, t *tx) error {
		return t.seedProduct(ctx, p)
	})
}

func (i *InventoryStore) AdjustStock(ctx context.Context, productID string, stock int) error {
	return i.s.run(ctx, func(ctx context.Context, t *tx) error {
		return t.adjustStock(ctx, productID, stock)
	})
}

// OrderStore is the read side of the order ledger. Orders are only written
// by checkout transactions.
type OrderStore struct{ s *Store }

func (o *OrderStore) RecordOrder(ctx context.Context, ord order.Order) (string, error) {
	var id string
	err := o.s.run(ctx, func(ctx context.Context, t *tx) error {
		var err error
		id, err = t.recordOrder(ctx, ord)
		return err
	})
	return id, err
}

func (o *OrderStore) Get(_ context.Context, orderID string) (order.Order, error) {
	if err := o.s.checkOpen(); err != nil {
		return order.Order{}, err
	}
	ord, ok := o.s.order(orderID)
	if !ok {
		return order.Order{}, order.ErrOrderNotFound
	}
	return ord, nil
}

func (o *OrderStore) GetByCart(ctx context.Context, cartID string) (order.Order, error) {
	id, ok := o.s.orderIDForCart(cartID)
	if !ok {
		return order.Order{}, order.ErrOrderNotFound
	}
	return o.Get(ctx, id)
}

func (o *OrderStore) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	if err := o.s.checkOpen(); err != nil {
		return nil, err
	}
	out := o.s.ordersForUser(userID)
	sortOrders(out)
	return out, nil
}

var _ order.Ledger = (*OrderStore)(nil)

type OutboxStore struct{ s *Store }

var _ events.OutboxReader = (*OutboxStore)(nil)

func (o *OutboxStore) FetchPending(_ context.Context, limit int) ([]events.Record, error) {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()
	if o.s.closed {
		return nil, ErrClosed
	}

	var out []events.Record
	for _, rec := range o.s.outbox {
		if limit > 0 && len(out) == limit {
			break
		}
		if rec.SentAt == nil {
			rec.Payload = append([]byte(nil), rec.Payload...)
			out = append(out, rec)
		}
	}
	return out, nil
}

func (o *OutboxStore) MarkSent(_ context.Context, id int64) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	if o.s.closed {
		return ErrClosed
	}
	for i := range o.s.outbox {
		if o.s.outbox[i].ID == id {
			sent := o.s.now().UTC()
			o.s.outbox[i].SentAt = &sent
			return nil
		}
	}
	return fmt.Errorf("mark outbox sent %d: %w", id, events.ErrRecordNotFound)
}

// Len reports the number of records ever enqueued.
func (o *OutboxStore) Len() int {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()
	return len(o.s.outbox)
}

// Seed inserts products that do not exist yet. Existing products keep their
// stock, name and price.
func (s *Store) Seed(ctx context.Context, products ...inventory.Product) error {
	for _, p := range products {
		if err := s.Inventory().SeedProduct(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

