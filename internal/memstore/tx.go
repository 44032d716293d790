package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

// tx stages writes until commit. Reads see committed state overlaid with
// the transaction's own writes.
type tx struct {
	s     *Store
	locks lockSet

	carts     map[string]cart.Cart
	products  map[string]inventory.Product
	orders    []order.Order
	sequences map[string]int64
	outbox    []events.Record
}

func (s *Store) begin() *tx {
	return &tx{
		s:         s,
		locks:     lockSet{table: s.locks},
		carts:     make(map[string]cart.Cart),
		products:  make(map[string]inventory.Product),
		sequences: make(map[string]int64),
	}
}

func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.commitHook != nil {
		if err := s.commitHook(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}

	for id, p := range t.products {
		if p.Stock < 0 {
			return fmt.Errorf("commit: stock for %s would be %d", id, p.Stock)
		}
	}
	for _, o := range t.orders {
		if _, dup := s.ordersByCart[o.CartID]; dup {
			return order.ErrDuplicateOrder
		}
	}

	for id, p := range t.products {
		s.products[id] = p
	}
	for id, c := range t.carts {
		s.carts[id] = c
	}
	for _, o := range t.orders {
		s.orders[o.ID] = o
		s.ordersByCart[o.CartID] = o.ID
	}
	for k, v := range t.sequences {
		s.sequences[k] = v
	}
	for _, rec := range t.outbox {
		s.nextOutboxID++
		rec.ID = s.nextOutboxID
		s.outbox = append(s.outbox, rec)
	}
	return nil
}

func (t *tx) product(id string) (inventory.Product, bool) {
	if p, ok := t.products[id]; ok {
		return p, true
	}
	return t.s.product(id)
}

func (t *tx) lockCart(ctx context.Context, id string) (cart.Cart, error) {
	if err := t.locks.acquire(ctx, cartKey(id)); err != nil {
		return cart.Cart{}, err
	}
	if c, ok := t.carts[id]; ok {
		return c.Clone(), nil
	}
	c, ok := t.s.cart(id)
	if !ok {
		return cart.Cart{}, cart.ErrCartNotFound
	}
	return c, nil
}

func (t *tx) upsertItem(ctx context.Context, cartID, productID string, quantity int) error {
	c, err := t.lockCart(ctx, cartID)
	if err != nil {
		return err
	}
	if c.Status != cart.StatusOpen {
		return cart.ErrCartClosed
	}
	if quantity <= 0 {
		return cart.ErrInvalidQuantity
	}
	if _, ok := t.product(productID); !ok {
		return inventory.ErrProductNotFound
	}

	replaced := false
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = quantity
			replaced = true
			break
		}
	}
	if !replaced {
		c.Items = append(c.Items, cart.Item{ProductID: productID, Quantity: quantity})
		sort.Slice(c.Items, func(i, j int) bool { return c.Items[i].ProductID < c.Items[j].ProductID })
	}
	t.carts[cartID] = c
	return nil
}

func (t *tx) markCheckedOut(ctx context.Context, cartID string) error {
	c, err := t.lockCart(ctx, cartID)
	if err != nil {
		return err
	}
	if c.Status != cart.StatusOpen {
		return cart.ErrCartClosed
	}
	c.Status = cart.StatusCheckedOut
	t.carts[cartID] = c
	return nil
}

// reserveAll locks every demanded product in ascending ID order and checks
// all of them before staging any decrement.
func (t *tx) reserveAll(ctx context.Context, demands []inventory.Demand) ([]inventory.Reservation, error) {
	if err := inventory.ValidateDemands(demands); err != nil {
		return nil, err
	}
	demands = inventory.NormalizeDemands(demands)

	reserved := make([]inventory.Reservation, 0, len(demands))
	for _, d := range demands {
		if err := t.locks.acquire(ctx, productKey(d.ProductID)); err != nil {
			return nil, err
		}
		p, ok := t.product(d.ProductID)
		available := 0
		if ok {
			available = p.Stock
		}
		if available < d.Quantity {
			return nil, &inventory.InsufficientStockError{ProductID: d.ProductID, Available: available, Requested: d.Quantity}
		}
		reserved = append(reserved, inventory.Reservation{
			ProductID:      d.ProductID,
			Name:           p.Name,
			Quantity:       d.Quantity,
			UnitPriceCents: p.PriceCents,
		})
	}

	for _, r := range reserved {
		p, _ := t.product(r.ProductID)
		p.Stock -= r.Quantity
		t.products[r.ProductID] = p
	}
	return reserved, nil
}

func (t *tx) setProduct(ctx context.Context, p inventory.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := t.locks.acquire(ctx, productKey(p.ID)); err != nil {
		return err
	}
	t.products[p.ID] = p
	return nil
}

func (t *tx) seedProduct(ctx context.Context, p inventory.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := t.locks.acquire(ctx, productKey(p.ID)); err != nil {
		return err
	}
	if _, ok := t.product(p.ID); ok {
		return nil
	}
	t.products[p.ID] = p
	return nil
}

func (t *tx) adjustStock(ctx context.Context, productID string, stock int) error {
	if stock < 0 {
		return inventory.ErrInvalidProduct
	}
	if err := t.locks.acquire(ctx, productKey(productID)); err != nil {
		return err
	}
	p, ok := t.product(productID)
	if !ok {
		return inventory.ErrProductNotFound
	}
	p.Stock = stock
	t.products[productID] = p
	return nil
}

func (t *tx) recordOrder(ctx context.Context, o order.Order) (string, error) {
	if err := t.locks.acquire(ctx, orderKey(o.CartID)); err != nil {
		return "", err
	}
	if _, dup := t.s.orderIDForCart(o.CartID); dup {
		return "", order.ErrDuplicateOrder
	}
	for _, staged := range t.orders {
		if staged.CartID == o.CartID {
			return "", order.ErrDuplicateOrder
		}
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	t.orders = append(t.orders, o.Clone())
	return o.ID, nil
}

func (t *tx) nextSequence(ctx context.Context, partitionKey string) (int64, error) {
	if partitionKey == "" {
		return 0, events.ErrMissingPartitionKey
	}
	if err := t.locks.acquire(ctx, sequenceKey(partitionKey)); err != nil {
		return 0, err
	}
	cur, ok := t.sequences[partitionKey]
	if !ok {
		t.s.mu.RLock()
		cur = t.s.sequences[partitionKey]
		t.s.mu.RUnlock()
	}
	cur++
	t.sequences[partitionKey] = cur
	return cur, nil
}

func (t *tx) enqueue(rec events.Record) {
	rec.Payload = append([]byte(nil), rec.Payload...)
	rec.SentAt = nil
	t.outbox = append(t.outbox, rec)
}

func (t *tx) stagedOrder(match func(order.Order) bool) (order.Order, bool) {
	for _, o := range t.orders {
		if match(o) {
			return o.Clone(), true
		}
	}
	return order.Order{}, false
}

// txView adapts a tx to checkout.Tx.
type txView struct{ t *tx }

var _ checkout.Tx = txView{}

func (v txView) Carts() cart.TxStore     { return txCarts(v) }
func (v txView) Stock() inventory.Ledger { return txStock(v) }
func (v txView) Orders() order.Ledger    { return txOrders(v) }
func (v txView) Outbox() events.Outbox   { return txOutbox(v) }

type txCarts struct{ t *tx }

func (c txCarts) GetForUpdate(ctx context.Context, cartID string) (cart.Cart, error) {
	return c.t.lockCart(ctx, cartID)
}

func (c txCarts) MarkCheckedOut(ctx context.Context, cartID string) error {
	return c.t.markCheckedOut(ctx, cartID)
}

type txStock struct{ t *tx }

func (s txStock) GetStock(_ context.Context, productID string) (int, error) {
	p, ok := s.t.product(productID)
	if !ok {
		return 0, inventory.ErrProductNotFound
	}
	return p.Stock, nil
}

func (s txStock) ReserveAll(ctx context.Context, demands []inventory.Demand) ([]inventory.Reservation, error) {
	return s.t.reserveAll(ctx, demands)
}

type txOrders struct{ t *tx }

func (o txOrders) RecordOrder(ctx context.Context, ord order.Order) (string, error) {
	return o.t.recordOrder(ctx, ord)
}

func (o txOrders) Get(_ context.Context, orderID string) (order.Order, error) {
	if ord, ok := o.t.stagedOrder(func(x order.Order) bool { return x.ID == orderID }); ok {
		return ord, nil
	}
	if ord, ok := o.t.s.order(orderID); ok {
		return ord, nil
	}
	return order.Order{}, order.ErrOrderNotFound
}

func (o txOrders) GetByCart(ctx context.Context, cartID string) (order.Order, error) {
	if ord, ok := o.t.stagedOrder(func(x order.Order) bool { return x.CartID == cartID }); ok {
		return ord, nil
	}
	id, ok := o.t.s.orderIDForCart(cartID)
	if !ok {
		return order.Order{}, order.ErrOrderNotFound
	}
	return o.Get(ctx, id)
}

func (o txOrders) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	out := o.t.s.ordersForUser(userID)
	for _, staged := range o.t.orders {
		if staged.UserID == userID {
			out = append(out, staged.Clone())
		}
	}
	sortOrders(out)
	return out, nil
}

type txOutbox struct{ t *tx }

func (o txOutbox) NextSequence(ctx context.Context, partitionKey string) (int64, error) {
	return o.t.nextSequence(ctx, partitionKey)
}

func (o txOutbox) Enqueue(_ context.Context, rec events.Record) error {
	o.t.enqueue(rec)
	return nil
}
