// Package memstore is an in-process implementation of the cart, inventory,
// order and outbox stores with real transactions: per-key exclusive locks
// acquired with the caller's context, writes staged in the transaction and
// applied atomically on commit.
//
// A Store is an owned value. Construct it with New, pass it by handle and
// Close it on shutdown.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

var ErrClosed = errors.New("memstore: store closed")

type Store struct {
	mu           sync.RWMutex
	closed       bool
	products     map[string]inventory.Product
	carts        map[string]cart.Cart
	orders       map[string]order.Order
	ordersByCart map[string]string
	sequences    map[string]int64
	outbox       []events.Record
	nextOutboxID int64

	locks      *lockTable
	now        func() time.Time
	commitHook func() error
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithCommitHook installs fn to run at the start of every commit, with the
// store mutex held. A non-nil error aborts the commit.
func WithCommitHook(fn func() error) Option {
	return func(s *Store) { s.commitHook = fn }
}

func New(opts ...Option) *Store {
	s := &Store{
		products:     make(map[string]inventory.Product),
		carts:        make(map[string]cart.Cart),
		orders:       make(map[string]order.Order),
		ordersByCart: make(map[string]string),
		sequences:    make(map[string]int64),
		locks:        newLockTable(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close makes every later operation fail with ErrClosed. Transactions
// already past their commit are unaffected.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Store) Carts() *CartStore          { return &CartStore{s: s} }
func (s *Store) Inventory() *InventoryStore { return &InventoryStore{s: s} }
func (s *Store) Orders() *OrderStore        { return &OrderStore{s: s} }
func (s *Store) Outbox() *OutboxStore       { return &OutboxStore{s: s} }

// WithinTx implements checkout.UnitOfWork.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	return s.run(ctx, func(ctx context.Context, t *tx) error {
		return fn(ctx, txView{t: t})
	})
}

// run executes fn in a fresh transaction. Locks are released after commit
// or rollback.
func (s *Store) run(ctx context.Context, fn func(ctx context.Context, t *tx) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	t := s.begin()
	defer t.locks.releaseAll()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.commit()
}

func (s *Store) product(id string) (inventory.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	return p, ok
}

func (s *Store) cart(id string) (cart.Cart, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.carts[id]
	if !ok {
		return cart.Cart{}, false
	}
	return c.Clone(), true
}

func (s *Store) order(id string) (order.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, false
	}
	return o.Clone(), true
}

func (s *Store) orderIDForCart(cartID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.ordersByCart[cartID]
	return id, ok
}

func (s *Store) ordersForUser(userID string) []order.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []order.Order{}
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o.Clone())
		}
	}
	return out
}

func sortOrders(orders []order.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
}
