package checkout_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("checkout"),
		postgres.WithUsername("checkout"),
		postgres.WithPassword("checkout"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, pgContainer)
	require.NoError(t, err)

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(dsn, zerolog.Nop()))

	pool, err := db.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	catalog := inventory.NewPostgresRepository(pool)
	require.NoError(t, catalog.SetProduct(ctx, inventory.Product{ID: "p1", Name: "Sneaker", PriceCents: 99900, Stock: 5}))
	require.NoError(t, catalog.SetProduct(ctx, inventory.Product{ID: "p2", Name: "Jacket", PriceCents: 149900, Stock: 2}))
	return pool
}

func newPostgresCart(t *testing.T, carts *cart.PostgresRepository, items map[string]int) string {
	t.Helper()
	ctx := context.Background()
	c, err := carts.Create(ctx, "user-1")
	require.NoError(t, err)
	for productID, qty := range items {
		require.NoError(t, carts.UpsertItem(ctx, c.ID, productID, qty))
	}
	return c.ID
}

func TestPostgresCheckout(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()

	carts := cart.NewPostgresRepository(pool)
	stock := inventory.NewPostgresRepository(pool)
	orders := order.NewPostgresRepository(pool)
	outbox := events.NewPostgresOutbox(pool)
	coord := checkout.NewCoordinator(checkout.NewPostgresUnitOfWork(pool, time.Second),
		checkout.Config{Timeout: 5 * time.Second}, zerolog.Nop())

	t.Run("commit", func(t *testing.T) {
		cartID := newPostgresCart(t, carts, map[string]int{"p1": 1, "p2": 1})

		o, err := coord.Checkout(ctx, cartID)
		require.NoError(t, err)
		assert.Equal(t, int64(249800), o.TotalCents)

		got, err := orders.GetByCart(ctx, cartID)
		require.NoError(t, err)
		assert.Equal(t, o.ID, got.ID)
		assert.Len(t, got.Items, 2)

		c, err := carts.Get(ctx, cartID)
		require.NoError(t, err)
		assert.Equal(t, cart.StatusCheckedOut, c.Status)

		_, err = coord.Checkout(ctx, cartID)
		require.ErrorIs(t, err, checkout.ErrCartAlreadyCheckedOut)

		pending, err := outbox.FetchPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, cartID, pending[0].PartitionKey)
		assert.Equal(t, events.OrderCreatedRoutingKey, pending[0].Topic)
		require.NoError(t, outbox.MarkSent(ctx, pending[0].ID))
	})

	t.Run("reseed keeps sold stock", func(t *testing.T) {
		before, err := stock.GetStock(ctx, "p2")
		require.NoError(t, err)
		require.NoError(t, stock.SeedProduct(ctx, inventory.Product{ID: "p2", Name: "Jacket", PriceCents: 1, Stock: 2}))

		p2, err := stock.GetProduct(ctx, "p2")
		require.NoError(t, err)
		assert.Equal(t, before, p2.Stock)
		assert.Equal(t, int64(149900), p2.PriceCents)
	})

	t.Run("all or nothing", func(t *testing.T) {
		require.NoError(t, stock.AdjustStock(ctx, "p1", 1))
		require.NoError(t, stock.AdjustStock(ctx, "p2", 5))
		cartID := newPostgresCart(t, carts, map[string]int{"p1": 2, "p2": 1})

		_, err := coord.Checkout(ctx, cartID)
		var short *inventory.InsufficientStockError
		require.ErrorAs(t, err, &short)
		assert.Equal(t, inventory.InsufficientStockError{ProductID: "p1", Available: 1, Requested: 2}, *short)

		p2, err := stock.GetStock(ctx, "p2")
		require.NoError(t, err)
		assert.Equal(t, 5, p2)
		c, err := carts.Get(ctx, cartID)
		require.NoError(t, err)
		assert.Equal(t, cart.StatusOpen, c.Status)
	})

	t.Run("concurrent checkouts never oversell", func(t *testing.T) {
		require.NoError(t, stock.AdjustStock(ctx, "p1", 5))
		a := newPostgresCart(t, carts, map[string]int{"p1": 3})
		b := newPostgresCart(t, carts, map[string]int{"p1": 3})

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, id := range []string{a, b} {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				_, errs[i] = coord.Checkout(ctx, id)
			}(i, id)
		}
		wg.Wait()

		var committed, short int
		for _, err := range errs {
			var ise *inventory.InsufficientStockError
			switch {
			case err == nil:
				committed++
			case errors.As(err, &ise):
				short++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, committed)
		assert.Equal(t, 1, short)

		left, err := stock.GetStock(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 2, left)
	})

	t.Run("duplicate checkouts place one order", func(t *testing.T) {
		require.NoError(t, stock.AdjustStock(ctx, "p1", 50))
		cartID := newPostgresCart(t, carts, map[string]int{"p1": 1})

		const n = 8
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = coord.Checkout(ctx, cartID)
			}(i)
		}
		wg.Wait()

		var committed int
		for _, err := range errs {
			if err == nil {
				committed++
				continue
			}
			require.ErrorIs(t, err, checkout.ErrCartAlreadyCheckedOut)
		}
		assert.Equal(t, 1, committed)

		left, err := stock.GetStock(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 49, left)
	})

	t.Run("lock wait times out", func(t *testing.T) {
		cartID := newPostgresCart(t, carts, map[string]int{"p1": 1})

		holder, err := pool.Begin(ctx)
		require.NoError(t, err)
		defer func() { _ = holder.Rollback(ctx) }()
		_, err = holder.Exec(ctx, "SELECT id FROM carts WHERE id = $1 FOR UPDATE", cartID)
		require.NoError(t, err)

		impatient := checkout.NewCoordinator(checkout.NewPostgresUnitOfWork(pool, 200*time.Millisecond),
			checkout.Config{Timeout: 5 * time.Second}, zerolog.Nop())
		_, err = impatient.Checkout(ctx, cartID)
		require.ErrorIs(t, err, checkout.ErrCheckoutTimeout)

		require.NoError(t, holder.Rollback(ctx))
		_, err = impatient.Checkout(ctx, cartID)
		require.NoError(t, err)
	})
}
