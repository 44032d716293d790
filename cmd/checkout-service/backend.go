package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/events"
	httpapi "github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/http"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/memstore"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

var demoCatalog = []inventory.Product{
	{ID: "p1", Name: "Sneaker", PriceCents: 99900, Stock: 5},
	{ID: "p2", Name: "Jacket", PriceCents: 149900, Stock: 2},
}

type backend struct {
	carts   cart.Store
	catalog inventory.Catalog
	orders  httpapi.OrderReader
	outbox  events.OutboxReader
	uow     checkout.UnitOfWork
	close   func()
}

// seed adds the demo catalog without touching products that already exist,
// so restarts never restore sold stock.
func (b backend) seed(ctx context.Context) error {
	for _, p := range demoCatalog {
		if err := b.catalog.SeedProduct(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func openBackend(ctx context.Context, cfg config.Config, logger zerolog.Logger) (backend, error) {
	if cfg.Store != config.StorePostgres {
		s := memstore.New()
		return backend{
			carts:   s.Carts(),
			catalog: s.Inventory(),
			orders:  s.Orders(),
			outbox:  s.Outbox(),
			uow:     s,
			close:   func() { _ = s.Close() },
		}, nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		return backend{}, fmt.Errorf("db connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return backend{}, fmt.Errorf("db ping: %w", err)
	}
	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseDSN, logger); err != nil {
			pool.Close()
			return backend{}, fmt.Errorf("db migrate: %w", err)
		}
	}

	return backend{
		carts:   cart.NewPostgresRepository(pool),
		catalog: inventory.NewPostgresRepository(pool),
		orders:  order.NewPostgresRepository(pool),
		outbox:  events.NewPostgresOutbox(pool),
		uow:     checkout.NewPostgresUnitOfWork(pool, cfg.LockTimeout),
		close:   pool.Close,
	}, nil
}
