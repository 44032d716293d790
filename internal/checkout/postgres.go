package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/events"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

const (
	sqlStateLockNotAvailable     = "55P03"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateSerializationFailure = "40001"
	sqlStateQueryCanceled        = "57014"
)

// PostgresUnitOfWork runs each attempt in a READ COMMITTED transaction and
// relies on row locks (SELECT ... FOR UPDATE) taken by the repositories.
type PostgresUnitOfWork struct {
	db          db.TxBeginner
	lockTimeout time.Duration
}

func NewPostgresUnitOfWork(beginner db.TxBeginner, lockTimeout time.Duration) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{db: beginner, lockTimeout: lockTimeout}
}

func (u *PostgresUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := u.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return translatePgError(fmt.Errorf("begin checkout: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if u.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", u.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return translatePgError(fmt.Errorf("set lock timeout: %w", err))
		}
	}

	if err := fn(ctx, pgTx{tx: tx}); err != nil {
		return translatePgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return translatePgError(fmt.Errorf("commit checkout: %w", err))
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t pgTx) Carts() cart.TxStore     { return cart.NewPostgresRepository(t.tx) }
func (t pgTx) Stock() inventory.Ledger { return inventory.NewPostgresRepository(t.tx) }
func (t pgTx) Orders() order.Ledger    { return order.NewPostgresRepository(t.tx) }
func (t pgTx) Outbox() events.Outbox   { return events.NewPostgresOutbox(t.tx) }

func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateLockNotAvailable, sqlStateQueryCanceled:
			return fmt.Errorf("%w: %v", ErrCheckoutTimeout, err)
		case sqlStateDeadlockDetected, sqlStateSerializationFailure:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	if pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", ErrCheckoutTimeout, err)
	}
	return err
}
