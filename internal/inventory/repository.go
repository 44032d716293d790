package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/db"
)

type PostgresRepository struct {
	db db.Executor
}

// NewPostgresRepository works on a pool or on an open pgx.Tx.
func NewPostgresRepository(exec db.Executor) *PostgresRepository {
	return &PostgresRepository{db: exec}
}

func (r *PostgresRepository) GetStock(ctx context.Context, productID string) (int, error) {
	p, err := r.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	return p.Stock, nil
}

func (r *PostgresRepository) GetProduct(ctx context.Context, productID string) (Product, error) {
	var p Product
	row := r.db.QueryRow(ctx, `SELECT id, name, price_cents, stock FROM products WHERE id = $1`, productID)
	if err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) SetProduct(ctx context.Context, p Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO products (id, name, price_cents, stock)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, price_cents = EXCLUDED.price_cents, stock = EXCLUDED.stock, updated_at = now()
	`, p.ID, p.Name, p.PriceCents, p.Stock)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SeedProduct(ctx context.Context, p Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO products (id, name, price_cents, stock)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, p.ID, p.Name, p.PriceCents, p.Stock)
	if err != nil {
		return fmt.Errorf("seed product: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AdjustStock(ctx context.Context, productID string, stock int) error {
	if stock < 0 {
		return ErrInvalidProduct
	}
	tag, err := r.db.Exec(ctx, `UPDATE products SET stock = $2, updated_at = now() WHERE id = $1`, productID, stock)
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// ReserveAll locks every demanded product row (SELECT ... FOR UPDATE) in
// ascending ID order, checks all of them, and only then decrements. The work
// runs in its own transaction, or in a savepoint when the repository is bound
// to a pgx.Tx, so a short line leaves no partial update behind.
func (r *PostgresRepository) ReserveAll(ctx context.Context, demands []Demand) ([]Reservation, error) {
	if err := ValidateDemands(demands); err != nil {
		return nil, err
	}
	demands = NormalizeDemands(demands)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reserve: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	reserved, err := reserveWithTx(ctx, tx, demands)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reserve: %w", err)
	}
	return reserved, nil
}

func reserveWithTx(ctx context.Context, tx pgx.Tx, demands []Demand) ([]Reservation, error) {
	locked := make([]Reservation, 0, len(demands))

	for _, d := range demands {
		var (
			available int
			name      string
			price     int64
		)
		err := tx.QueryRow(ctx, `
			SELECT stock, name, price_cents
			FROM products
			WHERE id = $1
			FOR UPDATE
		`, d.ProductID).Scan(&available, &name, &price)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("lock product %s: %w", d.ProductID, err)
			}
			available = 0
		}

		if available < d.Quantity {
			return nil, &InsufficientStockError{ProductID: d.ProductID, Available: available, Requested: d.Quantity}
		}
		locked = append(locked, Reservation{ProductID: d.ProductID, Name: name, Quantity: d.Quantity, UnitPriceCents: price})
	}

	for _, res := range locked {
		_, err := tx.Exec(ctx, `
			UPDATE products
			SET stock = stock - $2, updated_at = now()
			WHERE id = $1
		`, res.ProductID, res.Quantity)
		if err != nil {
			return nil, fmt.Errorf("decrement product %s: %w", res.ProductID, err)
		}
	}

	return locked, nil
}
