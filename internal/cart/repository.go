package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/inventory"
)

type PostgresRepository struct {
	db  db.Executor
	now func() time.Time
}

func NewPostgresRepository(exec db.Executor) *PostgresRepository {
	return &PostgresRepository{db: exec, now: time.Now}
}

func (r *PostgresRepository) Create(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, ErrInvalidUser
	}

	c := Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    StatusOpen,
		Items:     []Item{},
		CreatedAt: r.now().UTC(),
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO carts (id, user_id, status, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.UserID, string(c.Status), c.CreatedAt,
	)
	if err != nil {
		return Cart{}, fmt.Errorf("insert cart: %w", err)
	}
	return c, nil
}

// UpsertItem replaces the quantity for productID. The cart row is locked for
// the duration so a concurrent checkout either sees the new line or makes
// this call fail with ErrCartClosed.
func (r *PostgresRepository) UpsertItem(ctx context.Context, cartID, productID string, quantity int) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert item: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := lockCart(ctx, tx, cartID)
	if err != nil {
		return err
	}
	if c.Status != StatusOpen {
		return ErrCartClosed
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return fmt.Errorf("check product: %w", err)
	}
	if !exists {
		return inventory.ErrProductNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity
	`, cartID, productID, quantity)
	if err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert item: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, cartID string) (Cart, error) {
	var c Cart
	var status string
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, status, created_at FROM carts WHERE id = $1`, cartID,
	).Scan(&c.ID, &c.UserID, &status, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cart{}, ErrCartNotFound
		}
		return Cart{}, fmt.Errorf("select cart: %w", err)
	}
	c.Status = Status(status)

	items, err := loadItems(ctx, r.db, c.ID)
	if err != nil {
		return Cart{}, err
	}
	c.Items = items
	return c, nil
}

// GetForUpdate must run on a repository bound to a pgx.Tx; the row lock is
// released when that transaction ends.
func (r *PostgresRepository) GetForUpdate(ctx context.Context, cartID string) (Cart, error) {
	c, err := lockCart(ctx, r.db, cartID)
	if err != nil {
		return Cart{}, err
	}
	items, err := loadItems(ctx, r.db, c.ID)
	if err != nil {
		return Cart{}, err
	}
	c.Items = items
	return c, nil
}

func (r *PostgresRepository) MarkCheckedOut(ctx context.Context, cartID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE carts SET status = $2 WHERE id = $1 AND status = $3`,
		cartID, string(StatusCheckedOut), string(StatusOpen),
	)
	if err != nil {
		return fmt.Errorf("mark cart checked out: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCartClosed
	}
	return nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func lockCart(ctx context.Context, q queryRower, cartID string) (Cart, error) {
	var c Cart
	var status string
	err := q.QueryRow(ctx, `
		SELECT id, user_id, status, created_at
		FROM carts
		WHERE id = $1
		FOR UPDATE
	`, cartID).Scan(&c.ID, &c.UserID, &status, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cart{}, ErrCartNotFound
		}
		return Cart{}, fmt.Errorf("lock cart: %w", err)
	}
	c.Status = Status(status)
	return c, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q querier, cartID string) ([]Item, error) {
	rows, err := q.Query(ctx,
		`SELECT product_id, quantity FROM cart_items WHERE cart_id = $1 ORDER BY product_id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("select cart items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cart items rows: %w", err)
	}
	return items, nil
}
