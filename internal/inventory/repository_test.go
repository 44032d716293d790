package inventory

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

var (
	lockProductSQL      = regexp.QuoteMeta(`SELECT stock, name, price_cents`)
	decrementProductSQL = regexp.QuoteMeta(`UPDATE products`)
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func lockedRow(stock int, name string, price int64) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"stock", "name", "price_cents"}).AddRow(stock, name, price)
}

func TestPostgresRepository_GetStock(t *testing.T) {
	ctx := context.Background()
	mock := newMock(t)
	repo := NewPostgresRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, price_cents, stock FROM products WHERE id = $1`)).
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "price_cents", "stock"}).AddRow("p1", "Sneaker", int64(99900), 7))

	stock, err := repo.GetStock(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 7, stock)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetStockMissing(t *testing.T) {
	ctx := context.Background()
	mock := newMock(t)
	repo := NewPostgresRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM products WHERE id = $1`)).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetStock(ctx, "missing")
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestPostgresRepository_AdjustStock(t *testing.T) {
	ctx := context.Background()

	t.Run("updates existing product", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)

		mock.ExpectExec(regexp.QuoteMeta(`UPDATE products SET stock = $2`)).
			WithArgs("p1", 10).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.AdjustStock(ctx, "p1", 10))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown product", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)

		mock.ExpectExec(regexp.QuoteMeta(`UPDATE products SET stock = $2`)).
			WithArgs("nope", 1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		require.ErrorIs(t, repo.AdjustStock(ctx, "nope", 1), ErrProductNotFound)
	})

	t.Run("negative stock rejected without touching the db", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)

		require.ErrorIs(t, repo.AdjustStock(ctx, "p1", -1), ErrInvalidProduct)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepository_SeedProduct(t *testing.T) {
	ctx := context.Background()
	mock := newMock(t)
	repo := NewPostgresRepository(mock)

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (id) DO NOTHING`)).
		WithArgs("p1", "Sneaker", int64(99900), 5).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, repo.SeedProduct(ctx, Product{ID: "p1", Name: "Sneaker", PriceCents: 99900, Stock: 5}))
	require.ErrorIs(t, repo.SeedProduct(ctx, Product{ID: "p2", Stock: -1}), ErrInvalidProduct)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ReserveAll(t *testing.T) {
	ctx := context.Background()

	t.Run("locks in ascending id order and decrements", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery(lockProductSQL).WithArgs("p1").WillReturnRows(lockedRow(5, "Sneaker", 99900))
		mock.ExpectQuery(lockProductSQL).WithArgs("p2").WillReturnRows(lockedRow(3, "Jacket", 149900))
		mock.ExpectExec(decrementProductSQL).WithArgs("p1", 2).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(decrementProductSQL).WithArgs("p2", 1).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		reserved, err := repo.ReserveAll(ctx, []Demand{
			{ProductID: "p2", Quantity: 1},
			{ProductID: "p1", Quantity: 2},
		})
		require.NoError(t, err)
		require.Equal(t, []Reservation{
			{ProductID: "p1", Name: "Sneaker", Quantity: 2, UnitPriceCents: 99900},
			{ProductID: "p2", Name: "Jacket", Quantity: 1, UnitPriceCents: 149900},
		}, reserved)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient stock rolls back before any update", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery(lockProductSQL).WithArgs("p1").WillReturnRows(lockedRow(1, "Sneaker", 99900))
		mock.ExpectRollback()

		_, err := repo.ReserveAll(ctx, []Demand{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		})

		var short *InsufficientStockError
		require.True(t, errors.As(err, &short))
		require.Equal(t, InsufficientStockError{ProductID: "p1", Available: 1, Requested: 2}, *short)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown product counts as zero available", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery(lockProductSQL).WithArgs("missing").WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		_, err := repo.ReserveAll(ctx, []Demand{{ProductID: "missing", Quantity: 1}})

		var short *InsufficientStockError
		require.True(t, errors.As(err, &short))
		require.Equal(t, 0, short.Available)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("update failure rolls back", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery(lockProductSQL).WithArgs("p1").WillReturnRows(lockedRow(3, "Sneaker", 99900))
		mock.ExpectExec(decrementProductSQL).WithArgs("p1", 1).WillReturnError(errors.New("update fail"))
		mock.ExpectRollback()

		_, err := repo.ReserveAll(ctx, []Demand{{ProductID: "p1", Quantity: 1}})
		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit failure surfaces", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery(lockProductSQL).WithArgs("p1").WillReturnRows(lockedRow(3, "Sneaker", 99900))
		mock.ExpectExec(decrementProductSQL).WithArgs("p1", 1).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit().WillReturnError(errors.New("commit fail"))

		_, err := repo.ReserveAll(ctx, []Demand{{ProductID: "p1", Quantity: 1}})
		require.ErrorContains(t, err, "commit reserve")
	})

	t.Run("begin failure surfaces", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)

		mock.ExpectBegin().WillReturnError(errors.New("cannot begin"))

		_, err := repo.ReserveAll(ctx, []Demand{{ProductID: "p1", Quantity: 1}})
		require.Error(t, err)
	})

	t.Run("invalid demand never reaches the db", func(t *testing.T) {
		mock := newMock(t)
		repo := NewPostgresRepository(mock)

		_, err := repo.ReserveAll(ctx, []Demand{{ProductID: "p1", Quantity: 0}})
		require.ErrorIs(t, err, ErrInvalidDemand)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
