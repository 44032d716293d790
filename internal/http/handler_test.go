package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/idempotency"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/memstore"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

type testServer struct {
	store   *memstore.Store
	metrics *metrics.ServerMetrics
	router  http.Handler
}

func newTestServer(t *testing.T, idem idempotency.Store) *testServer {
	t.Helper()
	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Seed(context.Background(),
		inventory.Product{ID: "p1", Name: "Sneaker", PriceCents: 99900, Stock: 5},
		inventory.Product{ID: "p2", Name: "Jacket", PriceCents: 149900, Stock: 2},
	))

	m := metrics.NewServerMetrics("checkout")
	logger := zerolog.Nop()
	coord := checkout.NewCoordinator(store, checkout.Config{Timeout: time.Second}, logger, checkout.WithObserver(m))

	h := NewHandler(Deps{
		Carts:       store.Carts(),
		Catalog:     store.Inventory(),
		Orders:      store.Orders(),
		Checkout:    coord,
		Idempotency: idem,
		Metrics:     m,
		Logger:      logger,
	})
	return &testServer{store: store, metrics: m, router: NewRouter(h)}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) newCart(t *testing.T, items map[string]int) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/carts", map[string]string{"userId": "user-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))

	for productID, qty := range items {
		rec := s.do(t, http.MethodPost, "/api/carts/"+c.CartID+"/items", upsertItemRequest{ProductID: productID, Quantity: qty})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	return c.CartID
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestCorrelationID(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/health", nil, HeaderCorrelationID, "cid-123")
	assert.Equal(t, "cid-123", rec.Header().Get(HeaderCorrelationID))

	rec = s.do(t, http.MethodGet, "/api/carts/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	generated := rec.Header().Get(HeaderCorrelationID)
	require.NotEmpty(t, generated)
	assert.Equal(t, generated, decode[errorResponse](t, rec).CorrelationID)
}

func TestCreateCart(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/carts", map[string]string{"userId": "user-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	c := decode[cartResponse](t, rec)
	assert.NotEmpty(t, c.CartID)
	assert.Equal(t, "user-1", c.UserID)
	assert.Equal(t, "open", string(c.Status))
	assert.Empty(t, c.Items)
	assert.Equal(t, "0.00", c.Total)

	rec = s.do(t, http.MethodPost, "/api/carts", map[string]string{"userId": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/carts", bytes.NewBufferString("{"))
	res := httptest.NewRecorder()
	s.router.ServeHTTP(res, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestGetCart_JoinsCatalogOrderedByName(t *testing.T) {
	s := newTestServer(t, nil)
	cartID := s.newCart(t, map[string]int{"p1": 2, "p2": 1})

	rec := s.do(t, http.MethodGet, "/api/carts/"+cartID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	c := decode[cartResponse](t, rec)

	require.Len(t, c.Items, 2)
	assert.Equal(t, "Jacket", c.Items[0].Name)
	assert.Equal(t, "Sneaker", c.Items[1].Name)
	assert.Equal(t, int64(199800), c.Items[1].LineTotalCents)
	assert.Equal(t, "1998.00", c.Items[1].LineTotal)
	assert.Equal(t, int64(349700), c.TotalCents)
	assert.Equal(t, "3497.00", c.Total)
}

func TestUpsertItem(t *testing.T) {
	s := newTestServer(t, nil)
	cartID := s.newCart(t, nil)
	path := "/api/carts/" + cartID + "/items"

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"sets quantity", path, upsertItemRequest{ProductID: "p1", Quantity: 3}, http.StatusOK},
		{"same quantity again", path, upsertItemRequest{ProductID: "p1", Quantity: 3}, http.StatusOK},
		{"zero quantity", path, upsertItemRequest{ProductID: "p1", Quantity: 0}, http.StatusBadRequest},
		{"missing product id", path, upsertItemRequest{Quantity: 1}, http.StatusBadRequest},
		{"unknown product", path, upsertItemRequest{ProductID: "nope", Quantity: 1}, http.StatusNotFound},
		{"unknown cart", "/api/carts/missing/items", upsertItemRequest{ProductID: "p1", Quantity: 1}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	c := decode[cartResponse](t, s.do(t, http.MethodGet, "/api/carts/"+cartID, nil))
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)
}

func TestCheckout(t *testing.T) {
	s := newTestServer(t, nil)
	cartID := s.newCart(t, map[string]int{"p1": 2, "p2": 1})

	rec := s.do(t, http.MethodPost, "/api/carts/"+cartID+"/checkout", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	o := decode[orderResponse](t, rec)
	assert.NotEmpty(t, o.OrderID)
	assert.Equal(t, cartID, o.CartID)
	assert.Equal(t, int64(349700), o.TotalCents)
	assert.Equal(t, "3497.00", o.Total)
	assert.False(t, o.Replayed)

	stock := decode[productResponse](t, s.do(t, http.MethodGet, "/api/products/p1/stock", nil))
	assert.Equal(t, 3, stock.Stock)

	got := decode[orderResponse](t, s.do(t, http.MethodGet, "/api/orders/"+o.OrderID, nil))
	assert.Equal(t, o.OrderID, got.OrderID)
	assert.Len(t, got.Items, 2)

	list := decode[[]orderResponse](t, s.do(t, http.MethodGet, "/api/users/user-1/orders", nil))
	require.Len(t, list, 1)
	assert.Equal(t, o.OrderID, list[0].OrderID)

	t.Run("second checkout conflicts", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/carts/"+cartID+"/checkout", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("closed cart rejects items", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/carts/"+cartID+"/items", upsertItemRequest{ProductID: "p1", Quantity: 1})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.CheckoutAttempts.WithLabelValues(checkout.OutcomeCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.Requests.WithLabelValues("/api/carts/{cartId}/checkout", "201")))
}

func TestCheckout_Errors(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("insufficient stock", func(t *testing.T) {
		cartID := s.newCart(t, map[string]int{"p2": 3})
		rec := s.do(t, http.MethodPost, "/api/carts/"+cartID+"/checkout", nil)
		require.Equal(t, http.StatusConflict, rec.Code)
		body := decode[errorResponse](t, rec)
		assert.Equal(t, "insufficient stock", body.Error)
		assert.Equal(t, "p2", body.ProductID)
		require.NotNil(t, body.Available)
		require.NotNil(t, body.Requested)
		assert.Equal(t, 2, *body.Available)
		assert.Equal(t, 3, *body.Requested)

		c := decode[cartResponse](t, s.do(t, http.MethodGet, "/api/carts/"+cartID, nil))
		assert.Equal(t, "open", string(c.Status))
	})

	t.Run("empty cart", func(t *testing.T) {
		cartID := s.newCart(t, nil)
		rec := s.do(t, http.MethodPost, "/api/carts/"+cartID+"/checkout", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown cart", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/carts/missing/checkout", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown order", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/orders/missing", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

type stubCheckouter struct{ err error }

func (s stubCheckouter) Checkout(context.Context, string) (order.Order, error) {
	return order.Order{}, s.err
}

func TestCheckout_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"timeout", checkout.ErrCheckoutTimeout, http.StatusGatewayTimeout},
		{"conflict", checkout.ErrConflict, http.StatusConflict},
		{"already checked out", checkout.ErrCartAlreadyCheckedOut, http.StatusConflict},
		{"infrastructure", errors.New("storage unavailable"), http.StatusInternalServerError},
		{"client went away", context.Canceled, StatusClientClosedRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(Deps{Checkout: stubCheckouter{err: tt.err}, Logger: zerolog.Nop()})
			req := httptest.NewRequest(http.MethodPost, "/api/carts/c1/checkout", nil)
			rec := httptest.NewRecorder()
			NewRouter(h).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

// slowCheckouter places one order after delay unless its context ends first.
type slowCheckouter struct {
	delay time.Duration
	calls atomic.Int32
}

func (s *slowCheckouter) Checkout(ctx context.Context, cartID string) (order.Order, error) {
	s.calls.Add(1)
	select {
	case <-time.After(s.delay):
		return order.Order{ID: "o1", CartID: cartID, UserID: "user-1"}, nil
	case <-ctx.Done():
		return order.Order{}, ctx.Err()
	}
}

func TestCheckout_SharedAttemptSurvivesFirstCallerCancel(t *testing.T) {
	slow := &slowCheckouter{delay: 200 * time.Millisecond}
	h := NewHandler(Deps{
		Checkout:    slow,
		Idempotency: idempotency.NewLRUStore(16, time.Minute),
		Logger:      zerolog.Nop(),
	})
	router := NewRouter(h)

	send := func(ctx context.Context) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/carts/c1/checkout", nil).WithContext(ctx)
		req.Header.Set(idempotency.Header, "k")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	doneA := make(chan struct{})
	go func() {
		defer close(doneA)
		send(ctxA)
	}()

	time.Sleep(20 * time.Millisecond)
	time.AfterFunc(10*time.Millisecond, cancelA)
	recB := send(context.Background())
	<-doneA

	require.Equal(t, http.StatusCreated, recB.Code, recB.Body.String())
	assert.Equal(t, "o1", decode[orderResponse](t, recB).OrderID)
	assert.Equal(t, int32(1), slow.calls.Load())

	replayed := send(context.Background())
	require.Equal(t, http.StatusOK, replayed.Code)
	assert.True(t, decode[orderResponse](t, replayed).Replayed)
}

func TestCheckout_IdempotencyReplay(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	stores := map[string]idempotency.Store{
		"lru":   idempotency.NewLRUStore(64, time.Minute),
		"redis": idempotency.NewRedisStore(client, time.Minute),
	}
	for name, idem := range stores {
		t.Run(name, func(t *testing.T) {
			s := newTestServer(t, idem)
			cartID := s.newCart(t, map[string]int{"p1": 1})
			path := "/api/carts/" + cartID + "/checkout"

			first := s.do(t, http.MethodPost, path, nil, idempotency.Header, "key-1")
			require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
			placed := decode[orderResponse](t, first)

			again := s.do(t, http.MethodPost, path, nil, idempotency.Header, "key-1")
			require.Equal(t, http.StatusOK, again.Code, again.Body.String())
			replayed := decode[orderResponse](t, again)
			assert.True(t, replayed.Replayed)
			assert.Equal(t, placed.OrderID, replayed.OrderID)

			other := s.do(t, http.MethodPost, path, nil, idempotency.Header, "key-2")
			assert.Equal(t, http.StatusConflict, other.Code)

			stock := decode[productResponse](t, s.do(t, http.MethodGet, "/api/products/p1/stock", nil))
			assert.Equal(t, 4, stock.Stock)
		})
	}
}

func TestCheckout_IdempotencyFailuresAreNotStored(t *testing.T) {
	s := newTestServer(t, idempotency.NewLRUStore(64, time.Minute))
	cartID := s.newCart(t, map[string]int{"p2": 3})
	path := "/api/carts/" + cartID + "/checkout"

	rec := s.do(t, http.MethodPost, path, nil, idempotency.Header, "k")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/carts/"+cartID+"/items", upsertItemRequest{ProductID: "p2", Quantity: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, path, nil, idempotency.Header, "k")
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCheckout_ConcurrentSameKey(t *testing.T) {
	s := newTestServer(t, idempotency.NewLRUStore(64, time.Minute))
	cartID := s.newCart(t, map[string]int{"p1": 1})
	path := "/api/carts/" + cartID + "/checkout"

	const n = 8
	var wg sync.WaitGroup
	codes := make([]int, n)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, path, nil)
			req.Header.Set(idempotency.Header, "same")
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)
			codes[i] = rec.Code
			var o orderResponse
			_ = json.Unmarshal(rec.Body.Bytes(), &o)
			ids[i] = o.OrderID
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.Contains(t, []int{http.StatusCreated, http.StatusOK}, codes[i])
		assert.Equal(t, ids[0], ids[i])
	}
	orders, err := s.store.Orders().ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestProducts(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPut, "/api/products/p3", putProductRequest{Name: "Hat", PriceCents: 2550, Stock: 7})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[productResponse](t, rec)
	assert.Equal(t, "25.50", p.Price)

	rec = s.do(t, http.MethodPost, "/api/products/p3/stock", map[string]int{"stock": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[productResponse](t, rec).Stock)

	rec = s.do(t, http.MethodPost, "/api/products/p3/stock", map[string]int{"stock": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/products/p3/stock", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/products/p4", putProductRequest{Name: "Bad", PriceCents: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/products/nope/stock", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/products/p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p1 := decode[productResponse](t, rec)
	assert.Equal(t, "Sneaker", p1.Name)
	assert.Equal(t, "999.00", p1.Price)
	assert.Equal(t, 5, p1.Stock)

	rec = s.do(t, http.MethodGet, "/api/products/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(t, http.MethodGet, "/health", nil)

	rec := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ecommerce_checkout_http_requests_total")
}
