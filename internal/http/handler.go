package httpapi

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/idempotency"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/inventory"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

type Checkouter interface {
	Checkout(ctx context.Context, cartID string) (order.Order, error)
}

type OrderReader interface {
	Get(ctx context.Context, orderID string) (order.Order, error)
	ListByUser(ctx context.Context, userID string) ([]order.Order, error)
}

type Deps struct {
	Carts       cart.Store
	Catalog     inventory.Catalog
	Orders      OrderReader
	Checkout    Checkouter
	Idempotency idempotency.Store
	Metrics     *metrics.ServerMetrics
	Logger      zerolog.Logger
}

type Handler struct {
	carts    cart.Store
	catalog  inventory.Catalog
	orders   OrderReader
	checkout Checkouter
	idem     idempotency.Store
	metrics  *metrics.ServerMetrics
	logger   zerolog.Logger

	// coalesces concurrent checkouts that share an idempotency key
	flight singleflight.Group
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		carts:    d.Carts,
		catalog:  d.Catalog,
		orders:   d.Orders,
		checkout: d.Checkout,
		idem:     d.Idempotency,
		metrics:  d.Metrics,
		logger:   d.Logger,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "checkout-service",
	})
}
