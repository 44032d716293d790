package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/carts", h.CreateCart)
		r.Get("/carts/{cartId}", h.GetCart)
		r.Post("/carts/{cartId}/items", h.UpsertItem)
		r.Post("/carts/{cartId}/checkout", h.Checkout)

		r.Get("/orders/{orderId}", h.GetOrder)
		r.Get("/users/{userId}/orders", h.ListOrdersByUser)

		r.Get("/products/{productId}", h.GetProduct)
		r.Put("/products/{productId}", h.PutProduct)
		r.Get("/products/{productId}/stock", h.GetStock)
		r.Post("/products/{productId}/stock", h.AdjustStock)
	})

	return r
}
