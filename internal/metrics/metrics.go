package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ecommerce"

type ServerMetrics struct {
	registry *prometheus.Registry

	Requests           *prometheus.CounterVec
	LatencyMS          *prometheus.HistogramVec
	CheckoutAttempts   *prometheus.CounterVec
	CheckoutDurationMS *prometheus.HistogramVec
	OutboxPublished    *prometheus.CounterVec
}

// NewServerMetrics registers on its own registry so several instances can
// coexist in one process (tests, for one).
func NewServerMetrics(service string) *ServerMetrics {
	buckets := []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   buckets,
	}, []string{"handler"})
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "checkout_attempts_total",
		Help:      "Checkout attempts by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "checkout_duration_ms",
		Help:      "Checkout latency in milliseconds, lock waits included.",
		Buckets:   buckets,
	}, []string{"outcome"})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "outbox_published_total",
		Help:      "Outbox publish attempts by result.",
	}, []string{"result"})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		requests, latency, attempts, duration, published,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &ServerMetrics{
		registry:           reg,
		Requests:           requests,
		LatencyMS:          latency,
		CheckoutAttempts:   attempts,
		CheckoutDurationMS: duration,
		OutboxPublished:    published,
	}
}

func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *ServerMetrics) ObserveHTTP(handler string, status int, elapsed time.Duration) {
	m.Requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(handler).Observe(float64(elapsed.Milliseconds()))
}

func (m *ServerMetrics) ObserveCheckout(outcome string, elapsed time.Duration) {
	m.CheckoutAttempts.WithLabelValues(outcome).Inc()
	m.CheckoutDurationMS.WithLabelValues(outcome).Observe(float64(elapsed.Milliseconds()))
}

func (m *ServerMetrics) ObserveOutboxPublish(result string) {
	m.OutboxPublished.WithLabelValues(result).Inc()
}
