// Package metrics exposes the Prometheus collectors of the marketplace.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "simpledex",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simpledex",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simpledex",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ordersCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simpledex",
			Subsystem: "market",
			Name:      "orders_created_total",
			Help:      "Total number of orders created.",
		},
		[]string{"asset_class"},
	)

	ordersClosed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "simpledex",
			Subsystem: "market",
			Name:      "orders_closed_total",
			Help:      "Total number of orders fully filled and closed.",
		},
	)

	purchases = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simpledex",
			Subsystem: "market",
			Name:      "purchases_total",
			Help:      "Total number of purchase attempts by outcome.",
		},
		[]string{"status"},
	)

	purchaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simpledex",
			Subsystem: "market",
			Name:      "settlement_duration_seconds",
			Help:      "Duration of purchase settlement.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"status"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ordersCreated,
		ordersClosed,
		purchases,
		purchaseDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordOrderCreated counts a created order.
func RecordOrderCreated(assetClass string) {
	ordersCreated.WithLabelValues(assetClass).Inc()
}

// RecordOrderClosed counts a fully filled order.
func RecordOrderClosed() {
	ordersClosed.Inc()
}

// RecordPurchase counts a purchase attempt and its settlement duration.
func RecordPurchase(status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	purchases.WithLabelValues(status).Inc()
	purchaseDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses resource identifiers so label cardinality stays
// bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "orders":
		if len(parts) == 1 {
			return "/orders"
		}
		if len(parts) >= 3 && parts[2] == "buy" {
			return "/orders/:id/buy"
		}
		return "/orders/:id"
	case "ledger":
		if len(parts) >= 4 && parts[3] == "deposit" {
			return "/ledger/accounts/:address/deposit"
		}
		if len(parts) >= 3 {
			return "/ledger/accounts/:address"
		}
		return "/ledger/accounts"
	default:
		return "/" + parts[0]
	}
}
