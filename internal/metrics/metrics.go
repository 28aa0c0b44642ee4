// Package metrics provides Prometheus instrumentation for the trade engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesSettled counts settled trades, partitioned by side.
	TradesSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrade_trades_settled_total",
		Help: "Total number of trades settled",
	}, []string{"side"})

	// SettlementLatency tracks settlement duration by side.
	SettlementLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "papertrade_settlement_latency_seconds",
		Help:    "Trade settlement latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// SettlementConflicts counts version conflicts hit while committing a
	// settlement against concurrent writes on the same account.
	SettlementConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "papertrade_settlement_conflicts_total",
		Help: "Optimistic commit conflicts during settlement",
	})

	// TradesRejected counts settlements rejected before commit.
	TradesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrade_trades_rejected_total",
		Help: "Trades rejected before commit",
	}, []string{"reason"})

	// QuoteCacheHits and QuoteCacheMisses track quote cache effectiveness.
	QuoteCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "papertrade_quote_cache_hits_total",
		Help: "Quote gateway cache hits",
	})
	QuoteCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "papertrade_quote_cache_misses_total",
		Help: "Quote gateway cache misses",
	})

	// UpstreamCalls counts calls charged against the provider quota.
	UpstreamCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "papertrade_upstream_calls_total",
		Help: "Calls made to the upstream quote provider",
	})

	// QuotaRejections counts fetches refused by the daily call budget.
	QuotaRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "papertrade_quota_rejections_total",
		Help: "Quote fetches rejected by the daily quota guard",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "papertrade_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrade_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "papertrade_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
