// Package observability provides Prometheus metrics and the process logger.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Engine metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	VolumeTotal       *prometheus.CounterVec
	PayoutsTotal      prometheus.Counter
	FeesCollected     prometheus.Counter
	MarketsCreated    *prometheus.CounterVec
	MarketsResolved   *prometheus.CounterVec

	// Pool state, refreshed after every pool mutation
	PoolReserves *prometheus.GaugeVec
	PoolPrice    *prometheus.GaugeVec

	// Delivery metrics
	EventsPublished    *prometheus.CounterVec
	EventPublishErrors *prometheus.CounterVec
	RelayClients       prometheus.Gauge

	// API metrics
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	RateLimitedRequest prometheus.Counter

	// Health metrics
	LastSuccessfulOperation prometheus.Gauge
}

// NewMetrics registers every metric with reg. Passing a fresh
// prometheus.NewRegistry() keeps instances independent.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "prediction_market"
	}
	f := promauto.With(reg)

	return &Metrics{
		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Engine operations by name and result (ok or the error kind)",
		}, []string{"operation", "result"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency including lock wait and commit",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		VolumeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "volume_total",
			Help:      "Value moved into market vaults by operation and side",
		}, []string{"operation", "side"}),
		PayoutsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "payouts_total",
			Help:      "Value paid out by claims",
		}),
		FeesCollected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "fees_collected_total",
			Help:      "Pool fees reported by collect_fees",
		}),
		MarketsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "markets_created_total",
			Help:      "Markets created by kind",
		}, []string{"kind"}),
		MarketsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "markets_resolved_total",
			Help:      "Markets resolved by outcome",
		}, []string{"outcome"}),

		PoolReserves: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "reserves",
			Help:      "Current pool reserves by market and side",
		}, []string{"market", "side"}),
		PoolPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "price_bps",
			Help:      "Current pool price in basis points by market and side",
		}, []string{"market", "side"}),

		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events handed to sinks by type",
		}, []string{"type"}),
		EventPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_errors_total",
			Help:      "Failed event deliveries by operation",
		}, []string{"operation"}),
		RelayClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "clients",
			Help:      "Connected WebSocket clients",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		RateLimitedRequest: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-caller rate limiter",
		}),

		LastSuccessfulOperation: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_operation_timestamp",
			Help:      "Unix timestamp of the last committed engine operation",
		}),
	}
}

// NewNopMetrics returns metrics bound to a throwaway registry.
func NewNopMetrics() *Metrics {
	return NewMetrics("", prometheus.NewRegistry())
}

// Handler returns an HTTP handler for the /metrics endpoint of g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveOperation records one engine operation.
func (m *Metrics) ObserveOperation(operation, result string, started time.Time) {
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	if result == "ok" {
		m.LastSuccessfulOperation.SetToCurrentTime()
	}
}

// SetPool publishes the reserves and prices of one pool.
func (m *Metrics) SetPool(market string, yesReserves, noReserves, yesPrice, noPrice uint64) {
	m.PoolReserves.WithLabelValues(market, "yes").Set(float64(yesReserves))
	m.PoolReserves.WithLabelValues(market, "no").Set(float64(noReserves))
	m.PoolPrice.WithLabelValues(market, "yes").Set(float64(yesPrice))
	m.PoolPrice.WithLabelValues(market, "no").Set(float64(noPrice))
}
