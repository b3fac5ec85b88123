package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campuskv/campuskv/internal/storage"
)

// Metrics holds all Prometheus metrics for the server
type Metrics struct {
	registry *prometheus.Registry

	// Request metrics
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	requestErrors   *prometheus.CounterVec

	// Storage metrics
	storageSize prometheus.Gauge
	storageRows prometheus.Gauge

	// Broadcast metrics
	eventsPublished prometheus.Counter
	eventsDropped   prometheus.Counter
	subscribers     prometheus.Gauge
}

// NewMetrics creates a new metrics instance with its own registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_request_errors_total",
				Help: "Total number of HTTP request errors",
			},
			[]string{"method", "path", "error_type"},
		),
		storageSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "storage_size_bytes",
				Help: "Total size of stored row values in bytes",
			},
		),
		storageRows: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "storage_rows_total",
				Help: "Total number of rows in the table",
			},
		),
		eventsPublished: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "broadcast_events_published_total",
				Help: "Total number of change events published",
			},
		),
		eventsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "broadcast_events_dropped_total",
				Help: "Total number of change events dropped due to slow subscribers",
			},
		),
		subscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "broadcast_subscribers",
				Help: "Number of active change feed subscriptions",
			},
		),
	}
}

// Handler returns an http.Handler exposing the metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records a completed HTTP request
func (m *Metrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
}

// ObserveError records a request error by type
func (m *Metrics) ObserveError(method, path, errType string) {
	m.requestErrors.WithLabelValues(method, path, errType).Inc()
}

// UpdateStorageMetrics refreshes the storage gauges from table metrics
func (m *Metrics) UpdateStorageMetrics(tm *storage.TableMetrics) {
	m.storageSize.Set(float64(tm.TotalSize))
	m.storageRows.Set(float64(tm.TotalRows))
}

// EventPublished increments the published event counter
func (m *Metrics) EventPublished() {
	m.eventsPublished.Inc()
}

// SubscriberAdded increments the active subscriber gauge
func (m *Metrics) SubscriberAdded() {
	m.subscribers.Inc()
}

// SubscriberRemoved decrements the active subscriber gauge
func (m *Metrics) SubscriberRemoved() {
	m.subscribers.Dec()
}
