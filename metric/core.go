package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sync_storage"

// Metrics contains the platform-level instrumentation: HTTP traffic on the
// edge and operation outcomes on the storage adapters.
type Metrics struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Storage metrics
	StorageOpDuration *prometheus.HistogramVec
	StorageErrors     *prometheus.CounterVec
	BackendUp         *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all platform metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled",
			},
			[]string{"route", "method", "status"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being served",
			},
		),

		StorageOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "storage",
				Name:      "operation_duration_seconds",
				Help:      "Storage adapter operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend", "op"},
		),

		StorageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "storage",
				Name:      "errors_total",
				Help:      "Total number of storage adapter errors by kind",
			},
			[]string{"backend", "kind"},
		),

		BackendUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "storage",
				Name:      "backend_up",
				Help:      "Storage backend reachability (0=down, 1=up)",
			},
			[]string{"backend"},
		),
	}
}

// RecordRequest counts one finished HTTP request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RequestStarted marks one request in flight; the returned func marks it done.
func (m *Metrics) RequestStarted() func() {
	m.RequestsInFlight.Inc()
	return m.RequestsInFlight.Dec
}

// RecordStorageOp records the duration of one adapter operation.
func (m *Metrics) RecordStorageOp(backend, op string, duration time.Duration) {
	m.StorageOpDuration.WithLabelValues(backend, op).Observe(duration.Seconds())
}

// RecordStorageError counts one adapter failure by error kind.
func (m *Metrics) RecordStorageError(backend, kind string) {
	m.StorageErrors.WithLabelValues(backend, kind).Inc()
}

// RecordBackendUp updates backend reachability.
func (m *Metrics) RecordBackendUp(backend string, up bool) {
	value := 0.0
	if up {
		value = 1.0
	}
	m.BackendUp.WithLabelValues(backend).Set(value)
}
