// Package metric provides Prometheus-based metrics collection and an HTTP
// server exposing them for scraping.
//
// The package follows a three-layer design:
//
//  1. Core metrics: request and storage instrumentation registered on
//     construction (Metrics type)
//  2. Registry: extensible registration for additional collectors
//     (MetricsRegistrar interface)
//  3. HTTP server: a metrics endpoint in OpenMetrics format (Server type)
//
// All core metrics use the namespace "sync_storage":
//
//   - sync_storage_http_requests_total{route, method, status}
//   - sync_storage_http_request_duration_seconds{route, method}
//   - sync_storage_http_requests_in_flight
//   - sync_storage_storage_operation_duration_seconds{backend, op}
//   - sync_storage_storage_errors_total{backend, kind}
//   - sync_storage_storage_backend_up{backend}
//
// Basic usage:
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry, logger)
//	go func() {
//	    if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
//	        logger.Error("metrics server", "error", err)
//	    }
//	}()
//
//	core := registry.CoreMetrics()
//	store = storage.Instrument(store, "sqlite", core)
//	core.RecordBackendUp("sqlite", true)
//
// All registry operations are safe for concurrent use; metric recording is
// lock-free per the Prometheus client guarantees.
package metric
