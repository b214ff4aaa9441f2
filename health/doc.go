// Package health tracks the liveness of the process and the readiness of
// its storage backend.
//
// A Status describes one component as healthy, degraded or unhealthy. The
// Monitor aggregates per-component statuses into a system view; the Checker
// polls a storage adapter on an interval and feeds the Monitor and the
// backend-up gauge. Status messages derived from backend errors are
// sanitised so connection strings and credentials never reach a readiness
// response.
package health
