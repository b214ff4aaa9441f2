// Package syncstorage is the root of the sync-storage module, a
// multi-tenant remote JSON item store served over HTTP.
//
// # Architecture
//
// The module is layered top to bottom:
//
//   - gateway/http: the HTTP edge. Routes, identity enforcement, wire
//     shapes, error-to-status mapping.
//   - identity: bearer token check and scope resolution from headers.
//   - service: request validation (key, value, TTL, batch and list
//     limits) and orchestration. The only caller of storage adapters.
//   - storage: the adapter contract plus four interchangeable backends:
//     embedded SQLite, remote SQL-over-HTTP, Postgres and NATS
//     JetStream KV. All backends satisfy the same conformance suite.
//
// Supporting packages: types (domain model), errors (taxonomy with
// stable machine codes), config (layered configuration), health
// (backend probing and readiness), metric (Prometheus metrics),
// natsclient (NATS connection lifecycle) and pkg/ helpers (etag,
// cursor, jsonutil, retry).
//
// # Data model
//
// Every item lives under a scope (tenantId, namespace, userId) and a
// key. Items carry an opaque JSON value, a monotonically increasing
// version exposed as an ETag, timestamps, and an optional expiry.
// Expired items are indistinguishable from absent ones; expiry is
// enforced lazily on read paths.
//
// cmd/sync-storage wires the layers into a deployable binary.
package syncstorage
