// Package service is the validation and orchestration layer between the
// HTTP edge and a storage adapter.
//
// The service owns the request-shaping rules: key and prefix length, value
// size measured on the canonical JSON serialisation, TTL positivity, batch
// bounds, list limit clamping and If-Match parsing. Adapters behind it may
// assume every argument is well formed except the list cursor, which each
// adapter decodes and rejects itself. The service adds no semantics of
// its own beyond validation; versioning, expiry and ordering live in the
// adapter contract.
package service
