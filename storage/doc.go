// Package storage defines the pluggable backend contract of the
// sync-storage core: a single capability set that every backend implements
// with identical observable semantics.
//
// Four adapters realise the contract:
//
//   - sqlitestore: embedded SQLite file or in-memory database
//   - httpsqlstore: remote SQL service spoken to over HTTP
//   - pgstore: networked PostgreSQL
//   - natskvstore: NATS JetStream KV with revision-based compare-and-swap
//
// The contract is the semantic layer. Backends differ only in documented
// concurrency mechanics (the key-value adapter retries CAS conflicts up to
// a fixed budget; the SQL adapters rely on transactional isolation), never
// in what a caller can observe.
//
// The storagetest subpackage holds a conformance suite that every adapter
// runs against the same behavioural assertions.
package storage
