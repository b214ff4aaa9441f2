package storage

import (
	"context"
	"encoding/json"

	"github.com/wahidkadwaikar/sync-storage/types"
)

// Store is the backend adapter contract. All implementations must be safe
// for concurrent use from multiple goroutines and must exhibit identical
// observable behaviour:
//
//   - Versions start at 1 on creation and increment by exactly 1 per
//     successful put to the same (scope, key); a delete or expiry resets
//     the sequence.
//   - Expired items are invisible to Get, BatchGet and List; backends may
//     opportunistically delete an expired row they encounter.
//   - A put or delete with IfMatchVersion set must check the precondition
//     and apply the write atomically: no observable state exists in which
//     a concurrent writer advanced the version between check and write.
//   - List returns active items in ascending lexicographic byte order of
//     the key, filtered by prefix, resuming strictly after the cursor key.
//
// Validation happens in the service layer before any Store call; adapters
// may assume keys, values, limits and options are well formed, except the
// list cursor, which adapters decode and reject as a validation error.
type Store interface {
	// Get returns the active item for (scope, key), or nil when the key is
	// absent or expired.
	Get(ctx context.Context, scope types.Scope, key string) (*types.StoredItem, error)

	// Put creates or replaces the item at (scope, key). When
	// opts.IfMatchVersion is set the current active version must match or
	// the put fails with a precondition error and leaves state unchanged.
	// A put over an expired row behaves as a fresh insert: version resets
	// to 1 and createdAt becomes the write time. Omitting TTL on an update
	// clears any prior expiry.
	Put(ctx context.Context, scope types.Scope, key string, value json.RawMessage, opts types.PutOptions) (*types.StoredItem, error)

	// Delete removes the item at (scope, key) and reports whether an
	// active item existed. Absent and expired rows return false without
	// error; a set IfMatchVersion that does not match the active row fails
	// with a precondition error.
	Delete(ctx context.Context, scope types.Scope, key string, opts types.DeleteOptions) (bool, error)

	// BatchGet returns a mapping with an entry for every requested key;
	// absent and expired keys map to nil. The result key set equals the
	// input key set, duplicates included once.
	BatchGet(ctx context.Context, scope types.Scope, keys []string) (map[string]*types.StoredItem, error)

	// BatchPut applies Put per entry in declaration order. It is not
	// transactional across entries: a mid-batch failure leaves earlier
	// entries committed and is reported as the batch error.
	BatchPut(ctx context.Context, scope types.Scope, entries []types.BatchEntry) (map[string]*types.StoredItem, error)

	// List returns up to opts.Limit active items in ascending key order.
	// NextCursor is set iff at least one active key exists strictly
	// greater than the last emitted key.
	List(ctx context.Context, scope types.Scope, opts types.ListOptions) (*types.ListResult, error)

	// Health performs a lightweight round-trip to the backend. It never
	// returns an error; failure is conveyed in the status.
	Health(ctx context.Context) types.HealthStatus

	// Close releases backend resources. Idempotent.
	Close() error
}
