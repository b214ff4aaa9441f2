package types

import (
	"encoding/json"
	"strconv"
	"time"
)

// StoredItem is a versioned JSON value stored under a scope and key.
//
// Version starts at 1 on first insertion and increments by exactly 1 on
// every successful in-place mutation. ETag is the quoted decimal version
// and is derived, never stored separately.
type StoredItem struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value,omitempty"`
	Version   int64           `json:"version"`
	ETag      string          `json:"etag"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
}

// Active reports whether the item is visible at the given instant. An item
// with a nil ExpiresAt never expires; otherwise it is visible strictly
// before its expiry.
func (it *StoredItem) Active(now time.Time) bool {
	return it.ExpiresAt == nil || it.ExpiresAt.After(now)
}

// FormatETag renders a version as its wire ETag: the quoted decimal form.
func FormatETag(version int64) string {
	return `"` + strconv.FormatInt(version, 10) + `"`
}

// ListResult is one page of a list operation. NextCursor is non-empty iff
// at least one active key exists strictly greater than the last emitted
// key; feeding it back resumes after that key.
type ListResult struct {
	Items      []*StoredItem `json:"items"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

// PutOptions carries the optional knobs of a put: a TTL in seconds
// (positive when present) and an If-Match precondition on the current
// version.
type PutOptions struct {
	TTLSeconds     *int64
	IfMatchVersion *int64
}

// DeleteOptions carries the optional If-Match precondition of a delete.
type DeleteOptions struct {
	IfMatchVersion *int64
}

// ListOptions selects a page of keys within a scope. Limit is clamped by
// the service before it reaches an adapter; adapters may assume
// 1 <= Limit <= the configured maximum.
type ListOptions struct {
	Prefix string
	Cursor string
	Limit  int
}

// BatchEntry is one entry of a batch put. Each entry carries its own TTL
// and precondition; entries are applied in declaration order and are not
// transactional across the batch.
type BatchEntry struct {
	Key            string
	Value          json.RawMessage
	TTLSeconds     *int64
	IfMatchVersion *int64
}

// HealthStatus is the result of a backend health probe. Probes never
// return an error; failure is conveyed in OK with a diagnostic in Details.
type HealthStatus struct {
	OK      bool   `json:"ok"`
	Details string `json:"details,omitempty"`
}
