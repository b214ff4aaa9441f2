package natsclient

import (
	"errors"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// IsKVNotFound reports whether err indicates an absent key.
func IsKVNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return true
	}
	// Older servers surface the condition as a raw API error string.
	msg := err.Error()
	return strings.Contains(msg, "key not found") || strings.Contains(msg, "10037")
}

// IsKVConflict reports whether err indicates a compare-and-swap loss:
// either a create raced an existing key or an update carried a stale
// revision. Both conditions mean another writer got there first and the
// caller should re-read and retry.
func IsKVConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "wrong last sequence") ||
		strings.Contains(msg, "10071") ||
		strings.Contains(msg, "key exists") ||
		strings.Contains(msg, "10058")
}
