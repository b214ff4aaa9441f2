// Package cursor implements the opaque pagination tokens of the list
// operation. A cursor is the base64url encoding of the raw bytes of the
// last key emitted in the previous page; callers must treat it as opaque.
//
// Keeping the decoded form a plain key lets every backend resume a listing
// with a simple "key > cursorKey" comparison, and keeps the wire protocol
// stable across backends.
package cursor

import (
	"encoding/base64"

	"github.com/wahidkadwaikar/sync-storage/errors"
)

// Encode converts the last emitted key into an opaque continuation token.
func Encode(lastKey string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(lastKey))
}

// Decode converts a continuation token back into the key it encodes. An
// empty token decodes to the empty key (start from the beginning).
func Decode(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", errors.ErrInvalidCursor
	}
	return string(raw), nil
}
