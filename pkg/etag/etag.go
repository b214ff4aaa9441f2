// Package etag parses the optimistic-concurrency token carried in the
// If-Match request header. The emitting side lives in types.FormatETag;
// this package covers only the inbound direction.
package etag

import (
	"strconv"
	"strings"

	"github.com/wahidkadwaikar/sync-storage/errors"
)

// ParseIfMatch parses an If-Match header value into a version precondition.
//
// Accepted forms are the quoted decimal `"N"` and the bare decimal N, with
// surrounding whitespace trimmed. An empty value means "no precondition"
// and returns (nil, nil). Anything else, including zero, negative and
// non-numeric values, is a precondition failure rather than a validation
// error: the caller asked for a condition that can never hold.
func ParseIfMatch(raw string) (*int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) && len(trimmed) >= 2 {
		trimmed = trimmed[1 : len(trimmed)-1]
	}

	version, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || version < 1 {
		return nil, errors.ErrInvalidIfMatch
	}

	return &version, nil
}
