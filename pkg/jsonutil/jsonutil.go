// Package jsonutil provides canonical JSON handling for stored values.
// Values are opaque JSON blobs; the only server-side processing is
// validation and whitespace normalisation so that size limits measure the
// same bytes regardless of how the client formatted the payload.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Canonical validates raw as JSON and returns its compact serialisation.
// Any JSON value is accepted: object, array, string, number, boolean, null.
func Canonical(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("malformed JSON value")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("compact JSON value: %w", err)
	}
	return json.RawMessage(buf.Bytes()), nil
}
