package jsonutil

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"object", `{ "enabled" : true }`, `{"enabled":true}`},
		{"nested", "{\n  \"a\": [1, 2,  3]\n}", `{"a":[1,2,3]}`},
		{"string", `  "hello"  `, `"hello"`},
		{"number", " 42 ", "42"},
		{"boolean", "false", "false"},
		{"null", "null", "null"},
		{"array", "[ ]", "[]"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Canonical(json.RawMessage(test.in))
			require.NoError(t, err)
			assert.Equal(t, test.want, string(got))
		})
	}
}

func TestCanonical_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "{", `{"a":}`, "tru"} {
		t.Run(in, func(t *testing.T) {
			_, err := Canonical(json.RawMessage(in))
			assert.Error(t, err)
		})
	}
}

func TestCanonical_MultibyteRunes(t *testing.T) {
	// Size limits measure bytes, not runes, so compaction must keep
	// multibyte content intact.
	got, err := Canonical(json.RawMessage(` "héllo" `))
	require.NoError(t, err)
	assert.Equal(t, `"héllo"`, string(got))
	assert.Greater(t, len(got), len(`"hello"`))
}

func TestCanonical_PreservesValueBytes(t *testing.T) {
	in := `{"b":2,"a":1}`
	got, err := Canonical(json.RawMessage(in))
	require.NoError(t, err)
	// Compaction never reorders keys or rewrites numbers.
	assert.Equal(t, in, string(got))
	assert.False(t, strings.Contains(string(got), " "))
}
