package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wahidkadwaikar/sync-storage/errors"
)

func TestRoundTrip(t *testing.T) {
	keys := []string{
		"alpha",
		"user:1",
		"prefs/sidebar-collapsed",
		"ключ",
		"a b c",
		"trailing/",
	}

	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			got, err := Decode(Encode(key))
			require.NoError(t, err)
			assert.Equal(t, key, got)
		})
	}
}

func TestDecode_Empty(t *testing.T) {
	got, err := Decode("")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode("not~base64url!")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidCursor)
}

func TestEncode_Opaque(t *testing.T) {
	// Cursors must not leak raw key text on the wire.
	token := Encode("user:1")
	assert.NotContains(t, token, "user:1")
	assert.NotContains(t, token, ":")
}
