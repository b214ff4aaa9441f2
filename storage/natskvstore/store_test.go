package natskvstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wahidkadwaikar/sync-storage/types"
)

func TestEscapeComponentRoundTrip(t *testing.T) {
	tests := []string{
		"plain",
		"user:42",
		"with space",
		"dots.and.slashes/x",
		"pct%und_erscore",
		"=already=escaped",
		"unicode-é世",
		"",
	}

	for _, in := range tests {
		escaped := escapeComponent(in)
		out, err := unescapeComponent(escaped)
		require.NoError(t, err, "unescape %q", escaped)
		assert.Equal(t, in, out, "round trip %q", in)

		// Escaped keys must stay inside the KV key alphabet.
		for i := 0; i < len(escaped); i++ {
			c := escaped[i]
			ok := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
				c == '-' || c == '_' || c == '='
			assert.True(t, ok, "byte %q in escaped %q", string(c), escaped)
		}
	}
}

func TestEscapeComponentPreservesPrefixes(t *testing.T) {
	assert.True(t, strings.HasPrefix(escapeComponent("user:42:profile"), escapeComponent("user:")))
	assert.True(t, strings.HasPrefix(escapeComponent("a b c"), escapeComponent("a ")))
}

func TestUnescapeComponentRejectsMalformed(t *testing.T) {
	for _, in := range []string{"=", "=Z", "=1", "abc=G1"} {
		_, err := unescapeComponent(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestEntryKeyScopesDoNotCollide(t *testing.T) {
	// The component escaping must prevent a crafted tenant/namespace pair
	// from aliasing another scope's subject space.
	a := entryKey(types.Scope{TenantID: "t1.n", Namespace: "x", UserID: "u"}, "k")
	b := entryKey(types.Scope{TenantID: "t1", Namespace: "n.x", UserID: "u"}, "k")
	assert.NotEqual(t, a, b)

	c := entryKey(types.Scope{TenantID: "t", Namespace: "n", UserID: "u"}, "k.one")
	d := entryKey(types.Scope{TenantID: "t", Namespace: "n", UserID: "u.k"}, "one")
	assert.NotEqual(t, c, d)
}
