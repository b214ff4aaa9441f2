package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScope_Validate(t *testing.T) {
	tests := []struct {
		name    string
		scope   Scope
		wantErr bool
	}{
		{"complete", Scope{TenantID: "default", Namespace: "ns", UserID: "u1"}, false},
		{"missing tenant", Scope{Namespace: "ns", UserID: "u1"}, true},
		{"missing namespace", Scope{TenantID: "default", UserID: "u1"}, true},
		{"missing user", Scope{TenantID: "default", Namespace: "ns"}, true},
		{"empty", Scope{}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.scope.Validate()
			if test.wantErr {
				assert.ErrorIs(t, err, ErrIncompleteScope)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScope_String(t *testing.T) {
	s := Scope{TenantID: "acme", Namespace: "web", UserID: "u-42"}
	assert.Equal(t, "t:acme:n:web:u:u-42", s.String())
}

func TestStoredItem_Active(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	assert.True(t, (&StoredItem{}).Active(now), "nil expiry never expires")
	assert.True(t, (&StoredItem{ExpiresAt: &future}).Active(now))
	assert.False(t, (&StoredItem{ExpiresAt: &past}).Active(now))
	assert.False(t, (&StoredItem{ExpiresAt: &now}).Active(now), "expiry is exclusive")
}

func TestFormatETag(t *testing.T) {
	assert.Equal(t, `"1"`, FormatETag(1))
	assert.Equal(t, `"120"`, FormatETag(120))
}
