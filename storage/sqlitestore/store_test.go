package sqlitestore

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wahidkadwaikar/sync-storage/storage"
	"github.com/wahidkadwaikar/sync-storage/storage/storagetest"
	"github.com/wahidkadwaikar/sync-storage/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "items.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return newTestStore(t)
	})
}

func TestInMemory(t *testing.T) {
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	_, err = s.Put(ctx, types.Scope{TenantID: "t", Namespace: "n", UserID: "u"}, "k", json.RawMessage(`{}`), types.PutOptions{})
	require.NoError(t, err)

	item, err := s.Get(ctx, types.Scope{TenantID: "t", Namespace: "n", UserID: "u"}, "k")
	require.NoError(t, err)
	assert.NotNil(t, item)
}

// TestExpiryWithFakeClock drives the expiry logic deterministically by
// injecting the store clock instead of sleeping through real TTLs.
func TestExpiryWithFakeClock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := types.Scope{TenantID: "acme", Namespace: "prefs", UserID: "u-1"}

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	ttl := int64(60)
	item, err := s.Put(ctx, scope, "session", json.RawMessage(`{"token":"x"}`), types.PutOptions{TTLSeconds: &ttl})
	require.NoError(t, err)
	require.NotNil(t, item.ExpiresAt)
	assert.Equal(t, base.Add(time.Minute), *item.ExpiresAt)

	// One millisecond before expiry the item is still visible.
	s.now = func() time.Time { return base.Add(time.Minute - time.Millisecond) }
	got, err := s.Get(ctx, scope, "session")
	require.NoError(t, err)
	assert.NotNil(t, got)

	// At the expiry instant visibility flips: the bound is exclusive.
	s.now = func() time.Time { return base.Add(time.Minute) }
	got, err = s.Get(ctx, scope, "session")
	require.NoError(t, err)
	assert.Nil(t, got)

	result, err := s.List(ctx, scope, types.ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, result.Items)

	// Recreating after expiry starts a fresh version sequence.
	fresh, err := s.Put(ctx, scope, "session", json.RawMessage(`{}`), types.PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), fresh.Version)
	assert.Equal(t, base.Add(time.Minute), fresh.CreatedAt)
}

// TestGetReapsExpiredRow verifies the delete-on-read of expired rows.
func TestGetReapsExpiredRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := types.Scope{TenantID: "acme", Namespace: "prefs", UserID: "u-1"}

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	ttl := int64(1)
	_, err := s.Put(ctx, scope, "stale", json.RawMessage(`{}`), types.PutOptions{TTLSeconds: &ttl})
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(time.Hour) }
	got, err := s.Get(ctx, scope, "stale")
	require.NoError(t, err)
	require.Nil(t, got)

	var n int
	err = s.db.QueryRow(`SELECT COUNT(*) FROM items WHERE key = 'stale'`).Scan(&n)
	require.NoError(t, err)
	assert.Zero(t, n, "expired row is physically removed on read")
}

func TestTimesRoundTripAtMillisecondPrecision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := types.Scope{TenantID: "acme", Namespace: "prefs", UserID: "u-1"}

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)
	s.now = func() time.Time { return fixed }

	put, err := s.Put(ctx, scope, "k", json.RawMessage(`{}`), types.PutOptions{})
	require.NoError(t, err)

	got, err := s.Get(ctx, scope, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, put.CreatedAt, got.CreatedAt)
	assert.Equal(t, fixed.Truncate(time.Millisecond), got.UpdatedAt)
}
