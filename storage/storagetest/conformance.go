// Package storagetest holds a behavioural conformance suite that every
// storage adapter must pass. The suite asserts the observable contract of
// storage.Store: version sequencing, precondition atomicity, expiry
// visibility and ordered pagination. Adapter packages call Run from their
// own tests with a factory for a fresh, empty store.
package storagetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wahidkadwaikar/sync-storage/errors"
	"github.com/wahidkadwaikar/sync-storage/pkg/cursor"
	"github.com/wahidkadwaikar/sync-storage/storage"
	"github.com/wahidkadwaikar/sync-storage/types"
)

// Factory returns a fresh, empty store for one subtest. Cleanup is
// registered by the factory itself (t.Cleanup).
type Factory func(t *testing.T) storage.Store

var testScope = types.Scope{TenantID: "acme", Namespace: "prefs", UserID: "u-1"}

func ptr[T any](v T) *T { return &v }

// Run executes the full conformance suite against stores produced by
// newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetAbsent", func(t *testing.T) { testGetAbsent(t, newStore(t)) })
	t.Run("PutCreateThenGet", func(t *testing.T) { testPutCreateThenGet(t, newStore(t)) })
	t.Run("PutIncrementsVersion", func(t *testing.T) { testPutIncrementsVersion(t, newStore(t)) })
	t.Run("PutIfMatch", func(t *testing.T) { testPutIfMatch(t, newStore(t)) })
	t.Run("PutIfMatchAbsent", func(t *testing.T) { testPutIfMatchAbsent(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("DeleteIfMatch", func(t *testing.T) { testDeleteIfMatch(t, newStore(t)) })
	t.Run("DeleteResetsVersion", func(t *testing.T) { testDeleteResetsVersion(t, newStore(t)) })
	t.Run("TTLExpiry", func(t *testing.T) { testTTLExpiry(t, newStore(t)) })
	t.Run("TTLClearedOnUpdate", func(t *testing.T) { testTTLClearedOnUpdate(t, newStore(t)) })
	t.Run("BatchGet", func(t *testing.T) { testBatchGet(t, newStore(t)) })
	t.Run("BatchPut", func(t *testing.T) { testBatchPut(t, newStore(t)) })
	t.Run("BatchPutMidFailure", func(t *testing.T) { testBatchPutMidFailure(t, newStore(t)) })
	t.Run("ListOrderAndPrefix", func(t *testing.T) { testListOrderAndPrefix(t, newStore(t)) })
	t.Run("ListPagination", func(t *testing.T) { testListPagination(t, newStore(t)) })
	t.Run("ListPrefixMetacharacters", func(t *testing.T) { testListPrefixMetacharacters(t, newStore(t)) })
	t.Run("ScopeIsolation", func(t *testing.T) { testScopeIsolation(t, newStore(t)) })
	t.Run("Health", func(t *testing.T) { testHealth(t, newStore(t)) })
}

func testGetAbsent(t *testing.T, s storage.Store) {
	ctx := context.Background()

	item, err := s.Get(ctx, testScope, "missing")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func testPutCreateThenGet(t *testing.T, s storage.Store) {
	ctx := context.Background()
	value := json.RawMessage(`{"theme":"dark"}`)

	put, err := s.Put(ctx, testScope, "settings", value, types.PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), put.Version)
	assert.Equal(t, `"1"`, put.ETag)
	assert.Equal(t, put.CreatedAt, put.UpdatedAt)
	assert.Nil(t, put.ExpiresAt)

	got, err := s.Get(ctx, testScope, "settings")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "settings", got.Key)
	assert.JSONEq(t, string(value), string(got.Value))
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, `"1"`, got.ETag)
}

func testPutIncrementsVersion(t *testing.T, s storage.Store) {
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		item, err := s.Put(ctx, testScope, "counter", json.RawMessage(`{"n":1}`), types.PutOptions{})
		require.NoError(t, err)
		assert.Equal(t, want, item.Version)
	}

	got, err := s.Get(ctx, testScope, "counter")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(3), got.Version)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt) || got.UpdatedAt.Equal(got.CreatedAt))
}

func testPutIfMatch(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, err := s.Put(ctx, testScope, "doc", json.RawMessage(`1`), types.PutOptions{})
	require.NoError(t, err)

	item, err := s.Put(ctx, testScope, "doc", json.RawMessage(`2`), types.PutOptions{IfMatchVersion: ptr(int64(1))})
	require.NoError(t, err)
	assert.Equal(t, int64(2), item.Version)

	// Stale precondition fails and leaves state unchanged.
	_, err = s.Put(ctx, testScope, "doc", json.RawMessage(`3`), types.PutOptions{IfMatchVersion: ptr(int64(1))})
	require.Error(t, err)
	assert.True(t, errors.IsPrecondition(err), "want precondition error, got %v", err)

	got, err := s.Get(ctx, testScope, "doc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.Version)
	assert.JSONEq(t, `2`, string(got.Value))
}

func testPutIfMatchAbsent(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, err := s.Put(ctx, testScope, "ghost", json.RawMessage(`{}`), types.PutOptions{IfMatchVersion: ptr(int64(1))})
	require.Error(t, err)
	assert.True(t, errors.IsPrecondition(err), "want precondition error, got %v", err)

	item, err := s.Get(ctx, testScope, "ghost")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func testDelete(t *testing.T, s storage.Store) {
	ctx := context.Background()

	existed, err := s.Delete(ctx, testScope, "missing", types.DeleteOptions{})
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = s.Put(ctx, testScope, "gone", json.RawMessage(`{}`), types.PutOptions{})
	require.NoError(t, err)

	existed, err = s.Delete(ctx, testScope, "gone", types.DeleteOptions{})
	require.NoError(t, err)
	assert.True(t, existed)

	item, err := s.Get(ctx, testScope, "gone")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func testDeleteIfMatch(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, err := s.Put(ctx, testScope, "doc", json.RawMessage(`{}`), types.PutOptions{})
	require.NoError(t, err)

	_, err = s.Delete(ctx, testScope, "doc", types.DeleteOptions{IfMatchVersion: ptr(int64(9))})
	require.Error(t, err)
	assert.True(t, errors.IsPrecondition(err), "want precondition error, got %v", err)

	existed, err := s.Delete(ctx, testScope, "doc", types.DeleteOptions{IfMatchVersion: ptr(int64(1))})
	require.NoError(t, err)
	assert.True(t, existed)
}

func testDeleteResetsVersion(t *testing.T, s storage.Store) {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Put(ctx, testScope, "doc", json.RawMessage(`{}`), types.PutOptions{})
		require.NoError(t, err)
	}
	_, err := s.Delete(ctx, testScope, "doc", types.DeleteOptions{})
	require.NoError(t, err)

	item, err := s.Put(ctx, testScope, "doc", json.RawMessage(`{}`), types.PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), item.Version, "recreate after delete restarts the version sequence")
}

func testTTLExpiry(t *testing.T, s storage.Store) {
	ctx := context.Background()

	item, err := s.Put(ctx, testScope, "ephemeral", json.RawMessage(`{}`), types.PutOptions{TTLSeconds: ptr(int64(1))})
	require.NoError(t, err)
	require.NotNil(t, item.ExpiresAt)
	assert.WithinDuration(t, item.UpdatedAt.Add(time.Second), *item.ExpiresAt, 50*time.Millisecond)

	got, err := s.Get(ctx, testScope, "ephemeral")
	require.NoError(t, err)
	require.NotNil(t, got, "item is visible before expiry")

	time.Sleep(1100 * time.Millisecond)

	got, err = s.Get(ctx, testScope, "ephemeral")
	require.NoError(t, err)
	assert.Nil(t, got, "expired item is invisible")

	existed, err := s.Delete(ctx, testScope, "ephemeral", types.DeleteOptions{})
	require.NoError(t, err)
	assert.False(t, existed, "expired item deletes as absent")

	// Put over the expired row behaves as a fresh insert.
	fresh, err := s.Put(ctx, testScope, "ephemeral", json.RawMessage(`{}`), types.PutOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), fresh.Version)
}

func testTTLClearedOnUpdate(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, err := s.Put(ctx, testScope, "doc", json.RawMessage(`{}`), types.PutOptions{TTLSeconds: ptr(int64(3600))})
	require.NoError(t, err)

	item, err := s.Put(ctx, testScope, "doc", json.RawMessage(`{}`), types.PutOptions{})
	require.NoError(t, err)
	assert.Nil(t, item.ExpiresAt, "omitting TTL on update clears the expiry")

	got, err := s.Get(ctx, testScope, "doc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.ExpiresAt)
}

func testBatchGet(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, err := s.Put(ctx, testScope, "a", json.RawMessage(`1`), types.PutOptions{})
	require.NoError(t, err)
	_, err = s.Put(ctx, testScope, "b", json.RawMessage(`2`), types.PutOptions{})
	require.NoError(t, err)

	result, err := s.BatchGet(ctx, testScope, []string{"a", "b", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, result, 3, "duplicates collapse to one entry")
	require.NotNil(t, result["a"])
	assert.JSONEq(t, `1`, string(result["a"].Value))
	require.NotNil(t, result["b"])
	assert.Contains(t, result, "missing")
	assert.Nil(t, result["missing"])
}

func testBatchPut(t *testing.T, s storage.Store) {
	ctx := context.Background()

	result, err := s.BatchPut(ctx, testScope, []types.BatchEntry{
		{Key: "a", Value: json.RawMessage(`1`)},
		{Key: "b", Value: json.RawMessage(`2`), TTLSeconds: ptr(int64(3600))},
	})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, int64(1), result["a"].Version)
	require.NotNil(t, result["b"].ExpiresAt)
}

func testBatchPutMidFailure(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, err := s.BatchPut(ctx, testScope, []types.BatchEntry{
		{Key: "first", Value: json.RawMessage(`1`)},
		{Key: "second", Value: json.RawMessage(`2`), IfMatchVersion: ptr(int64(7))},
		{Key: "third", Value: json.RawMessage(`3`)},
	})
	require.Error(t, err)
	assert.True(t, errors.IsPrecondition(err), "want precondition error, got %v", err)

	// Entries before the failure are committed; the failing entry and
	// everything after it are not.
	got, err := s.Get(ctx, testScope, "first")
	require.NoError(t, err)
	assert.NotNil(t, got)
	got, err = s.Get(ctx, testScope, "third")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testListOrderAndPrefix(t *testing.T, s storage.Store) {
	ctx := context.Background()

	for _, key := range []string{"user:2", "user:10", "user:1", "admin:1"} {
		_, err := s.Put(ctx, testScope, key, json.RawMessage(`{}`), types.PutOptions{})
		require.NoError(t, err)
	}

	result, err := s.List(ctx, testScope, types.ListOptions{Prefix: "user:", Limit: 50})
	require.NoError(t, err)
	require.Len(t, result.Items, 3)
	// Byte order, not numeric: "user:1" < "user:10" < "user:2".
	assert.Equal(t, "user:1", result.Items[0].Key)
	assert.Equal(t, "user:10", result.Items[1].Key)
	assert.Equal(t, "user:2", result.Items[2].Key)
	assert.Empty(t, result.NextCursor)
}

func testListPagination(t *testing.T, s storage.Store) {
	ctx := context.Background()

	keys := []string{"k1", "k2", "k3", "k4", "k5"}
	for _, key := range keys {
		_, err := s.Put(ctx, testScope, key, json.RawMessage(`{}`), types.PutOptions{})
		require.NoError(t, err)
	}

	var collected []string
	var cur string
	pages := 0
	for {
		result, err := s.List(ctx, testScope, types.ListOptions{Limit: 2, Cursor: cur})
		require.NoError(t, err)
		for _, item := range result.Items {
			collected = append(collected, item.Key)
		}
		pages++
		if result.NextCursor == "" {
			break
		}
		cur = result.NextCursor
	}
	assert.Equal(t, keys, collected)
	assert.Equal(t, 3, pages)

	// A cursor at the last key yields an empty page and no cursor.
	result, err := s.List(ctx, testScope, types.ListOptions{Limit: 2, Cursor: cursor.Encode("k5")})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Empty(t, result.NextCursor)
}

func testListPrefixMetacharacters(t *testing.T, s storage.Store) {
	ctx := context.Background()

	for _, key := range []string{"100%", "100x", "a_b", "axb"} {
		_, err := s.Put(ctx, testScope, key, json.RawMessage(`{}`), types.PutOptions{})
		require.NoError(t, err)
	}

	result, err := s.List(ctx, testScope, types.ListOptions{Prefix: "100%", Limit: 50})
	require.NoError(t, err)
	require.Len(t, result.Items, 1, "%% in a prefix matches literally")
	assert.Equal(t, "100%", result.Items[0].Key)

	result, err = s.List(ctx, testScope, types.ListOptions{Prefix: "a_", Limit: 50})
	require.NoError(t, err)
	require.Len(t, result.Items, 1, "_ in a prefix matches literally")
	assert.Equal(t, "a_b", result.Items[0].Key)
}

func testScopeIsolation(t *testing.T, s storage.Store) {
	ctx := context.Background()
	other := types.Scope{TenantID: "acme", Namespace: "prefs", UserID: "u-2"}

	_, err := s.Put(ctx, testScope, "shared-key", json.RawMessage(`"mine"`), types.PutOptions{})
	require.NoError(t, err)
	_, err = s.Put(ctx, other, "shared-key", json.RawMessage(`"theirs"`), types.PutOptions{})
	require.NoError(t, err)

	mine, err := s.Get(ctx, testScope, "shared-key")
	require.NoError(t, err)
	require.NotNil(t, mine)
	assert.JSONEq(t, `"mine"`, string(mine.Value))

	result, err := s.List(ctx, other, types.ListOptions{Limit: 50})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.JSONEq(t, `"theirs"`, string(result.Items[0].Value))

	existed, err := s.Delete(ctx, other, "shared-key", types.DeleteOptions{})
	require.NoError(t, err)
	assert.True(t, existed)

	mine, err = s.Get(ctx, testScope, "shared-key")
	require.NoError(t, err)
	assert.NotNil(t, mine, "delete in one scope leaves other scopes untouched")
}

func testHealth(t *testing.T, s storage.Store) {
	status := s.Health(context.Background())
	assert.True(t, status.OK, "details: %s", status.Details)
}
