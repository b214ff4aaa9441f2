package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wahidkadwaikar/sync-storage/errors"
	"github.com/wahidkadwaikar/sync-storage/types"
)

// recordingStore captures the options the service hands to the adapter.
type recordingStore struct {
	lastPut    types.PutOptions
	lastPutVal json.RawMessage
	lastDelete types.DeleteOptions
	lastList   types.ListOptions
	lastBatch  []types.BatchEntry
}

func (r *recordingStore) Get(_ context.Context, _ types.Scope, key string) (*types.StoredItem, error) {
	return &types.StoredItem{Key: key, Version: 1, ETag: `"1"`}, nil
}

func (r *recordingStore) Put(_ context.Context, _ types.Scope, key string, value json.RawMessage, opts types.PutOptions) (*types.StoredItem, error) {
	r.lastPut = opts
	r.lastPutVal = value
	return &types.StoredItem{Key: key, Value: value, Version: 1, ETag: `"1"`}, nil
}

func (r *recordingStore) Delete(_ context.Context, _ types.Scope, _ string, opts types.DeleteOptions) (bool, error) {
	r.lastDelete = opts
	return true, nil
}

func (r *recordingStore) BatchGet(_ context.Context, _ types.Scope, keys []string) (map[string]*types.StoredItem, error) {
	out := make(map[string]*types.StoredItem, len(keys))
	for _, k := range keys {
		out[k] = nil
	}
	return out, nil
}

func (r *recordingStore) BatchPut(_ context.Context, _ types.Scope, entries []types.BatchEntry) (map[string]*types.StoredItem, error) {
	r.lastBatch = entries
	out := make(map[string]*types.StoredItem, len(entries))
	for _, e := range entries {
		out[e.Key] = &types.StoredItem{Key: e.Key, Value: e.Value, Version: 1, ETag: `"1"`}
	}
	return out, nil
}

func (r *recordingStore) List(_ context.Context, _ types.Scope, opts types.ListOptions) (*types.ListResult, error) {
	r.lastList = opts
	return &types.ListResult{Items: []*types.StoredItem{}}, nil
}

func (r *recordingStore) Health(_ context.Context) types.HealthStatus {
	return types.HealthStatus{OK: true}
}

func (r *recordingStore) Close() error { return nil }

var scope = types.Scope{TenantID: "acme", Namespace: "prefs", UserID: "u-1"}

func intPtr(v int) *int     { return &v }
func i64Ptr(v int64) *int64 { return &v }

func newService() (*Service, *recordingStore) {
	store := &recordingStore{}
	return New(store, Limits{}, nil), store
}

func TestScopeValidation(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	incomplete := []types.Scope{
		{Namespace: "n", UserID: "u"},
		{TenantID: "t", UserID: "u"},
		{TenantID: "t", Namespace: "n"},
		{},
	}
	for _, sc := range incomplete {
		_, err := svc.GetItem(ctx, sc, "k")
		require.Error(t, err, "scope %+v", sc)
		assert.True(t, errors.IsValidation(err), "scope %+v: got %v", sc, err)
	}
}

func TestKeyValidation(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.GetItem(ctx, scope, "")
	assert.True(t, errors.IsValidation(err))

	// Exactly at the limit passes; one over fails.
	atLimit := strings.Repeat("k", 255)
	_, err = svc.GetItem(ctx, scope, atLimit)
	assert.NoError(t, err)

	_, err = svc.GetItem(ctx, scope, atLimit+"x")
	assert.True(t, errors.IsValidation(err))
}

func TestSetItemCanonicalisesValue(t *testing.T) {
	svc, store := newService()

	item, err := svc.SetItem(context.Background(), scope, "k",
		json.RawMessage("{\n  \"a\" : 1 \n}"), SetOptions{})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(store.lastPutVal), "stored value is compacted")
	assert.Equal(t, `{"a":1}`, string(item.Value))
}

func TestSetItemValueValidation(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.SetItem(ctx, scope, "k", json.RawMessage(`{not json`), SetOptions{})
	assert.True(t, errors.IsValidation(err))

	_, err = svc.SetItem(ctx, scope, "k", json.RawMessage(``), SetOptions{})
	assert.True(t, errors.IsValidation(err))

	// A value whose canonical form is exactly the limit passes; one byte
	// more fails. `"...."` canonicalises to itself.
	limits := DefaultLimits()
	atLimit := `"` + strings.Repeat("x", limits.MaxValueBytes-2) + `"`
	_, err = svc.SetItem(ctx, scope, "k", json.RawMessage(atLimit), SetOptions{})
	assert.NoError(t, err)

	over := `"` + strings.Repeat("x", limits.MaxValueBytes-1) + `"`
	_, err = svc.SetItem(ctx, scope, "k", json.RawMessage(over), SetOptions{})
	assert.True(t, errors.IsValidation(err))
}

func TestSetItemTTLValidation(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	for _, ttl := range []int64{0, -5} {
		_, err := svc.SetItem(ctx, scope, "k", json.RawMessage(`{}`), SetOptions{TTLSeconds: i64Ptr(ttl)})
		assert.True(t, errors.IsValidation(err), "ttl %d", ttl)
	}

	_, err := svc.SetItem(ctx, scope, "k", json.RawMessage(`{}`), SetOptions{TTLSeconds: i64Ptr(60)})
	require.NoError(t, err)
	require.NotNil(t, store.lastPut.TTLSeconds)
	assert.Equal(t, int64(60), *store.lastPut.TTLSeconds)
}

func TestIfMatchParsing(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	tests := []struct {
		raw     string
		want    *int64
		wantErr bool
	}{
		{``, nil, false},
		{`"3"`, i64Ptr(3), false},
		{`3`, i64Ptr(3), false},
		{`  "7"  `, i64Ptr(7), false},
		{`"0"`, nil, true},
		{`"-1"`, nil, true},
		{`"abc"`, nil, true},
		{`*`, nil, true},
	}

	for _, test := range tests {
		_, err := svc.SetItem(ctx, scope, "k", json.RawMessage(`{}`), SetOptions{IfMatch: test.raw})
		if test.wantErr {
			require.Error(t, err, "If-Match %q", test.raw)
			// Unparsable If-Match is a precondition failure, not a
			// validation error.
			assert.True(t, errors.IsPrecondition(err), "If-Match %q: got %v", test.raw, err)
			continue
		}
		require.NoError(t, err, "If-Match %q", test.raw)
		if test.want == nil {
			assert.Nil(t, store.lastPut.IfMatchVersion, "If-Match %q", test.raw)
		} else {
			require.NotNil(t, store.lastPut.IfMatchVersion, "If-Match %q", test.raw)
			assert.Equal(t, *test.want, *store.lastPut.IfMatchVersion, "If-Match %q", test.raw)
		}
	}
}

func TestBatchBounds(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.BatchGet(ctx, scope, nil)
	assert.True(t, errors.IsValidation(err))

	tooMany := make([]string, DefaultLimits().MaxBatchSize+1)
	for i := range tooMany {
		tooMany[i] = "k"
	}
	_, err = svc.BatchGet(ctx, scope, tooMany)
	assert.True(t, errors.IsValidation(err))

	_, err = svc.BatchPut(ctx, scope, nil)
	assert.True(t, errors.IsValidation(err))
}

func TestBatchPutValidatesEntriesBeforeAnyWrite(t *testing.T) {
	svc, store := newService()

	_, err := svc.BatchPut(context.Background(), scope, []BatchPutEntry{
		{Key: "ok", Value: json.RawMessage(`1`)},
		{Key: "", Value: json.RawMessage(`2`)},
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Nil(t, store.lastBatch, "invalid batch never reaches the adapter")
}

func TestListLimitClamping(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	tests := []struct {
		limit *int
		want  int
	}{
		{nil, 50},
		{intPtr(0), 1},
		{intPtr(-3), 1},
		{intPtr(25), 25},
		{intPtr(100), 100},
		{intPtr(1000), 100},
	}
	for _, test := range tests {
		_, err := svc.List(ctx, scope, ListParams{Limit: test.limit})
		require.NoError(t, err)
		assert.Equal(t, test.want, store.lastList.Limit, "limit %v", test.limit)
	}
}

func TestListPrefixLength(t *testing.T) {
	svc, _ := newService()

	_, err := svc.List(context.Background(), scope, ListParams{Prefix: strings.Repeat("p", 256)})
	assert.True(t, errors.IsValidation(err))
}
