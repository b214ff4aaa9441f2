package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wahidkadwaikar/sync-storage/errors"
	"github.com/wahidkadwaikar/sync-storage/types"
)

// stubStore returns canned results and lets tests inject a failure.
type stubStore struct {
	err    error
	closed bool
}

func (s *stubStore) Get(ctx context.Context, scope types.Scope, key string) (*types.StoredItem, error) {
	return nil, s.err
}

func (s *stubStore) Put(ctx context.Context, scope types.Scope, key string, value json.RawMessage, opts types.PutOptions) (*types.StoredItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &types.StoredItem{Key: key, Version: 1}, nil
}

func (s *stubStore) Delete(ctx context.Context, scope types.Scope, key string, opts types.DeleteOptions) (bool, error) {
	return s.err == nil, s.err
}

func (s *stubStore) BatchGet(ctx context.Context, scope types.Scope, keys []string) (map[string]*types.StoredItem, error) {
	return map[string]*types.StoredItem{}, s.err
}

func (s *stubStore) BatchPut(ctx context.Context, scope types.Scope, entries []types.BatchEntry) (map[string]*types.StoredItem, error) {
	return map[string]*types.StoredItem{}, s.err
}

func (s *stubStore) List(ctx context.Context, scope types.Scope, opts types.ListOptions) (*types.ListResult, error) {
	return &types.ListResult{}, s.err
}

func (s *stubStore) Health(ctx context.Context) types.HealthStatus {
	return types.HealthStatus{OK: true}
}

func (s *stubStore) Close() error {
	s.closed = true
	return nil
}

type recordedOp struct {
	backend  string
	op       string
	duration time.Duration
}

type recordedError struct {
	backend string
	kind    string
}

type stubRecorder struct {
	ops  []recordedOp
	errs []recordedError
}

func (r *stubRecorder) RecordStorageOp(backend, op string, duration time.Duration) {
	r.ops = append(r.ops, recordedOp{backend: backend, op: op, duration: duration})
}

func (r *stubRecorder) RecordStorageError(backend, kind string) {
	r.errs = append(r.errs, recordedError{backend: backend, kind: kind})
}

func TestInstrumentNilRecorderPassesThrough(t *testing.T) {
	store := &stubStore{}
	assert.Same(t, Store(store), Instrument(store, "sqlite", nil))
}

func TestInstrumentRecordsEveryOperation(t *testing.T) {
	rec := &stubRecorder{}
	store := Instrument(&stubStore{}, "sqlite", rec)
	ctx := context.Background()
	scope := types.Scope{TenantID: "acme", Namespace: "prefs", UserID: "u1"}

	_, err := store.Get(ctx, scope, "k")
	require.NoError(t, err)
	_, err = store.Put(ctx, scope, "k", json.RawMessage(`{"a":1}`), types.PutOptions{})
	require.NoError(t, err)
	_, err = store.Delete(ctx, scope, "k", types.DeleteOptions{})
	require.NoError(t, err)
	_, err = store.BatchGet(ctx, scope, []string{"k"})
	require.NoError(t, err)
	_, err = store.BatchPut(ctx, scope, []types.BatchEntry{{Key: "k", Value: json.RawMessage(`1`)}})
	require.NoError(t, err)
	_, err = store.List(ctx, scope, types.ListOptions{Limit: 10})
	require.NoError(t, err)

	require.Len(t, rec.ops, 6)
	var ops []string
	for _, op := range rec.ops {
		assert.Equal(t, "sqlite", op.backend)
		assert.GreaterOrEqual(t, op.duration, time.Duration(0))
		ops = append(ops, op.op)
	}
	assert.Equal(t, []string{"get", "put", "delete", "batch_get", "batch_put", "list"}, ops)
	assert.Empty(t, rec.errs)
}

func TestInstrumentCountsFailuresByKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind string
	}{
		{"precondition", apperrors.WrapPrecondition(apperrors.ErrInvalidIfMatch, "store", "Put", "check version"), "precondition"},
		{"not found", apperrors.ErrItemNotFound, "not_found"},
		{"internal", fmt.Errorf("connection reset"), "internal"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := &stubRecorder{}
			store := Instrument(&stubStore{err: test.err}, "postgres", rec)

			_, err := store.Get(context.Background(), types.Scope{}, "k")
			require.Error(t, err)

			require.Len(t, rec.ops, 1)
			require.Len(t, rec.errs, 1)
			assert.Equal(t, "postgres", rec.errs[0].backend)
			assert.Equal(t, test.kind, rec.errs[0].kind)
		})
	}
}

func TestInstrumentHealthAndClosePassThrough(t *testing.T) {
	rec := &stubRecorder{}
	inner := &stubStore{}
	store := Instrument(inner, "natskv", rec)

	assert.True(t, store.Health(context.Background()).OK)
	require.NoError(t, store.Close())
	assert.True(t, inner.closed)
	assert.Empty(t, rec.ops)
	assert.Empty(t, rec.errs)
}
