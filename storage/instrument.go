package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wahidkadwaikar/sync-storage/errors"
	"github.com/wahidkadwaikar/sync-storage/types"
)

// OpRecorder receives per-operation measurements from an instrumented
// Store. metric.Metrics satisfies it.
type OpRecorder interface {
	RecordStorageOp(backend, op string, duration time.Duration)
	RecordStorageError(backend, kind string)
}

// instrumentedStore wraps a Store and times every adapter call, counting
// failures by error kind.
type instrumentedStore struct {
	next    Store
	backend string
	rec     OpRecorder
}

// Instrument decorates store so that every data-path operation is timed
// and every failure counted under the given backend label. Health and
// Close pass through unrecorded; reachability is covered by the backend
// up gauge. A nil recorder returns store unchanged.
func Instrument(store Store, backend string, rec OpRecorder) Store {
	if rec == nil {
		return store
	}
	return &instrumentedStore{next: store, backend: backend, rec: rec}
}

// observe records one finished operation. The error kind label follows
// the taxonomy: validation, unauthorized, not_found, precondition,
// internal.
func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	s.rec.RecordStorageOp(s.backend, op, time.Since(start))
	if err != nil {
		s.rec.RecordStorageError(s.backend, errors.KindOf(err).String())
	}
}

func (s *instrumentedStore) Get(ctx context.Context, scope types.Scope, key string) (*types.StoredItem, error) {
	start := time.Now()
	item, err := s.next.Get(ctx, scope, key)
	s.observe("get", start, err)
	return item, err
}

func (s *instrumentedStore) Put(ctx context.Context, scope types.Scope, key string, value json.RawMessage, opts types.PutOptions) (*types.StoredItem, error) {
	start := time.Now()
	item, err := s.next.Put(ctx, scope, key, value, opts)
	s.observe("put", start, err)
	return item, err
}

func (s *instrumentedStore) Delete(ctx context.Context, scope types.Scope, key string, opts types.DeleteOptions) (bool, error) {
	start := time.Now()
	existed, err := s.next.Delete(ctx, scope, key, opts)
	s.observe("delete", start, err)
	return existed, err
}

func (s *instrumentedStore) BatchGet(ctx context.Context, scope types.Scope, keys []string) (map[string]*types.StoredItem, error) {
	start := time.Now()
	items, err := s.next.BatchGet(ctx, scope, keys)
	s.observe("batch_get", start, err)
	return items, err
}

func (s *instrumentedStore) BatchPut(ctx context.Context, scope types.Scope, entries []types.BatchEntry) (map[string]*types.StoredItem, error) {
	start := time.Now()
	items, err := s.next.BatchPut(ctx, scope, entries)
	s.observe("batch_put", start, err)
	return items, err
}

func (s *instrumentedStore) List(ctx context.Context, scope types.Scope, opts types.ListOptions) (*types.ListResult, error) {
	start := time.Now()
	result, err := s.next.List(ctx, scope, opts)
	s.observe("list", start, err)
	return result, err
}

func (s *instrumentedStore) Health(ctx context.Context) types.HealthStatus {
	return s.next.Health(ctx)
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}
