package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/wahidkadwaikar/sync-storage/errors"
	"github.com/wahidkadwaikar/sync-storage/pkg/etag"
	"github.com/wahidkadwaikar/sync-storage/pkg/jsonutil"
	"github.com/wahidkadwaikar/sync-storage/storage"
	"github.com/wahidkadwaikar/sync-storage/types"
)

// Limits are the request-shaping bounds the service enforces before any
// adapter call.
type Limits struct {
	MaxKeyLength     int
	MaxValueBytes    int
	MaxBatchSize     int
	MaxListLimit     int
	DefaultListLimit int
}

// DefaultLimits returns the documented defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxKeyLength:     255,
		MaxValueBytes:    1 << 20,
		MaxBatchSize:     100,
		MaxListLimit:     100,
		DefaultListLimit: 50,
	}
}

// SetOptions carries the optional knobs of SetItem as they arrive from the
// edge: TTL already decoded, If-Match still in wire form.
type SetOptions struct {
	TTLSeconds *int64
	IfMatch    string
}

// BatchPutEntry is one entry of BatchPut in edge form.
type BatchPutEntry struct {
	Key        string
	Value      json.RawMessage
	TTLSeconds *int64
	IfMatch    string
}

// ListParams selects a page. A nil Limit means "use the default".
type ListParams struct {
	Prefix string
	Cursor string
	Limit  *int
}

// Service validates requests and delegates to a storage adapter.
type Service struct {
	store  storage.Store
	limits Limits
	logger *slog.Logger
}

// New builds a Service. Zero-valued limit fields fall back to the
// documented defaults.
func New(store storage.Store, limits Limits, logger *slog.Logger) *Service {
	defaults := DefaultLimits()
	if limits.MaxKeyLength <= 0 {
		limits.MaxKeyLength = defaults.MaxKeyLength
	}
	if limits.MaxValueBytes <= 0 {
		limits.MaxValueBytes = defaults.MaxValueBytes
	}
	if limits.MaxBatchSize <= 0 {
		limits.MaxBatchSize = defaults.MaxBatchSize
	}
	if limits.MaxListLimit <= 0 {
		limits.MaxListLimit = defaults.MaxListLimit
	}
	if limits.DefaultListLimit <= 0 {
		limits.DefaultListLimit = defaults.DefaultListLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		limits: limits,
		logger: logger.With("component", "service"),
	}
}

// Limits exposes the effective bounds, for edge-layer body caps.
func (s *Service) Limits() Limits {
	return s.limits
}

func (s *Service) validateScope(scope types.Scope, op string) error {
	if err := scope.Validate(); err != nil {
		return errors.WrapValidation(err, "service", op, "scope requires tenantId, namespace and userId")
	}
	return nil
}

func (s *Service) validateKey(key string, op string) error {
	if key == "" {
		return errors.WrapValidation(errors.ErrKeyRequired, "service", op, "key must not be empty")
	}
	if len(key) > s.limits.MaxKeyLength {
		return errors.WrapValidation(errors.ErrKeyTooLong, "service", op,
			fmt.Sprintf("key length %d exceeds maximum %d", len(key), s.limits.MaxKeyLength))
	}
	return nil
}

// validateValue canonicalises and size-checks a value, returning the
// compact form that gets stored.
func (s *Service) validateValue(value json.RawMessage, op string) (json.RawMessage, error) {
	canonical, err := jsonutil.Canonical(value)
	if err != nil {
		return nil, errors.WrapValidation(err, "service", op, "value must be a valid JSON document")
	}
	if len(canonical) > s.limits.MaxValueBytes {
		return nil, errors.WrapValidation(errors.ErrValueTooLarge, "service", op,
			fmt.Sprintf("value size %d bytes exceeds maximum %d", len(canonical), s.limits.MaxValueBytes))
	}
	return canonical, nil
}

func (s *Service) validateTTL(ttl *int64, op string) error {
	if ttl != nil && *ttl < 1 {
		return errors.WrapValidation(errors.ErrInvalidTTL, "service", op, "ttlSeconds must be a positive integer")
	}
	return nil
}

// parseIfMatch turns the wire If-Match into a version precondition. A
// present but unparsable value is a precondition failure, not a validation
// error: the caller stated a condition that can never hold.
func parseIfMatch(raw string, op string) (*int64, error) {
	version, err := etag.ParseIfMatch(raw)
	if err != nil {
		return nil, errors.WrapPrecondition(err, "service", op, "If-Match must be a positive integer version")
	}
	return version, nil
}

// GetItem returns the active item for (scope, key), or nil when absent or
// expired.
func (s *Service) GetItem(ctx context.Context, scope types.Scope, key string) (*types.StoredItem, error) {
	if err := s.validateScope(scope, "GetItem"); err != nil {
		return nil, err
	}
	if err := s.validateKey(key, "GetItem"); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, scope, key)
}

// SetItem validates and stores a value, returning the new item state.
func (s *Service) SetItem(ctx context.Context, scope types.Scope, key string, value json.RawMessage, opts SetOptions) (*types.StoredItem, error) {
	if err := s.validateScope(scope, "SetItem"); err != nil {
		return nil, err
	}
	if err := s.validateKey(key, "SetItem"); err != nil {
		return nil, err
	}
	canonical, err := s.validateValue(value, "SetItem")
	if err != nil {
		return nil, err
	}
	if err := s.validateTTL(opts.TTLSeconds, "SetItem"); err != nil {
		return nil, err
	}
	ifMatch, err := parseIfMatch(opts.IfMatch, "SetItem")
	if err != nil {
		return nil, err
	}

	return s.store.Put(ctx, scope, key, canonical, types.PutOptions{
		TTLSeconds:     opts.TTLSeconds,
		IfMatchVersion: ifMatch,
	})
}

// RemoveItem deletes an item and reports whether an active item existed.
func (s *Service) RemoveItem(ctx context.Context, scope types.Scope, key string, ifMatchRaw string) (bool, error) {
	if err := s.validateScope(scope, "RemoveItem"); err != nil {
		return false, err
	}
	if err := s.validateKey(key, "RemoveItem"); err != nil {
		return false, err
	}
	ifMatch, err := parseIfMatch(ifMatchRaw, "RemoveItem")
	if err != nil {
		return false, err
	}
	return s.store.Delete(ctx, scope, key, types.DeleteOptions{IfMatchVersion: ifMatch})
}

// BatchGet returns a mapping with an entry for every requested key.
func (s *Service) BatchGet(ctx context.Context, scope types.Scope, keys []string) (map[string]*types.StoredItem, error) {
	if err := s.validateScope(scope, "BatchGet"); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, errors.WrapValidation(errors.ErrBatchEmpty, "service", "BatchGet", "keys must not be empty")
	}
	if len(keys) > s.limits.MaxBatchSize {
		return nil, errors.WrapValidation(errors.ErrBatchTooLarge, "service", "BatchGet",
			fmt.Sprintf("batch size %d exceeds maximum %d", len(keys), s.limits.MaxBatchSize))
	}
	for _, key := range keys {
		if err := s.validateKey(key, "BatchGet"); err != nil {
			return nil, err
		}
	}
	return s.store.BatchGet(ctx, scope, keys)
}

// BatchPut validates every entry up front, then applies them in declaration
// order. A mid-batch adapter failure leaves earlier entries committed.
func (s *Service) BatchPut(ctx context.Context, scope types.Scope, entries []BatchPutEntry) (map[string]*types.StoredItem, error) {
	if err := s.validateScope(scope, "BatchPut"); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.WrapValidation(errors.ErrBatchEmpty, "service", "BatchPut", "entries must not be empty")
	}
	if len(entries) > s.limits.MaxBatchSize {
		return nil, errors.WrapValidation(errors.ErrBatchTooLarge, "service", "BatchPut",
			fmt.Sprintf("batch size %d exceeds maximum %d", len(entries), s.limits.MaxBatchSize))
	}

	storeEntries := make([]types.BatchEntry, 0, len(entries))
	for _, entry := range entries {
		if err := s.validateKey(entry.Key, "BatchPut"); err != nil {
			return nil, err
		}
		canonical, err := s.validateValue(entry.Value, "BatchPut")
		if err != nil {
			return nil, err
		}
		if err := s.validateTTL(entry.TTLSeconds, "BatchPut"); err != nil {
			return nil, err
		}
		ifMatch, err := parseIfMatch(entry.IfMatch, "BatchPut")
		if err != nil {
			return nil, err
		}
		storeEntries = append(storeEntries, types.BatchEntry{
			Key:            entry.Key,
			Value:          canonical,
			TTLSeconds:     entry.TTLSeconds,
			IfMatchVersion: ifMatch,
		})
	}

	return s.store.BatchPut(ctx, scope, storeEntries)
}

// List returns one page of active items.
func (s *Service) List(ctx context.Context, scope types.Scope, params ListParams) (*types.ListResult, error) {
	if err := s.validateScope(scope, "List"); err != nil {
		return nil, err
	}
	if len(params.Prefix) > s.limits.MaxKeyLength {
		return nil, errors.WrapValidation(errors.ErrKeyTooLong, "service", "List",
			fmt.Sprintf("prefix length %d exceeds maximum %d", len(params.Prefix), s.limits.MaxKeyLength))
	}

	limit := s.limits.DefaultListLimit
	if params.Limit != nil {
		limit = *params.Limit
	}
	if limit < 1 {
		limit = 1
	}
	if limit > s.limits.MaxListLimit {
		limit = s.limits.MaxListLimit
	}

	return s.store.List(ctx, scope, types.ListOptions{
		Prefix: params.Prefix,
		Cursor: params.Cursor,
		Limit:  limit,
	})
}

// Health passes through to the adapter.
func (s *Service) Health(ctx context.Context) types.HealthStatus {
	return s.store.Health(ctx)
}

// Close releases the underlying adapter.
func (s *Service) Close() error {
	return s.store.Close()
}
