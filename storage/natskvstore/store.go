// Package natskvstore implements the storage adapter contract on a NATS
// JetStream key-value bucket.
//
// Each item is one KV entry holding a JSON envelope (value, logical
// version, timestamps). The logical version is independent of the KV
// revision: revisions are a transport detail used for compare-and-swap,
// versions are the contract callers observe. Writes run an optimistic
// read-modify-write loop; a lost CAS race re-reads and retries up to a
// fixed budget, while a caller-supplied If-Match mismatch surfaces
// immediately without consuming retries.
package natskvstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/wahidkadwaikar/sync-storage/errors"
	"github.com/wahidkadwaikar/sync-storage/natsclient"
	"github.com/wahidkadwaikar/sync-storage/pkg/cursor"
	"github.com/wahidkadwaikar/sync-storage/pkg/retry"
	"github.com/wahidkadwaikar/sync-storage/storage"
	"github.com/wahidkadwaikar/sync-storage/types"
)

// envelope is the stored form of one item. Field names are short because
// every entry carries them.
type envelope struct {
	Value     json.RawMessage `json:"v"`
	Version   int64           `json:"ver"`
	CreatedAt time.Time       `json:"cat"`
	UpdatedAt time.Time       `json:"uat"`
	ExpiresAt *time.Time      `json:"eat,omitempty"`
}

// Store implements storage.Store on a JetStream KV bucket.
type Store struct {
	kv       jetstream.KeyValue
	logger   *slog.Logger
	now      func() time.Time
	retryCfg retry.Config
	closeFn  func() error
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithCloser attaches a function run by Close, typically the owning NATS
// client's shutdown.
func WithCloser(fn func() error) Option {
	return func(s *Store) { s.closeFn = fn }
}

// New wraps an existing KV bucket.
func New(kv jetstream.KeyValue, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		kv:       kv,
		logger:   logger.With("backend", "natskv"),
		now:      time.Now,
		retryCfg: retry.CAS(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Key escaping. KV keys permit [-/_=.a-zA-Z0-9] and '.' separates
// hierarchy tokens, so scope components and item keys are hex-escaped with
// '=' before being joined into
//
//	t.<tenant>.n.<namespace>.u.<user>.k.<item key>
//
// The escaping is byte-wise and deterministic, so equal inputs map to
// equal subjects and distinct inputs can never collide.

func escapeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "=%02X", c)
		}
	}
	return b.String()
}

func unescapeComponent(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '=' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("truncated escape in %q", s)
		}
		var v byte
		if _, err := fmt.Sscanf(s[i+1:i+3], "%02X", &v); err != nil {
			return "", fmt.Errorf("bad escape in %q: %w", s, err)
		}
		b.WriteByte(v)
		i += 2
	}
	return b.String(), nil
}

func scopePrefix(scope types.Scope) string {
	return "t." + escapeComponent(scope.TenantID) +
		".n." + escapeComponent(scope.Namespace) +
		".u." + escapeComponent(scope.UserID) + ".k."
}

func entryKey(scope types.Scope, key string) string {
	return scopePrefix(scope) + escapeComponent(key)
}

// current reads the entry for (scope, key) and reports its revision. An
// absent key returns (nil, 0, nil).
func (s *Store) current(ctx context.Context, scope types.Scope, key string) (*envelope, uint64, error) {
	entry, err := s.kv.Get(ctx, entryKey(scope, key))
	if err != nil {
		if natsclient.IsKVNotFound(err) {
			return nil, 0, nil
		}
		return nil, 0, errors.WrapInternal(err, "natskvstore", "Get", "read entry")
	}
	var env envelope
	if err := json.Unmarshal(entry.Value(), &env); err != nil {
		return nil, 0, errors.WrapInternal(err, "natskvstore", "Get", "decode envelope")
	}
	return &env, entry.Revision(), nil
}

func (env *envelope) active(now time.Time) bool {
	return env.ExpiresAt == nil || env.ExpiresAt.After(now)
}

func (env *envelope) toItem(key string) *types.StoredItem {
	return &types.StoredItem{
		Key:       key,
		Value:     env.Value,
		Version:   env.Version,
		ETag:      types.FormatETag(env.Version),
		CreatedAt: env.CreatedAt,
		UpdatedAt: env.UpdatedAt,
		ExpiresAt: env.ExpiresAt,
	}
}

// Get returns the active item or nil. An expired entry it encounters is
// deleted best-effort, guarded by the observed revision so a concurrent
// rewrite is never clobbered.
func (s *Store) Get(ctx context.Context, scope types.Scope, key string) (*types.StoredItem, error) {
	env, rev, err := s.current(ctx, scope, key)
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, nil
	}
	if !env.active(s.clock()) {
		s.reapExpired(ctx, scope, key, rev)
		return nil, nil
	}
	return env.toItem(key), nil
}

func (s *Store) reapExpired(ctx context.Context, scope types.Scope, key string, rev uint64) {
	err := s.kv.Delete(ctx, entryKey(scope, key), jetstream.LastRevision(rev))
	if err != nil && !natsclient.IsKVNotFound(err) && !natsclient.IsKVConflict(err) {
		s.logger.Debug("expired entry reap failed", "scope", scope.String(), "key", key, "error", err)
	}
}

// Put creates or replaces the item at (scope, key) with a CAS loop.
func (s *Store) Put(ctx context.Context, scope types.Scope, key string, value json.RawMessage, opts types.PutOptions) (*types.StoredItem, error) {
	var result *types.StoredItem

	err := retry.Do(ctx, s.retryCfg, func() error {
		env, rev, err := s.current(ctx, scope, key)
		if err != nil {
			return retry.NonRetryable(err)
		}

		now := s.clock()
		active := env != nil && env.active(now)

		if opts.IfMatchVersion != nil {
			if !active || env.Version != *opts.IfMatchVersion {
				// A caller precondition mismatch is a definitive answer,
				// not a race to retry.
				return retry.NonRetryable(errors.WrapPrecondition(errors.ErrPreconditionFailed, "natskvstore", "Put", "version precondition not met"))
			}
		}

		next := envelope{
			Value:     value,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if active {
			next.Version = env.Version + 1
			next.CreatedAt = env.CreatedAt
		}
		if opts.TTLSeconds != nil {
			e := now.Add(time.Duration(*opts.TTLSeconds) * time.Second)
			next.ExpiresAt = &e
		}

		payload, err := json.Marshal(next)
		if err != nil {
			return retry.NonRetryable(errors.WrapInternal(err, "natskvstore", "Put", "encode envelope"))
		}

		if env == nil {
			_, err = s.kv.Create(ctx, entryKey(scope, key), payload)
		} else {
			// An expired entry is replaced in place; its revision still
			// guards against a concurrent writer.
			_, err = s.kv.Update(ctx, entryKey(scope, key), payload, rev)
		}
		if err != nil {
			if natsclient.IsKVConflict(err) {
				return errors.ErrRevisionConflict
			}
			return retry.NonRetryable(errors.WrapInternal(err, "natskvstore", "Put", "write entry"))
		}

		result = next.toItem(key)
		return nil
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrRevisionConflict) {
			return nil, errors.WrapPrecondition(errors.ErrRetryBudgetSpent, "natskvstore", "Put", "compare-and-swap retry budget exhausted")
		}
		return nil, err
	}
	return result, nil
}

// Delete removes the item at (scope, key) with a CAS loop and reports
// whether an active item existed.
func (s *Store) Delete(ctx context.Context, scope types.Scope, key string, opts types.DeleteOptions) (bool, error) {
	var existed bool

	err := retry.Do(ctx, s.retryCfg, func() error {
		env, rev, err := s.current(ctx, scope, key)
		if err != nil {
			return retry.NonRetryable(err)
		}
		if env == nil {
			existed = false
			return nil
		}

		if !env.active(s.clock()) {
			s.reapExpired(ctx, scope, key, rev)
			existed = false
			return nil
		}

		if opts.IfMatchVersion != nil && env.Version != *opts.IfMatchVersion {
			return retry.NonRetryable(errors.WrapPrecondition(errors.ErrPreconditionFailed, "natskvstore", "Delete", "version precondition not met"))
		}

		err = s.kv.Delete(ctx, entryKey(scope, key), jetstream.LastRevision(rev))
		if err != nil {
			if natsclient.IsKVConflict(err) {
				return errors.ErrRevisionConflict
			}
			if natsclient.IsKVNotFound(err) {
				existed = false
				return nil
			}
			return retry.NonRetryable(errors.WrapInternal(err, "natskvstore", "Delete", "delete entry"))
		}
		existed = true
		return nil
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrRevisionConflict) {
			return false, errors.WrapPrecondition(errors.ErrRetryBudgetSpent, "natskvstore", "Delete", "compare-and-swap retry budget exhausted")
		}
		return false, err
	}
	return existed, nil
}

// BatchGet returns a mapping with an entry for every requested key.
func (s *Store) BatchGet(ctx context.Context, scope types.Scope, keys []string) (map[string]*types.StoredItem, error) {
	result := make(map[string]*types.StoredItem, len(keys))
	for _, key := range keys {
		item, err := s.Get(ctx, scope, key)
		if err != nil {
			return nil, err
		}
		result[key] = item
	}
	return result, nil
}

// BatchPut applies puts in declaration order; the first failure aborts the
// batch and leaves earlier entries committed.
func (s *Store) BatchPut(ctx context.Context, scope types.Scope, entries []types.BatchEntry) (map[string]*types.StoredItem, error) {
	result := make(map[string]*types.StoredItem, len(entries))
	for _, entry := range entries {
		item, err := s.Put(ctx, scope, entry.Key, entry.Value, types.PutOptions{
			TTLSeconds:     entry.TTLSeconds,
			IfMatchVersion: entry.IfMatchVersion,
		})
		if err != nil {
			return nil, errors.Wrap(err, "natskvstore", "BatchPut", fmt.Sprintf("entry %q", entry.Key))
		}
		result[entry.Key] = item
	}
	return result, nil
}

// List returns one page of active items in ascending byte order of the
// decoded key. The bucket has no ordered range scan, so the key set is
// enumerated, decoded and sorted before envelopes are fetched for the
// page window only.
func (s *Store) List(ctx context.Context, scope types.Scope, opts types.ListOptions) (*types.ListResult, error) {
	afterKey, err := cursor.Decode(opts.Cursor)
	if err != nil {
		return nil, errors.WrapValidation(err, "natskvstore", "List", "cursor is not a valid continuation token")
	}

	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, errors.WrapInternal(err, "natskvstore", "List", "enumerate keys")
	}
	defer lister.Stop()

	prefix := scopePrefix(scope)
	var candidates []string
	for raw := range lister.Keys() {
		if !strings.HasPrefix(raw, prefix) {
			continue
		}
		key, err := unescapeComponent(raw[len(prefix):])
		if err != nil {
			s.logger.Warn("skipping undecodable entry key", "raw", raw, "error", err)
			continue
		}
		if !strings.HasPrefix(key, opts.Prefix) || key <= afterKey {
			continue
		}
		candidates = append(candidates, key)
	}
	sort.Strings(candidates)

	now := s.clock()
	items := make([]*types.StoredItem, 0, opts.Limit)
	more := false
	for _, key := range candidates {
		env, rev, err := s.current(ctx, scope, key)
		if err != nil {
			return nil, err
		}
		if env == nil {
			continue
		}
		if !env.active(now) {
			s.reapExpired(ctx, scope, key, rev)
			continue
		}
		if len(items) == opts.Limit {
			more = true
			break
		}
		items = append(items, env.toItem(key))
	}

	result := &types.ListResult{Items: items}
	if more && len(items) > 0 {
		result.NextCursor = cursor.Encode(items[len(items)-1].Key)
	}
	return result, nil
}

// Health checks bucket status.
func (s *Store) Health(ctx context.Context) types.HealthStatus {
	if _, err := s.kv.Status(ctx); err != nil {
		return types.HealthStatus{OK: false, Details: err.Error()}
	}
	return types.HealthStatus{OK: true}
}

// Close runs the attached closer, if any. Idempotent.
func (s *Store) Close() error {
	if s.closeFn == nil {
		return nil
	}
	fn := s.closeFn
	s.closeFn = nil
	return fn()
}
