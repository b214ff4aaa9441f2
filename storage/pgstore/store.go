// Package pgstore implements the storage adapter contract on a networked
// PostgreSQL database via lib/pq. Keys are collated with "C" so index
// order equals ascending byte order, matching the pagination contract of
// the other backends.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/wahidkadwaikar/sync-storage/errors"
	"github.com/wahidkadwaikar/sync-storage/pkg/cursor"
	"github.com/wahidkadwaikar/sync-storage/storage"
	"github.com/wahidkadwaikar/sync-storage/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	tenant_id  TEXT NOT NULL,
	namespace  TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	key        TEXT COLLATE "C" NOT NULL,
	value_json JSONB NOT NULL,
	version    BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ,
	PRIMARY KEY (tenant_id, namespace, user_id, key)
);
CREATE INDEX IF NOT EXISTS idx_items_expiry ON items (expires_at) WHERE expires_at IS NOT NULL;`

// Store implements storage.Store on PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Open connects to the database named by dsn (a lib/pq connection string
// or postgres:// URL), verifies the connection and applies the schema
// idempotently.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "pgstore", "Open", "parse connection string")
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "pgstore", "Open", "ping database")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "pgstore", "Open", "create schema")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		db:     db,
		logger: logger.With("backend", "postgres"),
		now:    time.Now,
	}, nil
}

func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

type row struct {
	key       string
	valueJSON []byte
	version   int64
	createdAt time.Time
	updatedAt time.Time
	expiresAt sql.NullTime
}

func (r *row) toItem() *types.StoredItem {
	item := &types.StoredItem{
		Key:       r.key,
		Value:     json.RawMessage(r.valueJSON),
		Version:   r.version,
		ETag:      types.FormatETag(r.version),
		CreatedAt: r.createdAt.UTC(),
		UpdatedAt: r.updatedAt.UTC(),
	}
	if r.expiresAt.Valid {
		expiresAt := r.expiresAt.Time.UTC()
		item.ExpiresAt = &expiresAt
	}
	return item
}

// Get returns the active item or nil. An expired row it encounters is
// removed opportunistically.
func (s *Store) Get(ctx context.Context, scope types.Scope, key string) (*types.StoredItem, error) {
	r := row{key: key}
	err := s.db.QueryRowContext(ctx,
		`SELECT value_json, version, created_at, updated_at, expires_at
		 FROM items WHERE tenant_id=$1 AND namespace=$2 AND user_id=$3 AND key=$4`,
		scope.TenantID, scope.Namespace, scope.UserID, key,
	).Scan(&r.valueJSON, &r.version, &r.createdAt, &r.updatedAt, &r.expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapInternal(err, "pgstore", "Get", "query item")
	}

	item := r.toItem()
	if !item.Active(s.clock()) {
		s.reapExpired(ctx, scope, key, item.Version)
		return nil, nil
	}
	return item, nil
}

// reapExpired removes an expired row if it still carries the observed
// version. Best effort: failures are logged and swallowed.
func (s *Store) reapExpired(ctx context.Context, scope types.Scope, key string, version int64) {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM items WHERE tenant_id=$1 AND namespace=$2 AND user_id=$3 AND key=$4 AND version=$5`,
		scope.TenantID, scope.Namespace, scope.UserID, key, version)
	if err != nil {
		s.logger.Debug("expired row reap failed", "scope", scope.String(), "key", key, "error", err)
	}
}

// Put creates or replaces the item at (scope, key). The precondition check
// and the write run in one serialized transaction; a concurrent writer
// that wins the race surfaces as a serialization failure which the caller
// sees as an internal error, never as silent lost update.
func (s *Store) Put(ctx context.Context, scope types.Scope, key string, value json.RawMessage, opts types.PutOptions) (*types.StoredItem, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, errors.WrapInternal(err, "pgstore", "Put", "begin transaction")
	}
	defer tx.Rollback()

	item, err := putInTx(ctx, tx, scope, key, value, opts, s.clock())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.WrapInternal(err, "pgstore", "Put", "commit")
	}
	return item, nil
}

func putInTx(ctx context.Context, tx *sql.Tx, scope types.Scope, key string, value json.RawMessage, opts types.PutOptions, now time.Time) (*types.StoredItem, error) {
	var (
		curVersion   sql.NullInt64
		curCreatedAt sql.NullTime
		curExpiresAt sql.NullTime
	)
	// FOR UPDATE serializes concurrent writers on the same row so the
	// precondition check and the upsert observe a single state.
	err := tx.QueryRowContext(ctx,
		`SELECT version, created_at, expires_at
		 FROM items WHERE tenant_id=$1 AND namespace=$2 AND user_id=$3 AND key=$4
		 FOR UPDATE`,
		scope.TenantID, scope.Namespace, scope.UserID, key,
	).Scan(&curVersion, &curCreatedAt, &curExpiresAt)
	if err != nil && err != sql.ErrNoRows {
		return nil, errors.WrapInternal(err, "pgstore", "Put", "read current row")
	}

	active := err == nil
	if active && curExpiresAt.Valid {
		active = curExpiresAt.Time.After(now)
	}

	if opts.IfMatchVersion != nil {
		if !active || curVersion.Int64 != *opts.IfMatchVersion {
			return nil, errors.WrapPrecondition(errors.ErrPreconditionFailed, "pgstore", "Put", "version precondition not met")
		}
	}

	version := int64(1)
	createdAt := now
	if active {
		version = curVersion.Int64 + 1
		createdAt = curCreatedAt.Time.UTC()
	}

	var expiresAt *time.Time
	var expiresCol any
	if opts.TTLSeconds != nil {
		e := now.Add(time.Duration(*opts.TTLSeconds) * time.Second)
		expiresAt = &e
		expiresCol = e
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO items (tenant_id, namespace, user_id, key, value_json, version, created_at, updated_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (tenant_id, namespace, user_id, key) DO UPDATE SET
			value_json=excluded.value_json,
			version=excluded.version,
			created_at=excluded.created_at,
			updated_at=excluded.updated_at,
			expires_at=excluded.expires_at`,
		scope.TenantID, scope.Namespace, scope.UserID, key,
		string(value), version, createdAt, now, expiresCol)
	if err != nil {
		return nil, errors.WrapInternal(err, "pgstore", "Put", "write item")
	}

	return &types.StoredItem{
		Key:       key,
		Value:     value,
		Version:   version,
		ETag:      types.FormatETag(version),
		CreatedAt: createdAt,
		UpdatedAt: now,
		ExpiresAt: expiresAt,
	}, nil
}

// Delete removes the item at (scope, key) and reports whether an active
// item existed.
func (s *Store) Delete(ctx context.Context, scope types.Scope, key string, opts types.DeleteOptions) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.WrapInternal(err, "pgstore", "Delete", "begin transaction")
	}
	defer tx.Rollback()

	var (
		curVersion   int64
		curExpiresAt sql.NullTime
	)
	err = tx.QueryRowContext(ctx,
		`SELECT version, expires_at FROM items
		 WHERE tenant_id=$1 AND namespace=$2 AND user_id=$3 AND key=$4
		 FOR UPDATE`,
		scope.TenantID, scope.Namespace, scope.UserID, key,
	).Scan(&curVersion, &curExpiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.WrapInternal(err, "pgstore", "Delete", "read current row")
	}

	active := !curExpiresAt.Valid || curExpiresAt.Time.After(s.clock())
	if !active {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM items WHERE tenant_id=$1 AND namespace=$2 AND user_id=$3 AND key=$4`,
			scope.TenantID, scope.Namespace, scope.UserID, key); err != nil {
			return false, errors.WrapInternal(err, "pgstore", "Delete", "reap expired row")
		}
		if err := tx.Commit(); err != nil {
			return false, errors.WrapInternal(err, "pgstore", "Delete", "commit")
		}
		return false, nil
	}

	if opts.IfMatchVersion != nil && curVersion != *opts.IfMatchVersion {
		return false, errors.WrapPrecondition(errors.ErrPreconditionFailed, "pgstore", "Delete", "version precondition not met")
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM items WHERE tenant_id=$1 AND namespace=$2 AND user_id=$3 AND key=$4`,
		scope.TenantID, scope.Namespace, scope.UserID, key); err != nil {
		return false, errors.WrapInternal(err, "pgstore", "Delete", "delete item")
	}
	if err := tx.Commit(); err != nil {
		return false, errors.WrapInternal(err, "pgstore", "Delete", "commit")
	}
	return true, nil
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
			return nil, errors.Wrap(err, "pgstore", "BatchPut", fmt.Sprintf("entry %q", entry.Key))
		}
		result[entry.Key] = item
	}
	return result, nil
}

// List returns one page of active items in ascending byte order of key.
func (s *Store) List(ctx context.Context, scope types.Scope, opts types.ListOptions) (*types.ListResult, error) {
	afterKey, err := cursor.Decode(opts.Cursor)
	if err != nil {
		return nil, errors.WrapValidation(err, "pgstore", "List", "cursor is not a valid continuation token")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value_json, version, created_at, updated_at, expires_at
		 FROM items
		 WHERE tenant_id=$1 AND namespace=$2 AND user_id=$3
		   AND key LIKE $4 ESCAPE '\'
		   AND key > $5
		   AND (expires_at IS NULL OR expires_at > $6)
		 ORDER BY key ASC
		 LIMIT $7`,
		scope.TenantID, scope.Namespace, scope.UserID,
		storage.EscapeLike(opts.Prefix)+"%", afterKey, s.clock(), opts.Limit+1)
	if err != nil {
		return nil, errors.WrapInternal(err, "pgstore", "List", "query items")
	}
	defer rows.Close()

	items := make([]*types.StoredItem, 0, opts.Limit)
	more := false
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.key, &r.valueJSON, &r.version, &r.createdAt, &r.updatedAt, &r.expiresAt); err != nil {
			return nil, errors.WrapInternal(err, "pgstore", "List", "scan row")
		}
		if len(items) == opts.Limit {
			more = true
			break
		}
		items = append(items, r.toItem())
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapInternal(err, "pgstore", "List", "iterate rows")
	}

	result := &types.ListResult{Items: items}
	if more && len(items) > 0 {
		result.NextCursor = cursor.Encode(items[len(items)-1].Key)
	}
	return result, nil
}

// Health runs a trivial round-trip query.
func (s *Store) Health(ctx context.Context) types.HealthStatus {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return types.HealthStatus{OK: false, Details: err.Error()}
	}
	return types.HealthStatus{OK: true}
}

// Close releases the connection pool. Idempotent.
func (s *Store) Close() error {
	return s.db.Close()
}
