// Package sqlitestore implements the storage adapter contract on an
// embedded SQLite database. It uses the pure-Go modernc.org/sqlite driver,
// so the binary needs no cgo and the backend needs no external process.
// Use ":memory:" as the path for an in-memory database.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wahidkadwaikar/sync-storage/errors"
	"github.com/wahidkadwaikar/sync-storage/pkg/cursor"
	"github.com/wahidkadwaikar/sync-storage/storage"
	"github.com/wahidkadwaikar/sync-storage/types"
)

// timeLayout is a fixed-width RFC 3339 UTC form with millisecond
// precision. Fixed width keeps lexicographic TEXT comparison equal to
// chronological comparison, which the expiry filter relies on.
const timeLayout = "2006-01-02T15:04:05.000Z"

const schema = `
CREATE TABLE IF NOT EXISTS items (
	tenant_id  TEXT NOT NULL,
	namespace  TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	key        TEXT NOT NULL,
	value_json TEXT NOT NULL,
	version    INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	expires_at TEXT,
	PRIMARY KEY (tenant_id, namespace, user_id, key)
);
CREATE INDEX IF NOT EXISTS idx_items_expiry ON items (expires_at);`

// Store implements storage.Store on an embedded SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Open opens (or creates) a SQLite-backed store at path and applies the
// schema idempotently.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "sqlitestore", "Open", "open database")
	}

	// WAL improves concurrent read performance; the busy timeout lets
	// writers queue instead of failing with SQLITE_BUSY.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "sqlitestore", "Open", pragma)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlitestore", "Open", "create schema")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		db:     db,
		logger: logger.With("backend", "sqlite"),
		now:    time.Now,
	}, nil
}

func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

type row struct {
	key       string
	valueJSON string
	version   int64
	createdAt string
	updatedAt string
	expiresAt sql.NullString
}

func (r *row) toItem() (*types.StoredItem, error) {
	createdAt, err := time.Parse(timeLayout, r.createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", r.createdAt, err)
	}
	updatedAt, err := time.Parse(timeLayout, r.updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at %q: %w", r.updatedAt, err)
	}
	item := &types.StoredItem{
		Key:       r.key,
		Value:     json.RawMessage(r.valueJSON),
		Version:   r.version,
		ETag:      types.FormatETag(r.version),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if r.expiresAt.Valid {
		expiresAt, err := time.Parse(timeLayout, r.expiresAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse expires_at %q: %w", r.expiresAt.String, err)
		}
		item.ExpiresAt = &expiresAt
	}
	return item, nil
}

// Get returns the active item or nil. An expired row it encounters is
// removed opportunistically.
func (s *Store) Get(ctx context.Context, scope types.Scope, key string) (*types.StoredItem, error) {
	r := row{key: key}
	err := s.db.QueryRowContext(ctx,
		`SELECT value_json, version, created_at, updated_at, expires_at
		 FROM items WHERE tenant_id=? AND namespace=? AND user_id=? AND key=?`,
		scope.TenantID, scope.Namespace, scope.UserID, key,
	).Scan(&r.valueJSON, &r.version, &r.createdAt, &r.updatedAt, &r.expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapInternal(err, "sqlitestore", "Get", "query item")
	}

	item, err := r.toItem()
	if err != nil {
		return nil, errors.WrapInternal(err, "sqlitestore", "Get", "decode row")
	}

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
		`DELETE FROM items WHERE tenant_id=? AND namespace=? AND user_id=? AND key=? AND version=?`,
		scope.TenantID, scope.Namespace, scope.UserID, key, version)
	if err != nil {
		s.logger.Debug("expired row reap failed", "scope", scope.String(), "key", key, "error", err)
	}
}

// Put creates or replaces the item at (scope, key). The precondition check
// and the write share one transaction.
func (s *Store) Put(ctx context.Context, scope types.Scope, key string, value json.RawMessage, opts types.PutOptions) (*types.StoredItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.WrapInternal(err, "sqlitestore", "Put", "begin transaction")
	}
	defer tx.Rollback()

	item, err := putInTx(ctx, tx, scope, key, value, opts, s.clock())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.WrapInternal(err, "sqlitestore", "Put", "commit")
	}
	return item, nil
}

// putInTx holds the backend-independent read-modify-write logic shared by
// Put and BatchPut.
func putInTx(ctx context.Context, tx *sql.Tx, scope types.Scope, key string, value json.RawMessage, opts types.PutOptions, now time.Time) (*types.StoredItem, error) {
	var (
		curVersion   sql.NullInt64
		curCreatedAt sql.NullString
		curExpiresAt sql.NullString
	)
	err := tx.QueryRowContext(ctx,
		`SELECT version, created_at, expires_at
		 FROM items WHERE tenant_id=? AND namespace=? AND user_id=? AND key=?`,
		scope.TenantID, scope.Namespace, scope.UserID, key,
	).Scan(&curVersion, &curCreatedAt, &curExpiresAt)
	if err != nil && err != sql.ErrNoRows {
		return nil, errors.WrapInternal(err, "sqlitestore", "Put", "read current row")
	}

	active := err == nil
	if active && curExpiresAt.Valid {
		expiresAt, perr := time.Parse(timeLayout, curExpiresAt.String)
		if perr != nil {
			return nil, errors.WrapInternal(perr, "sqlitestore", "Put", "decode current expiry")
		}
		active = expiresAt.After(now)
	}

	if opts.IfMatchVersion != nil {
		if !active || curVersion.Int64 != *opts.IfMatchVersion {
			return nil, errors.WrapPrecondition(errors.ErrPreconditionFailed, "sqlitestore", "Put", "version precondition not met")
		}
	}

	version := int64(1)
	createdAt := now
	if active {
		version = curVersion.Int64 + 1
		createdAt, err = time.Parse(timeLayout, curCreatedAt.String)
		if err != nil {
			return nil, errors.WrapInternal(err, "sqlitestore", "Put", "decode current created_at")
		}
	}

	var expiresAt *time.Time
	var expiresCol any
	if opts.TTLSeconds != nil {
		e := now.Add(time.Duration(*opts.TTLSeconds) * time.Second)
		expiresAt = &e
		expiresCol = e.Format(timeLayout)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO items (tenant_id, namespace, user_id, key, value_json, version, created_at, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, namespace, user_id, key) DO UPDATE SET
			value_json=excluded.value_json,
			version=excluded.version,
			created_at=excluded.created_at,
			updated_at=excluded.updated_at,
			expires_at=excluded.expires_at`,
		scope.TenantID, scope.Namespace, scope.UserID, key,
		string(value), version, createdAt.Format(timeLayout), now.Format(timeLayout), expiresCol)
	if err != nil {
		return nil, errors.WrapInternal(err, "sqlitestore", "Put", "write item")
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
		return false, errors.WrapInternal(err, "sqlitestore", "Delete", "begin transaction")
	}
	defer tx.Rollback()

	var (
		curVersion   int64
		curExpiresAt sql.NullString
	)
	err = tx.QueryRowContext(ctx,
		`SELECT version, expires_at FROM items WHERE tenant_id=? AND namespace=? AND user_id=? AND key=?`,
		scope.TenantID, scope.Namespace, scope.UserID, key,
	).Scan(&curVersion, &curExpiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.WrapInternal(err, "sqlitestore", "Delete", "read current row")
	}

	active := true
	if curExpiresAt.Valid {
		expiresAt, perr := time.Parse(timeLayout, curExpiresAt.String)
		if perr != nil {
			return false, errors.WrapInternal(perr, "sqlitestore", "Delete", "decode current expiry")
		}
		active = expiresAt.After(s.clock())
	}

	if !active {
		// Expired row behaves as absent; remove it while we hold the
		// transaction anyway.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM items WHERE tenant_id=? AND namespace=? AND user_id=? AND key=?`,
			scope.TenantID, scope.Namespace, scope.UserID, key); err != nil {
			return false, errors.WrapInternal(err, "sqlitestore", "Delete", "reap expired row")
		}
		if err := tx.Commit(); err != nil {
			return false, errors.WrapInternal(err, "sqlitestore", "Delete", "commit")
		}
		return false, nil
	}

	if opts.IfMatchVersion != nil && curVersion != *opts.IfMatchVersion {
		return false, errors.WrapPrecondition(errors.ErrPreconditionFailed, "sqlitestore", "Delete", "version precondition not met")
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM items WHERE tenant_id=? AND namespace=? AND user_id=? AND key=?`,
		scope.TenantID, scope.Namespace, scope.UserID, key); err != nil {
		return false, errors.WrapInternal(err, "sqlitestore", "Delete", "delete item")
	}
	if err := tx.Commit(); err != nil {
		return false, errors.WrapInternal(err, "sqlitestore", "Delete", "commit")
	}
	return true, nil
}

// BatchGet returns a mapping with an entry for every requested key.
// Distinct keys may reflect different points in time; the batch is not a
// snapshot.
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

// BatchPut applies puts in declaration order. Not transactional across
// entries: the first failure aborts the batch and leaves earlier entries
// committed.
func (s *Store) BatchPut(ctx context.Context, scope types.Scope, entries []types.BatchEntry) (map[string]*types.StoredItem, error) {
	result := make(map[string]*types.StoredItem, len(entries))
	for _, entry := range entries {
		item, err := s.Put(ctx, scope, entry.Key, entry.Value, types.PutOptions{
			TTLSeconds:     entry.TTLSeconds,
			IfMatchVersion: entry.IfMatchVersion,
		})
		if err != nil {
			return nil, errors.Wrap(err, "sqlitestore", "BatchPut", fmt.Sprintf("entry %q", entry.Key))
		}
		result[entry.Key] = item
	}
	return result, nil
}

// List returns one page of active items in ascending key order.
func (s *Store) List(ctx context.Context, scope types.Scope, opts types.ListOptions) (*types.ListResult, error) {
	afterKey, err := cursor.Decode(opts.Cursor)
	if err != nil {
		return nil, errors.WrapValidation(err, "sqlitestore", "List", "cursor is not a valid continuation token")
	}

	now := s.clock().Format(timeLayout)
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value_json, version, created_at, updated_at, expires_at
		 FROM items
		 WHERE tenant_id=? AND namespace=? AND user_id=?
		   AND key LIKE ? ESCAPE '\'
		   AND key > ?
		   AND (expires_at IS NULL OR expires_at > ?)
		 ORDER BY key ASC
		 LIMIT ?`,
		scope.TenantID, scope.Namespace, scope.UserID,
		storage.EscapeLike(opts.Prefix)+"%", afterKey, now, opts.Limit+1)
	if err != nil {
		return nil, errors.WrapInternal(err, "sqlitestore", "List", "query items")
	}
	defer rows.Close()

	items := make([]*types.StoredItem, 0, opts.Limit)
	more := false
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.key, &r.valueJSON, &r.version, &r.createdAt, &r.updatedAt, &r.expiresAt); err != nil {
			return nil, errors.WrapInternal(err, "sqlitestore", "List", "scan row")
		}
		if len(items) == opts.Limit {
			more = true
			break
		}
		item, err := r.toItem()
		if err != nil {
			return nil, errors.WrapInternal(err, "sqlitestore", "List", "decode row")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapInternal(err, "sqlitestore", "List", "iterate rows")
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

// Close releases the database handle. Idempotent.
func (s *Store) Close() error {
	return s.db.Close()
}
