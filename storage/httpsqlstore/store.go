// Package httpsqlstore implements the storage adapter contract against a
// remote SQL service spoken to over HTTP.
//
// The service accepts POST {baseURL}/query with a JSON body of parameterised
// statements and executes each request's statements in a single transaction.
// That transactional boundary substitutes for the BEGIN..COMMIT the embedded
// and relational backends use: a conditional write and its verification
// SELECT travel in one request, so no concurrent writer can interleave
// between check and write.
//
// Transport-level failures are retried by hashicorp/go-retryablehttp;
// application errors (non-2xx with an error body) are never retried.
package httpsqlstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/wahidkadwaikar/sync-storage/errors"
	"github.com/wahidkadwaikar/sync-storage/pkg/cursor"
	"github.com/wahidkadwaikar/sync-storage/storage"
	"github.com/wahidkadwaikar/sync-storage/types"
)

// timeLayout is the same fixed-width millisecond UTC form the embedded
// backend stores, keeping lexicographic TEXT comparison chronological on
// any remote dialect.
const timeLayout = "2006-01-02T15:04:05.000Z"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS items (
		tenant_id  TEXT NOT NULL,
		namespace  TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		key        TEXT NOT NULL,
		value_json TEXT NOT NULL,
		version    BIGINT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		expires_at TEXT,
		PRIMARY KEY (tenant_id, namespace, user_id, key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_items_expiry ON items (expires_at)`,
}

type statement struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

type queryRequest struct {
	Statements []statement `json:"statements"`
}

type queryResult struct {
	Columns []string            `json:"columns"`
	Rows    [][]json.RawMessage `json:"rows"`
}

type queryResponse struct {
	Results []queryResult `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Store implements storage.Store against the remote SQL service.
type Store struct {
	baseURL   string
	authToken string
	client    *retryablehttp.Client
	logger    *slog.Logger
	now       func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Open builds a client for the service at baseURL (no trailing slash
// required) and applies the schema idempotently. authToken may be empty for
// unauthenticated deployments.
func Open(ctx context.Context, baseURL, authToken string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	client.HTTPClient.Timeout = 30 * time.Second
	// Retry transport failures only; any HTTP response, including a non-2xx
	// application error, goes back to the caller unretried.
	client.CheckRetry = func(ctx context.Context, _ *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}

	s := &Store{
		baseURL:   baseURL,
		authToken: authToken,
		client:    client,
		logger:    logger.With("backend", "httpsql"),
		now:       time.Now,
	}

	stmts := make([]statement, len(schemaStatements))
	for i, sql := range schemaStatements {
		stmts[i] = statement{SQL: sql, Args: []any{}}
	}
	if _, err := s.query(ctx, stmts); err != nil {
		return nil, errors.Wrap(err, "httpsqlstore", "Open", "create schema")
	}
	return s, nil
}

func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// query executes statements in one remote transaction and returns one
// result per statement.
func (s *Store) query(ctx context.Context, stmts []statement) (*queryResponse, error) {
	body, err := json.Marshal(queryRequest{Statements: stmts})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var remote errorResponse
		if json.Unmarshal(payload, &remote) == nil && remote.Error != "" {
			return nil, fmt.Errorf("remote error (status %d): %s", resp.StatusCode, remote.Error)
		}
		return nil, fmt.Errorf("remote error: unexpected status %d", resp.StatusCode)
	}

	var out queryResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Results) != len(stmts) {
		return nil, fmt.Errorf("remote returned %d results for %d statements", len(out.Results), len(stmts))
	}
	return &out, nil
}

// cell decoding helpers

func cellString(raw json.RawMessage) (string, error) {
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	return v, nil
}

func cellInt(raw json.RawMessage) (int64, error) {
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func cellNullString(raw json.RawMessage) (*string, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// rowToItem decodes a SELECT row in column order
// key, value_json, version, created_at, updated_at, expires_at.
func rowToItem(cells []json.RawMessage) (*types.StoredItem, error) {
	if len(cells) != 6 {
		return nil, fmt.Errorf("expected 6 columns, got %d", len(cells))
	}
	key, err := cellString(cells[0])
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	valueJSON, err := cellString(cells[1])
	if err != nil {
		return nil, fmt.Errorf("decode value_json: %w", err)
	}
	version, err := cellInt(cells[2])
	if err != nil {
		return nil, fmt.Errorf("decode version: %w", err)
	}
	createdRaw, err := cellString(cells[3])
	if err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	createdAt, err := time.Parse(timeLayout, createdRaw)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdRaw, err)
	}
	updatedRaw, err := cellString(cells[4])
	if err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	updatedAt, err := time.Parse(timeLayout, updatedRaw)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at %q: %w", updatedRaw, err)
	}

	item := &types.StoredItem{
		Key:       key,
		Value:     json.RawMessage(valueJSON),
		Version:   version,
		ETag:      types.FormatETag(version),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}

	expiresRaw, err := cellNullString(cells[5])
	if err != nil {
		return nil, fmt.Errorf("decode expires_at: %w", err)
	}
	if expiresRaw != nil {
		expiresAt, err := time.Parse(timeLayout, *expiresRaw)
		if err != nil {
			return nil, fmt.Errorf("parse expires_at %q: %w", *expiresRaw, err)
		}
		item.ExpiresAt = &expiresAt
	}
	return item, nil
}

const selectItemSQL = `SELECT key, value_json, version, created_at, updated_at, expires_at
 FROM items WHERE tenant_id=? AND namespace=? AND user_id=? AND key=?`

// reapExpiredSQL removes a row only when it is already expired at the
// supplied instant, so it can ride along in any request harmlessly.
const reapExpiredSQL = `DELETE FROM items
 WHERE tenant_id=? AND namespace=? AND user_id=? AND key=?
   AND expires_at IS NOT NULL AND expires_at <= ?`

func scopeArgs(scope types.Scope, rest ...any) []any {
	args := []any{scope.TenantID, scope.Namespace, scope.UserID}
	return append(args, rest...)
}

// Get returns the active item or nil. The ride-along delete reaps an
// expired row in the same transaction as the read.
func (s *Store) Get(ctx context.Context, scope types.Scope, key string) (*types.StoredItem, error) {
	now := s.clock()
	resp, err := s.query(ctx, []statement{
		{SQL: selectItemSQL, Args: scopeArgs(scope, key)},
		{SQL: reapExpiredSQL, Args: scopeArgs(scope, key, now.Format(timeLayout))},
	})
	if err != nil {
		return nil, errors.WrapInternal(err, "httpsqlstore", "Get", "query item")
	}

	rows := resp.Results[0].Rows
	if len(rows) == 0 {
		return nil, nil
	}
	item, err := rowToItem(rows[0])
	if err != nil {
		return nil, errors.WrapInternal(err, "httpsqlstore", "Get", "decode row")
	}
	if !item.Active(now) {
		return nil, nil
	}
	return item, nil
}

// Put creates or replaces the item at (scope, key).
//
// Without a precondition the write is a single conditional upsert whose
// CASE arms reset the version sequence over an expired row. With a
// precondition the request carries a guarded UPDATE plus a verification
// SELECT; the remote transaction makes the pair atomic and the client
// classifies the outcome from the SELECT.
func (s *Store) Put(ctx context.Context, scope types.Scope, key string, value json.RawMessage, opts types.PutOptions) (*types.StoredItem, error) {
	now := s.clock()
	nowStr := now.Format(timeLayout)

	var expiresCol any
	if opts.TTLSeconds != nil {
		expiresCol = now.Add(time.Duration(*opts.TTLSeconds) * time.Second).Format(timeLayout)
	}

	var stmts []statement
	if opts.IfMatchVersion == nil {
		stmts = []statement{
			{
				SQL: `INSERT INTO items (tenant_id, namespace, user_id, key, value_json, version, created_at, updated_at, expires_at)
 VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)
 ON CONFLICT (tenant_id, namespace, user_id, key) DO UPDATE SET
	value_json=excluded.value_json,
	version=CASE WHEN items.expires_at IS NOT NULL AND items.expires_at <= excluded.updated_at
		THEN 1 ELSE items.version+1 END,
	created_at=CASE WHEN items.expires_at IS NOT NULL AND items.expires_at <= excluded.updated_at
		THEN excluded.created_at ELSE items.created_at END,
	updated_at=excluded.updated_at,
	expires_at=excluded.expires_at`,
				Args: scopeArgs(scope, key, string(value), nowStr, nowStr, expiresCol),
			},
			{SQL: selectItemSQL, Args: scopeArgs(scope, key)},
		}
	} else {
		stmts = []statement{
			{
				SQL: `UPDATE items SET value_json=?, version=version+1, updated_at=?, expires_at=?
 WHERE tenant_id=? AND namespace=? AND user_id=? AND key=?
   AND version=? AND (expires_at IS NULL OR expires_at > ?)`,
				Args: append([]any{string(value), nowStr, expiresCol},
					scopeArgs(scope, key, *opts.IfMatchVersion, nowStr)...),
			},
			{SQL: selectItemSQL, Args: scopeArgs(scope, key)},
		}
	}

	resp, err := s.query(ctx, stmts)
	if err != nil {
		return nil, errors.WrapInternal(err, "httpsqlstore", "Put", "execute write")
	}

	rows := resp.Results[1].Rows
	if len(rows) == 0 {
		if opts.IfMatchVersion != nil {
			return nil, errors.WrapPrecondition(errors.ErrPreconditionFailed, "httpsqlstore", "Put", "version precondition not met")
		}
		return nil, errors.WrapInternal(fmt.Errorf("row missing after upsert"), "httpsqlstore", "Put", "verify write")
	}
	item, err := rowToItem(rows[0])
	if err != nil {
		return nil, errors.WrapInternal(err, "httpsqlstore", "Put", "decode row")
	}
	if opts.IfMatchVersion != nil {
		// The guarded UPDATE touched nothing when the version (or expiry
		// state) did not match; the row then still shows its old
		// updated_at stamp.
		if item.Version != *opts.IfMatchVersion+1 || !item.UpdatedAt.Equal(now) {
			return nil, errors.WrapPrecondition(errors.ErrPreconditionFailed, "httpsqlstore", "Put", "version precondition not met")
		}
	}
	return item, nil
}

// Delete removes the item at (scope, key) and reports whether an active
// item existed. The pre-state SELECT, the guarded DELETE and the expired
// reap travel in one transaction.
func (s *Store) Delete(ctx context.Context, scope types.Scope, key string, opts types.DeleteOptions) (bool, error) {
	now := s.clock()
	nowStr := now.Format(timeLayout)

	deleteSQL := `DELETE FROM items
 WHERE tenant_id=? AND namespace=? AND user_id=? AND key=?
   AND (expires_at IS NULL OR expires_at > ?)`
	deleteArgs := scopeArgs(scope, key, nowStr)
	if opts.IfMatchVersion != nil {
		deleteSQL += ` AND version=?`
		deleteArgs = append(deleteArgs, *opts.IfMatchVersion)
	}

	resp, err := s.query(ctx, []statement{
		{SQL: selectItemSQL, Args: scopeArgs(scope, key)},
		{SQL: deleteSQL, Args: deleteArgs},
		{SQL: reapExpiredSQL, Args: scopeArgs(scope, key, nowStr)},
	})
	if err != nil {
		return false, errors.WrapInternal(err, "httpsqlstore", "Delete", "execute delete")
	}

	rows := resp.Results[0].Rows
	if len(rows) == 0 {
		return false, nil
	}
	prior, err := rowToItem(rows[0])
	if err != nil {
		return false, errors.WrapInternal(err, "httpsqlstore", "Delete", "decode row")
	}
	if !prior.Active(now) {
		return false, nil
	}
	if opts.IfMatchVersion != nil && prior.Version != *opts.IfMatchVersion {
		return false, errors.WrapPrecondition(errors.ErrPreconditionFailed, "httpsqlstore", "Delete", "version precondition not met")
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
			return nil, errors.Wrap(err, "httpsqlstore", "BatchPut", fmt.Sprintf("entry %q", entry.Key))
		}
		result[entry.Key] = item
	}
	return result, nil
}

// List returns one page of active items in ascending key order.
func (s *Store) List(ctx context.Context, scope types.Scope, opts types.ListOptions) (*types.ListResult, error) {
	afterKey, err := cursor.Decode(opts.Cursor)
	if err != nil {
		return nil, errors.WrapValidation(err, "httpsqlstore", "List", "cursor is not a valid continuation token")
	}

	now := s.clock().Format(timeLayout)
	resp, err := s.query(ctx, []statement{{
		SQL: `SELECT key, value_json, version, created_at, updated_at, expires_at
 FROM items
 WHERE tenant_id=? AND namespace=? AND user_id=?
   AND key LIKE ? ESCAPE '\'
   AND key > ?
   AND (expires_at IS NULL OR expires_at > ?)
 ORDER BY key ASC
 LIMIT ?`,
		Args: scopeArgs(scope, storage.EscapeLike(opts.Prefix)+"%", afterKey, now, opts.Limit+1),
	}})
	if err != nil {
		return nil, errors.WrapInternal(err, "httpsqlstore", "List", "query items")
	}

	rows := resp.Results[0].Rows
	items := make([]*types.StoredItem, 0, opts.Limit)
	more := false
	for _, cells := range rows {
		if len(items) == opts.Limit {
			more = true
			break
		}
		item, err := rowToItem(cells)
		if err != nil {
			return nil, errors.WrapInternal(err, "httpsqlstore", "List", "decode row")
		}
		items = append(items, item)
	}

	result := &types.ListResult{Items: items}
	if more && len(items) > 0 {
		result.NextCursor = cursor.Encode(items[len(items)-1].Key)
	}
	return result, nil
}

// Health runs a trivial round-trip statement.
func (s *Store) Health(ctx context.Context) types.HealthStatus {
	if _, err := s.query(ctx, []statement{{SQL: "SELECT 1", Args: []any{}}}); err != nil {
		return types.HealthStatus{OK: false, Details: err.Error()}
	}
	return types.HealthStatus{OK: true}
}

// Close releases idle transport connections. Idempotent.
func (s *Store) Close() error {
	s.client.HTTPClient.CloseIdleConnections()
	return nil
}
