package httpsqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/wahidkadwaikar/sync-storage/storage"
	"github.com/wahidkadwaikar/sync-storage/storage/storagetest"
)

// fakeRemote is a minimal in-process rendition of the remote SQL service:
// each request's statements run in one transaction against an embedded
// database, rows come back as JSON arrays.
type fakeRemote struct {
	db    *sql.DB
	token string
}

func newFakeRemote(t *testing.T, token string) *httptest.Server {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	// A single connection keeps every request on the same in-memory
	// database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	remote := &fakeRemote{db: db, token: token}
	server := httptest.NewServer(remote)
	t.Cleanup(server.Close)
	return server
}

func (f *fakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/query" {
		writeRemoteError(w, http.StatusNotFound, "unknown endpoint")
		return
	}
	if f.token != "" && r.Header.Get("Authorization") != "Bearer "+f.token {
		writeRemoteError(w, http.StatusUnauthorized, "bad token")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRemoteError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := f.db.Begin()
	if err != nil {
		writeRemoteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer tx.Rollback()

	var resp queryResponse
	for _, stmt := range req.Statements {
		result, err := execStatement(tx, stmt)
		if err != nil {
			writeRemoteError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp.Results = append(resp.Results, *result)
	}
	if err := tx.Commit(); err != nil {
		writeRemoteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func execStatement(tx *sql.Tx, stmt statement) (*queryResult, error) {
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(stmt.SQL)), "SELECT") {
		if _, err := tx.Exec(stmt.SQL, stmt.Args...); err != nil {
			return nil, err
		}
		return &queryResult{Columns: []string{}, Rows: [][]json.RawMessage{}}, nil
	}

	rows, err := tx.Query(stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := &queryResult{Columns: columns, Rows: [][]json.RawMessage{}}
	for rows.Next() {
		cells := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		encoded := make([]json.RawMessage, len(columns))
		for i, cell := range cells {
			if b, ok := cell.([]byte); ok {
				cell = string(b)
			}
			raw, err := json.Marshal(cell)
			if err != nil {
				return nil, err
			}
			encoded[i] = raw
		}
		result.Rows = append(result.Rows, encoded)
	}
	return result, rows.Err()
}

func writeRemoteError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		server := newFakeRemote(t, "")
		s, err := Open(context.Background(), server.URL, "", nil)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestAuthTokenSent(t *testing.T) {
	server := newFakeRemote(t, "s3cret")

	_, err := Open(context.Background(), server.URL, "wrong", nil)
	require.Error(t, err, "remote rejects a bad token")

	s, err := Open(context.Background(), server.URL, "s3cret", nil)
	require.NoError(t, err)
	defer s.Close()

	status := s.Health(context.Background())
	assert.True(t, status.OK, "details: %s", status.Details)
}

func TestRemoteErrorSurfacesMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeRemoteError(w, http.StatusBadRequest, "syntax error near FROB")
	}))
	defer server.Close()

	_, err := Open(context.Background(), server.URL, "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error near FROB")
}
