package http

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/wahidkadwaikar/sync-storage/errors"
	"github.com/wahidkadwaikar/sync-storage/service"
	"github.com/wahidkadwaikar/sync-storage/types"
)

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type readyzBody struct {
	OK      bool   `json:"ok"`
	Backend string `json:"backend"`
	Details string `json:"details,omitempty"`
}

// handleReadyz reports the last backend probe from the monitor. Before the
// first probe lands the process is not ready.
func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	status, ok := s.monitor.Get(s.backend)
	body := readyzBody{Backend: s.backend}
	if !ok {
		body.Details = "no backend probe recorded yet"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	body.OK = status.IsHealthy()
	body.Details = status.Message
	if !body.OK {
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// readBody drains a capped request body, translating the cap into a
// validation failure instead of a bare 500.
func readBody(r *http.Request, op string) ([]byte, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return nil, errors.New(errors.KindValidation, "http", op,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return nil, errors.WrapInternal(err, "http", op, "read request body")
	}
	return data, nil
}

func parseTTL(r *http.Request, op string) (*int64, error) {
	raw := r.URL.Query().Get("ttlSeconds")
	if raw == "" {
		return nil, nil
	}
	ttl, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.WrapValidation(err, "http", op, "ttlSeconds must be an integer")
	}
	return &ttl, nil
}

func (s *Server) handlePutItem(w http.ResponseWriter, r *http.Request, scope types.Scope) {
	key := r.PathValue("key")
	value, err := readBody(r, "PutItem")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ttl, err := parseTTL(r, "PutItem")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	item, err := s.service.SetItem(r.Context(), scope, key, value, service.SetOptions{
		TTLSeconds: ttl,
		IfMatch:    r.Header.Get("If-Match"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	setItemHeaders(w, item)
	writeJSON(w, http.StatusOK, metadataOf(item))
}

// handleGetItem returns the raw stored value as the body; metadata rides
// in headers so clients get the document back byte-for-byte.
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request, scope types.Scope) {
	item, err := s.service.GetItem(r.Context(), scope, r.PathValue("key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if item == nil {
		s.writeError(w, r, errors.WrapNotFound(errors.ErrItemNotFound, "http", "GetItem",
			fmt.Sprintf("no item for key %q", r.PathValue("key"))))
		return
	}
	setItemHeaders(w, item)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(item.Value)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request, scope types.Scope) {
	existed, err := s.service.RemoveItem(r.Context(), scope, r.PathValue("key"), r.Header.Get("If-Match"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !existed {
		s.writeError(w, r, errors.WrapNotFound(errors.ErrItemNotFound, "http", "DeleteItem",
			fmt.Sprintf("no item for key %q", r.PathValue("key"))))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type batchGetRequest struct {
	Keys []string `json:"keys"`
}

type batchItemsBody struct {
	Items map[string]*types.StoredItem `json:"items"`
}

// handleBatchGet returns an entry for every requested key; missing keys
// map to null so clients can distinguish absence without a second call.
func (s *Server) handleBatchGet(w http.ResponseWriter, r *http.Request, scope types.Scope) {
	body, err := readBody(r, "BatchGet")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req batchGetRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, errors.WrapValidation(err, "http", "BatchGet", "decode request body"))
		return
	}

	items, err := s.service.BatchGet(r.Context(), scope, req.Keys)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batchItemsBody{Items: items})
}

type batchPutRequest struct {
	Entries []batchPutEntry `json:"entries"`
}

type batchPutEntry struct {
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	TTLSeconds *int64          `json:"ttlSeconds,omitempty"`
	IfMatch    string          `json:"ifMatch,omitempty"`
}

func (s *Server) handleBatchPut(w http.ResponseWriter, r *http.Request, scope types.Scope) {
	body, err := readBody(r, "BatchPut")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req batchPutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, errors.WrapValidation(err, "http", "BatchPut", "decode request body"))
		return
	}

	entries := make([]service.BatchPutEntry, 0, len(req.Entries))
	for _, entry := range req.Entries {
		entries = append(entries, service.BatchPutEntry{
			Key:        entry.Key,
			Value:      entry.Value,
			TTLSeconds: entry.TTLSeconds,
			IfMatch:    entry.IfMatch,
		})
	}

	items, err := s.service.BatchPut(r.Context(), scope, entries)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for key, item := range items {
		if item != nil {
			meta := metadataOf(item)
			items[key] = &meta
		}
	}
	writeJSON(w, http.StatusOK, batchItemsBody{Items: items})
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request, scope types.Scope) {
	query := r.URL.Query()
	params := service.ListParams{
		Prefix: query.Get("prefix"),
		Cursor: query.Get("cursor"),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, errors.WrapValidation(err, "http", "ListItems", "limit must be an integer"))
			return
		}
		params.Limit = &limit
	}

	result, err := s.service.List(r.Context(), scope, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
