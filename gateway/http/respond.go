package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/wahidkadwaikar/sync-storage/errors"
	"github.com/wahidkadwaikar/sync-storage/types"
)

const timeWire = time.RFC3339Nano

// errorBody is the wire shape of every failure response.
type errorBody struct {
	Error  errorDetail `json:"error"`
	Status int         `json:"status"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindUnauthorized:
		return http.StatusUnauthorized
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindPrecondition:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps an error to its HTTP shape. Internal errors are logged
// with full detail but only expose the sanitised public message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Header.Get(requestIDHeader),
			"error", err)
	}
	writeJSON(w, status, errorBody{
		Error:  errorDetail{Code: errors.Code(err), Message: errors.PublicMessage(err)},
		Status: status,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// setItemHeaders attaches the concurrency and expiry headers for an item.
func setItemHeaders(w http.ResponseWriter, item *types.StoredItem) {
	w.Header().Set("ETag", item.ETag)
	if item.ExpiresAt != nil {
		w.Header().Set("X-Expires-At", item.ExpiresAt.UTC().Format(timeWire))
	}
}

// metadataOf strips the value from an item for metadata-only responses.
func metadataOf(item *types.StoredItem) types.StoredItem {
	meta := *item
	meta.Value = nil
	return meta
}
