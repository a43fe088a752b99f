package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/homecore/internal/automation"
	"github.com/nerrad567/homecore/internal/bridge"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeInternal    = "internal_error"
	ErrCodeValidation  = "validation_error"
	ErrCodeBadGateway  = "bad_gateway"
	ErrCodeUnavailable = "service_unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// domainErrors maps bridge and engine sentinels to HTTP responses. The first
// match wins.
var domainErrors = []struct {
	target error
	status int
	code   string
}{
	{automation.ErrValidation, http.StatusBadRequest, ErrCodeValidation},
	{automation.ErrDuplicateID, http.StatusConflict, ErrCodeConflict},
	{automation.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
	{bridge.ErrTransport, http.StatusBadGateway, ErrCodeBadGateway},
}

// statusForError returns the response status and code for err, or 500.
func statusForError(err error) (int, string) {
	for _, m := range domainErrors {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

// writeDomainError writes err with its mapped status. message replaces the
// error text when non-empty.
func writeDomainError(w http.ResponseWriter, err error, message string) {
	status, code := statusForError(err)
	if message == "" {
		message = err.Error()
	}
	writeError(w, status, code, message)
}
