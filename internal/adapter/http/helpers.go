package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/Conductor/internal/domain"
	"github.com/Strob0t/Conductor/internal/domain/negotiation"
	"github.com/Strob0t/Conductor/internal/logger"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// readJSON decodes the request body into T. On failure it has already
// answered the client.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	err := json.NewDecoder(r.Body).Decode(&v)
	if err == nil {
		return v, true
	}

	var tooLarge *http.MaxBytesError
	var syntax *json.SyntaxError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.As(err, &syntax):
		writeError(w, http.StatusBadRequest, "invalid request body")
	default:
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	return v, false
}

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

func requireField(w http.ResponseWriter, value, fieldName string) bool {
	if strings.TrimSpace(value) != "" {
		return true
	}
	writeError(w, http.StatusBadRequest, fieldName+" is required")
	return false
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// domainStatus maps sentinel errors to responses, first match wins.
// An empty message means the error text itself is returned.
var domainStatus = []struct {
	target  error
	status  int
	message string
}{
	{negotiation.ErrPairNotAllowed, http.StatusForbidden, "negotiation pair is not allowed"},
	{negotiation.ErrTooManyActive, http.StatusTooManyRequests, "too many active negotiations"},
	{negotiation.ErrInvalidTransition, http.StatusConflict, ""},
	{domain.ErrConflict, http.StatusConflict, "resource was modified by another request"},
}

// writeDomainError answers with the status the error's sentinel maps to.
// notFoundMsg is used for domain.ErrNotFound.
func writeDomainError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, notFoundMsg)
		return
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": "))
		return
	}
	for _, m := range domainStatus {
		if !errors.Is(err, m.target) {
			continue
		}
		msg := m.message
		if msg == "" {
			msg = err.Error()
		}
		writeError(w, m.status, msg)
		return
	}
	slog.Error("unhandled domain error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// writeInternalError logs err with the request id and hides it from the client.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("request failed", "error", err, "path", r.URL.Path, "request_id", logger.RequestID(r.Context()))
	writeError(w, http.StatusInternalServerError, "internal server error")
}
