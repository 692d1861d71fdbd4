package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Strob0t/Conductor/internal/domain"
	"github.com/Strob0t/Conductor/internal/domain/negotiation"
)

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", fmt.Errorf("get: %w", domain.ErrNotFound), http.StatusNotFound},
		{"conflict", domain.ErrConflict, http.StatusConflict},
		{"validation", fmt.Errorf("%w: assigned_to is required", domain.ErrValidation), http.StatusBadRequest},
		{"pair", fmt.Errorf("a -> b: %w", negotiation.ErrPairNotAllowed), http.StatusForbidden},
		{"too many", negotiation.ErrTooManyActive, http.StatusTooManyRequests},
		{"transition", negotiation.ErrInvalidTransition, http.StatusConflict},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeDomainError(rec, tt.err, "thing not found")
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rec.Code)
			}
		})
	}
}

func TestWriteDomainErrorValidationMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, fmt.Errorf("%w: assigned_to is required", domain.ErrValidation), "")

	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "assigned_to is required" {
		t.Fatalf("unexpected message %q", body.Error)
	}
}

func TestReadJSONTooLarge(t *testing.T) {
	big := `{"x":"` + strings.Repeat("a", maxRequestBodySize) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	rec := httptest.NewRecorder()

	if _, ok := readJSON[map[string]string](rec, req); ok {
		t.Fatal("expected oversized body to be rejected")
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=7&bad=x", http.NoBody)
	if n, ok := queryInt(req, "limit", 1); !ok || n != 7 {
		t.Fatalf("expected 7, got %d %v", n, ok)
	}
	if n, ok := queryInt(req, "missing", 3); !ok || n != 3 {
		t.Fatalf("expected default 3, got %d %v", n, ok)
	}
	if _, ok := queryInt(req, "bad", 1); ok {
		t.Fatal("expected parse failure")
	}
}
