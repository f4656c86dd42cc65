package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/confman/internal/model"
)

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind model.Kind
		want int
	}{
		{model.KindUnauthenticated, http.StatusUnauthorized},
		{model.KindForbidden, http.StatusForbidden},
		{model.KindNotFound, http.StatusNotFound},
		{model.KindValidation, http.StatusBadRequest},
		{model.KindConflict, http.StatusConflict},
		{model.KindUnavailable, http.StatusServiceUnavailable},
		{model.KindRateLimited, http.StatusTooManyRequests},
		{model.KindInternal, http.StatusInternalServerError},
		{model.Kind("UNKNOWN"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusForKind(tt.kind); got != tt.want {
			t.Errorf("StatusForKind(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestWriteAPIError_ValidationIncludesFields(t *testing.T) {
	w := httptest.NewRecorder()
	WriteAPIError(w, model.NewValidationError(map[string]string{"title": "必須項目です"}))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeValidationFailed || body.Kind != string(model.KindValidation) {
		t.Errorf("body = %+v", body)
	}
	if body.Fields["title"] == "" {
		t.Errorf("fields = %v, want title entry", body.Fields)
	}
	if body.Retryable {
		t.Error("validation errors must not be retryable")
	}
}

func TestWriteAPIError_WrappedConflict(t *testing.T) {
	w := httptest.NewRecorder()
	err := fmt.Errorf("approve: %w", model.NewInvalidTransitionError("c-1", "approve"))
	WriteAPIError(w, err)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	var body ErrorResponseBody
	json.NewDecoder(w.Body).Decode(&body)
	if !body.Retryable {
		t.Error("conflict should be retryable")
	}
	if w.Header().Get("Retry-After") != "" {
		t.Error("Retry-After is only set for 503 and 429")
	}
}

func TestWriteAPIError_UnavailableSetsRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	WriteAPIError(w, model.NewUnavailableError("データストア"))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestWriteAPIError_PlainErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteAPIError(w, fmt.Errorf("list: %w", context.DeadlineExceeded))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("deadline: status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	w = httptest.NewRecorder()
	WriteAPIError(w, errors.New("pq: relation does not exist"))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("plain: status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var body ErrorResponseBody
	json.NewDecoder(w.Body).Decode(&body)
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
	if body.Message == "pq: relation does not exist" {
		t.Error("internal error details must not be exposed")
	}
}
