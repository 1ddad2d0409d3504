package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorImplementsError(t *testing.T) {
	var _ error = (*AppError)(nil)
}

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeValidationBatchEmpty,
		Message: "cluster_ids must be a non-empty array",
	}

	expected := "validation_batch_empty: cluster_ids must be a non-empty array"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}

	wrapped := NewAppError(ErrCodeInternalDB, "write failed", errors.New("conn reset"))
	if wrapped.Error() != "internal_database_error: write failed: conn reset" {
		t.Errorf("Error() with cause = %q", wrapped.Error())
	}
}

func TestAppErrorErrorsAs(t *testing.T) {
	appErr := NewAppError(ErrCodeUpstreamRateLimited, "overpass throttled", nil)
	wrappedErr := fmt.Errorf("locate: %w", appErr)

	var target *AppError
	if !errors.As(wrappedErr, &target) {
		t.Fatal("errors.As failed to extract AppError")
	}
	if target.Code != ErrCodeUpstreamRateLimited {
		t.Errorf("Code = %q, want %q", target.Code, ErrCodeUpstreamRateLimited)
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidJSON, http.StatusBadRequest},
		{ErrCodeValidationBatchEmpty, http.StatusBadRequest},
		{ErrCodeValidationDuplicateItem, http.StatusBadRequest},
		{ErrCodeValidationInvalidType, http.StatusBadRequest},
		{ErrCodeNotFoundRoute, http.StatusNotFound},
		{ErrCodeUpstreamRateLimited, http.StatusTooManyRequests},
		{ErrCodeUpstreamRoadProvider, http.StatusBadGateway},
		{ErrCodeUpstreamMalformed, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAppErrorWithDetailsDoesNotMutate(t *testing.T) {
	orig := NewAppErrorWithDetails(ErrCodeValidationInvalidBatch, "bad", nil, map[string]any{"a": 1})
	merged := orig.WithDetails(map[string]any{"b": 2})

	if _, ok := orig.Details["b"]; ok {
		t.Error("WithDetails mutated the original error")
	}
	if merged.Details["a"] != 1 || merged.Details["b"] != 2 {
		t.Errorf("merged details = %v", merged.Details)
	}
}

func TestValidationMessages(t *testing.T) {
	err := NewValidationError(ErrCodeValidationInvalidType, "Invalid cluster_ids format",
		[]string{`For cluster_id 7, type must be "OVERRIDE_VALUE" if provided, got "X"`})

	msgs := err.ValidationMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if NewAppError(ErrCodeInternalDB, "x", nil).ValidationMessages() != nil {
		t.Error("expected nil messages for error without details")
	}
}
