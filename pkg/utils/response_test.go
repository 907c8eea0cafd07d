package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"vendfleet-backend/internal/apperr"
)

func TestAppError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"not found", apperr.NotFound("material request %s not found", "x"), http.StatusNotFound, "NOT_FOUND", "material request x not found"},
		{"transition", apperr.InvalidTransition("cannot approve"), http.StatusConflict, "INVALID_TRANSITION", "cannot approve"},
		{"conflict", apperr.Conflict("stale"), http.StatusConflict, "CONFLICT", "stale"},
		{"validation", apperr.Validation("amount must be positive"), http.StatusUnprocessableEntity, "VALIDATION_FAILED", "amount must be positive"},
		{"internal", errors.New("pq: connection reset"), http.StatusInternalServerError, "INTERNAL", "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			AppError(rec, tt.err)
			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, rec.Code)
			}
			var body struct {
				Error ErrorBody `json:"error"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Code != tt.code || body.Error.Message != tt.message {
				t.Errorf("Expected %s/%q, got %s/%q", tt.code, tt.message, body.Error.Code, body.Error.Message)
			}
		})
	}
}
