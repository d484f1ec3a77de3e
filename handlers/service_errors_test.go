package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/farbook/far-chat/services"
	"github.com/farbook/far-chat/utils"
)

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"missing conversation", services.ErrConversationNotFound, http.StatusNotFound, "not_found"},
		{"missing message", services.ErrMessageNotFound, http.StatusNotFound, "not_found"},
		{"invalid input", services.ErrInvalidInput, http.StatusBadRequest, "bad_request"},
		{"empty question", services.ErrEmptyQuestion, http.StatusBadRequest, "bad_request"},
		{"conversation over limit", services.ErrRateLimitExceeded, http.StatusTooManyRequests, "rate_limit_exceeded"},
		{"embedding provider down", services.ErrEmbeddingUnavailable, http.StatusBadGateway, "bad_gateway"},
		{"vector index down", services.ErrRetrievalUnavailable, http.StatusBadGateway, "bad_gateway"},
		{"generation provider down", services.ErrGenerationUnavailable, http.StatusBadGateway, "bad_gateway"},
		{"internal failure", services.ErrInternal, http.StatusInternalServerError, "internal_error"},
		{"unclassified error", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			HandleServiceError(w, tt.err, logger)

			assert.Equal(t, tt.wantStatus, w.Code)

			var resp utils.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.wantCode, resp.Error)
		})
	}

	t.Run("nil error writes nothing", func(t *testing.T) {
		w := httptest.NewRecorder()

		HandleServiceError(w, nil, logger)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("rate limit details reach the body", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := services.NewDomainError(services.ErrorTypeRateLimit, "slow down", nil).
			WithDetail("retry_after_minutes", 7)

		HandleServiceError(w, err, logger)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)

		var resp utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, float64(7), resp.Details["retry_after_minutes"])
	})

	t.Run("internal cause never reaches the body", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := services.WrapInternal("failed to save message", errors.New("pq: connection reset"))

		HandleServiceError(w, err, logger)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "pq: connection reset")
	})
}

func TestHandleValidationError(t *testing.T) {
	logger := zap.NewNop()

	t.Run("field errors become details", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := &utils.ValidationError{
			Message: "Validation failed",
			Fields: map[string]string{
				"Content": "Content is required",
			},
		}

		HandleValidationError(w, err, logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "Validation failed", resp.Message)
		assert.Equal(t, "Content is required", resp.Details["Content"])
	})

	t.Run("plain error becomes the message", func(t *testing.T) {
		w := httptest.NewRecorder()

		HandleValidationError(w, errors.New("unexpected field"), logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "unexpected field", resp.Message)
	})
}
