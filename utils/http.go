package utils

import (
	"encoding/json"
	"net/http"
)

// SuccessResponse is the envelope for every 2xx body.
type SuccessResponse struct {
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ErrorResponse is the envelope for every error body. Error carries a stable
// machine-readable code, Message the human-readable cause.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON encodes data as the response body with the given status.
// A nil payload writes headers only.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteOK responds 200 with data wrapped in the success envelope.
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{Data: data})
}

// WriteCreated responds 201 with data wrapped in the success envelope.
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, SuccessResponse{Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) error {
	return WriteJSON(w, status, ErrorResponse{Error: code, Message: message, Details: details})
}

// WriteBadRequest responds 400 with per-field details when available.
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return writeError(w, http.StatusBadRequest, "bad_request", message, details)
}

// WriteNotFound responds 404.
func WriteNotFound(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Resource not found"
	}
	return writeError(w, http.StatusNotFound, "not_found", message, nil)
}

// WriteTooManyRequests responds 429. Details should tell the caller when to retry.
func WriteTooManyRequests(w http.ResponseWriter, message string, details map[string]interface{}) error {
	if message == "" {
		message = "Rate limit exceeded"
	}
	return writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message, details)
}

// WriteBadGateway responds 502 for upstream failures.
func WriteBadGateway(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return writeError(w, http.StatusBadGateway, "bad_gateway", message, details)
}

// WriteInternalServerError responds 500. Callers pass a scrubbed message,
// never the underlying error text.
func WriteInternalServerError(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Internal server error"
	}
	return writeError(w, http.StatusInternalServerError, "internal_error", message, nil)
}
