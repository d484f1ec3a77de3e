package providers

import (
	"context"
	"errors"
	"net/http"
)

// Message roles understood by chat providers
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ModelProvider is the single upstream the pipeline talks to. One provider
// serves both embedding and generation.
type ModelProvider interface {
	Name() string

	// EmbedText converts text into a dense query vector
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// ChatCompletion generates an answer from the assembled messages
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// ChatRequest carries the messages of one completion call, system
// instruction first.
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Message is one turn in the prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the provider-neutral completion result.
type ChatResponse struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Model        string `json:"model"`
	Usage        Usage  `json:"usage"`
}

// Usage mirrors the token accounting reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderConfig holds the settings shared by provider adapters.
type ProviderConfig struct {
	APIKey  string
	BaseURL string

	EmbeddingModel string
	// EmbeddingDimensions is the expected width of returned vectors
	EmbeddingDimensions int

	ChatModel string
}

// ProviderError classifies an upstream failure. Retryable tells callers
// whether another attempt can possibly succeed.
type ProviderError struct {
	Provider   string
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable reports whether err allows another attempt.
func IsRetryable(err error) bool {
	var provErr *ProviderError
	return errors.As(err, &provErr) && provErr.Retryable
}

// IsRateLimited reports whether err is a provider-side throttling rejection.
func IsRateLimited(err error) bool {
	var provErr *ProviderError
	return errors.As(err, &provErr) && provErr.StatusCode == http.StatusTooManyRequests
}
