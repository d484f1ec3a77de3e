package gemini

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/farbook/far-chat/services/providers"
)

// DefaultBaseURL is the OpenAI-compatible surface of the Gemini API.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

const providerName = "gemini"

// Client talks to the Gemini API through its OpenAI-compatible endpoint
type Client struct {
	client *openai.Client
	cfg    providers.ProviderConfig
	logger *zap.Logger
}

var _ providers.ModelProvider = (*Client)(nil)

// NewClient creates a new Gemini provider client
func NewClient(cfg providers.ProviderConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = cfg.BaseURL

	return &Client{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Name returns the provider name
func (c *Client) Name() string {
	return providerName
}

// EmbedText converts a text into a dense query vector using the configured
// embedding model
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(c.cfg.EmbeddingModel),
		Dimensions: c.cfg.EmbeddingDimensions,
	})
	if err != nil {
		return nil, c.wrapError("embedding request failed", err)
	}
	if len(resp.Data) == 0 {
		return nil, providers.NewProviderError(providerName, "empty_response", "embedding response contained no vectors", 0, false, nil)
	}

	c.logger.Debug("embedding created",
		zap.String("model", c.cfg.EmbeddingModel),
		zap.Int("dimensions", len(resp.Data[0].Embedding)),
		zap.Duration("latency", time.Since(start)))

	return resp.Data[0].Embedding, nil
}

// ChatCompletion performs a chat completion using the configured chat model
func (c *Client) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.ChatModel,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, c.wrapError("chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, providers.NewProviderError(providerName, "empty_response", "chat completion contained no choices", 0, false, nil)
	}

	choice := resp.Choices[0]
	c.logger.Debug("chat completion finished",
		zap.String("model", resp.Model),
		zap.String("finish_reason", string(choice.FinishReason)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("latency", time.Since(start)))

	return &providers.ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Model:        resp.Model,
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// wrapError normalizes errors from the underlying client into ProviderError.
// Throttling (429) and server-side failures (5xx) are retryable, as are
// transport-level failures where no response was received.
func (c *Client) wrapError(message string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return providers.NewProviderError(providerName, codeString(apiErr.Code), apiErr.Message,
			apiErr.HTTPStatusCode, isRetryableStatus(apiErr.HTTPStatusCode), err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return providers.NewProviderError(providerName, "request_error", message,
			reqErr.HTTPStatusCode, isRetryableStatus(reqErr.HTTPStatusCode), err)
	}

	return providers.NewProviderError(providerName, "transport_error", message, 0, true, err)
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func codeString(code interface{}) string {
	switch v := code.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}
