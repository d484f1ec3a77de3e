package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/farbook/far-chat/internal/observability"
	"github.com/farbook/far-chat/models"
	"github.com/farbook/far-chat/services"
	"github.com/farbook/far-chat/services/providers"
)

// systemInstruction constrains the model to the supplied context. The
// empty-context wording must stay in sync with the assembler's placeholder.
const systemInstruction = `You are an expert AI assistant specializing in the Federal Acquisition Regulation (FAR).

Your role is to:
1. Answer questions accurately based on the provided FAR content
2. Cite specific FAR sections when providing information
3. Explain complex procurement regulations in clear, accessible language
4. Acknowledge when information is not in the provided context

Guidelines:
- Only use information from the provided FAR sections
- Always cite section numbers when referencing regulations
- If the context contains any FAR excerpts, you must answer using them.
- Only say that no relevant information exists when the context literally says "No relevant FAR content found."
- Be concise but complete in your explanations
- Use professional but friendly tone`

// Config holds the answer generation policy
type Config struct {
	MaxAnswerTokens int
	Temperature     float64
	Timeout         time.Duration
	MaxAttempts     int
	RetryDelay      time.Duration
}

// DefaultConfig returns the default generation policy
func DefaultConfig() Config {
	return Config{
		MaxAnswerTokens: 1000,
		Temperature:     0.7,
		Timeout:         30 * time.Second,
		MaxAttempts:     3,
		RetryDelay:      time.Second,
	}
}

// Request carries everything the generator needs for one answer
type Request struct {
	Question string
	Context  string
	History  []models.Message
}

// Result is a generated answer
type Result struct {
	AnswerText string
	TokenCount int
	Model      string
}

// GenerationService produces grounded answers through the model provider
type GenerationService struct {
	provider providers.ModelProvider
	cfg      Config
	metrics  *observability.Collector
	logger   *zap.Logger
}

// NewGenerationService creates a new generation service
func NewGenerationService(provider providers.ModelProvider, cfg Config, metrics *observability.Collector, logger *zap.Logger) *GenerationService {
	return &GenerationService{
		provider: provider,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
}

// Generate builds the structured prompt and calls the provider. Provider
// throttling is retried with exponential backoff up to MaxAttempts; any
// other failure is surfaced immediately, so an ambiguous error never incurs
// duplicate generation cost.
func (s *GenerationService) Generate(ctx context.Context, req *Request) (*Result, error) {
	messages := s.buildMessages(req)

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := s.cfg.RetryDelay * time.Duration(1<<(attempt-2))
			s.logger.Debug("retrying generation",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			s.metrics.RecordProviderRetry(observability.StageGenerate)
			time.Sleep(delay)
		}

		genCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		resp, err := s.provider.ChatCompletion(genCtx, &providers.ChatRequest{
			Messages:    messages,
			MaxTokens:   s.cfg.MaxAnswerTokens,
			Temperature: s.cfg.Temperature,
		})
		cancel()
		if err == nil {
			return s.toResult(resp), nil
		}

		lastErr = err
		if !providers.IsRateLimited(err) {
			s.logger.Error("generation failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
			return nil, services.WrapExternal("generation provider unavailable", err)
		}
		s.logger.Warn("generation throttled by provider",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return nil, services.NewDomainError(services.ErrorTypeExternal, "generation provider rate limited", lastErr)
}

// buildMessages lays out the prompt: system instruction, bounded prior
// turns for continuity, then the question wrapped with the assembled
// context.
func (s *GenerationService) buildMessages(req *Request) []providers.Message {
	messages := make([]providers.Message, 0, len(req.History)+2)
	messages = append(messages, providers.Message{
		Role:    providers.RoleSystem,
		Content: systemInstruction,
	})

	for _, m := range req.History {
		role := providers.RoleUser
		if m.Role == models.RoleAssistant {
			role = providers.RoleAssistant
		}
		messages = append(messages, providers.Message{
			Role:    role,
			Content: m.Content,
		})
	}

	parts := []string{
		fmt.Sprintf("Question: %s\n", req.Question),
		fmt.Sprintf("\n===FAR CONTEXT===\n%s\n===END CONTEXT===", req.Context),
	}
	messages = append(messages, providers.Message{
		Role:    providers.RoleUser,
		Content: strings.Join(parts, "\n"),
	})

	return messages
}

func (s *GenerationService) toResult(resp *providers.ChatResponse) *Result {
	tokens := resp.Usage.CompletionTokens
	if tokens == 0 {
		// Some providers omit usage counts; estimate from the text.
		tokens = len(strings.Fields(resp.Content))
	}
	return &Result{
		AnswerText: resp.Content,
		TokenCount: tokens,
		Model:      resp.Model,
	}
}
