package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/farbook/far-chat/internal/observability"
	"github.com/farbook/far-chat/internal/screening"
	"github.com/farbook/far-chat/models"
	"github.com/farbook/far-chat/services"
	"github.com/farbook/far-chat/services/conversation"
	"github.com/farbook/far-chat/services/generation"
	"github.com/farbook/far-chat/services/prompt"
	"github.com/farbook/far-chat/services/providers"
	"github.com/farbook/far-chat/services/ratelimit"
	"github.com/farbook/far-chat/services/retrieval"
)

// ChatService orchestrates the question answering pipeline
type ChatService struct {
	conversations *conversation.ConversationService
	limiter       *ratelimit.RateLimitService
	provider      providers.ModelProvider
	retriever     *retrieval.RetrievalService
	assembler     *prompt.PromptService
	generator     *generation.GenerationService
	metrics       *observability.Collector
	cfg           Config
	logger        *zap.Logger
}

// NewChatService creates a new chat service with all pipeline dependencies
func NewChatService(
	conversations *conversation.ConversationService,
	limiter *ratelimit.RateLimitService,
	provider providers.ModelProvider,
	retriever *retrieval.RetrievalService,
	assembler *prompt.PromptService,
	generator *generation.GenerationService,
	metrics *observability.Collector,
	cfg Config,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		limiter:       limiter,
		provider:      provider,
		retriever:     retriever,
		assembler:     assembler,
		generator:     generator,
		metrics:       metrics,
		cfg:           cfg,
		logger:        logger,
	}
}

// Ask runs one question through the full pipeline: admission, persistence
// of the user message, embedding, retrieval, context assembly, generation,
// and persistence of the answer. It returns the user message together with
// the generated answer.
func (s *ChatService) Ask(ctx context.Context, conversationID uuid.UUID, content, selectedText string) (*Result, error) {
	start := time.Now()

	question := strings.TrimSpace(content)
	if question == "" {
		return nil, services.ErrEmptyQuestion
	}

	s.logger.Info("starting chat pipeline",
		zap.String("conversation_id", conversationID.String()),
		zap.Int("question_chars", len(question)),
		zap.Bool("highlighted", selectedText != ""))

	// Step 1: admission. A rejected question leaves no trace.
	s.logger.Debug("step 1: checking rate limit", zap.String("conversation_id", conversationID.String()))
	if err := s.limiter.CheckAndAdmit(conversationID); err != nil {
		s.metrics.RecordRateLimitRejection()
		s.metrics.RecordChatRequest(observability.OutcomeRejected)
		return nil, err
	}

	// Screening never blocks an admitted question, it only leaves a trail
	if findings := screening.ScanQuestion(question); len(findings) > 0 {
		categories := screening.Categories(findings)
		s.logger.Warn("question matches manipulation patterns",
			zap.String("conversation_id", conversationID.String()),
			zap.Strings("categories", categories),
			zap.Float64("risk_score", screening.RiskScore(findings)),
			zap.String("question", screening.RedactPII(question)))
		for _, category := range categories {
			s.metrics.RecordQuestionFlag(category)
		}
	}

	// A disconnecting caller must not cancel in-flight provider work, so
	// everything past admission runs on a detached context. The request
	// context survives only as the liveness signal read before the answer
	// is persisted.
	workCtx := context.WithoutCancel(ctx)

	// Step 2: the conversation must exist
	s.logger.Debug("step 2: loading conversation", zap.String("conversation_id", conversationID.String()))
	if _, err := s.conversations.Get(workCtx, conversationID); err != nil {
		return nil, err
	}

	// Step 3: load prior turns before the question is persisted, so the
	// history handed to the generator never contains the question itself
	s.logger.Debug("step 3: loading history", zap.String("conversation_id", conversationID.String()))
	history, err := s.conversations.History(workCtx, conversationID, s.cfg.HistoryMessages, nil)
	if err != nil {
		s.metrics.RecordChatRequest(observability.OutcomeFailed)
		return nil, err
	}

	// Step 4: persist the user message. If this fails the pipeline aborts
	// now, before any generation cost is spent on an unrecorded question.
	s.logger.Debug("step 4: persisting user message", zap.String("conversation_id", conversationID.String()))
	userMessage := models.NewUserMessage(conversationID, question, selectedText)
	if err := s.conversations.SaveMessage(workCtx, userMessage); err != nil {
		s.metrics.RecordChatRequest(observability.OutcomeFailed)
		return nil, err
	}

	// Step 5: the answer pipeline
	s.logger.Debug("step 5: running answer pipeline", zap.String("conversation_id", conversationID.String()))
	assistantMessage, outcome, err := s.runPipeline(workCtx, conversationID, question, selectedText, history, start)
	if err != nil {
		s.metrics.RecordChatRequest(observability.OutcomeFailed)
		return nil, err
	}

	// A caller that disconnected while the answer was being produced gets
	// nothing committed past the user message. The completed provider work
	// is not rolled back, its result is simply dropped.
	if ctx.Err() != nil {
		s.metrics.RecordChatRequest(observability.OutcomeDiscarded)
		s.logger.Warn("caller disconnected, generated answer discarded",
			zap.String("conversation_id", conversationID.String()))
		return &Result{UserMessage: userMessage, AssistantMessage: assistantMessage}, nil
	}

	// Step 6: persist the answer. Generation already succeeded, so a
	// persistence failure is logged for out-of-band repair and the answer
	// is returned regardless.
	s.logger.Debug("step 6: persisting assistant message", zap.String("conversation_id", conversationID.String()))
	s.persistAssistantMessage(workCtx, assistantMessage)

	s.metrics.RecordChatRequest(outcome)
	s.logger.Info("chat pipeline completed",
		zap.String("conversation_id", conversationID.String()),
		zap.String("outcome", outcome),
		zap.Int("sources", len(assistantMessage.Sources)),
		zap.Int64("latency_ms", time.Since(start).Milliseconds()))

	return &Result{UserMessage: userMessage, AssistantMessage: assistantMessage}, nil
}

// Regenerate replaces an assistant message with a fresh answer to the user
// message that triggered it. The pipeline re-enters at embedding with the
// original question; admission is not re-charged. Exactly one assistant
// message is removed and exactly one appended.
func (s *ChatService) Regenerate(ctx context.Context, conversationID, messageID uuid.UUID) (*Result, error) {
	start := time.Now()

	s.logger.Info("starting regeneration",
		zap.String("conversation_id", conversationID.String()),
		zap.String("message_id", messageID.String()))

	// Same liveness split as Ask: detached work, live disconnect signal.
	workCtx := context.WithoutCancel(ctx)

	// Step 1: the conversation must exist
	s.logger.Debug("step 1: loading conversation", zap.String("conversation_id", conversationID.String()))
	if _, err := s.conversations.Get(workCtx, conversationID); err != nil {
		return nil, err
	}

	// Step 2: the target must be an assistant message of this conversation
	s.logger.Debug("step 2: loading target message", zap.String("message_id", messageID.String()))
	stale, err := s.conversations.GetMessage(workCtx, messageID)
	if err != nil {
		return nil, err
	}
	if stale.ConversationID != conversationID {
		return nil, services.ErrMessageNotFound
	}
	if stale.Role != models.RoleAssistant {
		return nil, services.ErrNotAssistantMessage
	}

	// Step 3: find the user message that triggered the stale answer
	s.logger.Debug("step 3: finding triggering message", zap.String("message_id", messageID.String()))
	userMessage, err := s.conversations.LastUserMessageBefore(workCtx, conversationID, stale.CreatedAt)
	if err != nil {
		return nil, err
	}

	// Step 4: history as it looked when the question was first asked
	s.logger.Debug("step 4: loading history", zap.String("conversation_id", conversationID.String()))
	history, err := s.conversations.History(workCtx, conversationID, s.cfg.HistoryMessages, &userMessage.CreatedAt)
	if err != nil {
		s.metrics.RecordChatRequest(observability.OutcomeFailed)
		return nil, err
	}

	// Step 5: remove the stale answer before producing the new one
	s.logger.Debug("step 5: removing stale answer", zap.String("message_id", messageID.String()))
	if err := s.conversations.DeleteMessage(workCtx, messageID); err != nil {
		s.metrics.RecordChatRequest(observability.OutcomeFailed)
		return nil, err
	}

	selectedText := ""
	if userMessage.SelectedText != nil {
		selectedText = *userMessage.SelectedText
	}

	// Step 6: the answer pipeline, same transitions as a fresh question
	s.logger.Debug("step 6: running answer pipeline", zap.String("conversation_id", conversationID.String()))
	assistantMessage, outcome, err := s.runPipeline(workCtx, conversationID, userMessage.Content, selectedText, history, start)
	if err != nil {
		s.metrics.RecordChatRequest(observability.OutcomeFailed)
		return nil, err
	}

	// The stale answer is already gone; a disconnected caller leaves the
	// turn unanswered rather than committing an answer nobody received.
	if ctx.Err() != nil {
		s.metrics.RecordChatRequest(observability.OutcomeDiscarded)
		s.logger.Warn("caller disconnected, regenerated answer discarded",
			zap.String("conversation_id", conversationID.String()),
			zap.String("message_id", messageID.String()))
		return &Result{UserMessage: userMessage, AssistantMessage: assistantMessage}, nil
	}

	// Step 7: persist the new answer
	s.logger.Debug("step 7: persisting assistant message", zap.String("conversation_id", conversationID.String()))
	s.persistAssistantMessage(workCtx, assistantMessage)

	s.metrics.RecordChatRequest(outcome)
	s.logger.Info("regeneration completed",
		zap.String("conversation_id", conversationID.String()),
		zap.String("outcome", outcome),
		zap.Int64("latency_ms", time.Since(start).Milliseconds()))

	return &Result{UserMessage: userMessage, AssistantMessage: assistantMessage}, nil
}

// runPipeline executes the embedding, retrieval, assembly, and generation
// stages for one question and returns the unsaved assistant message
// together with the outcome label.
func (s *ChatService) runPipeline(ctx context.Context, conversationID uuid.UUID, question, selectedText string, history []*models.Message, start time.Time) (*models.Message, string, error) {
	embedStart := time.Now()
	vector, err := s.embedWithRetry(ctx, question)
	s.metrics.ObserveStage(observability.StageEmbed, time.Since(embedStart))
	if err != nil {
		return nil, "", err
	}

	retrieveStart := time.Now()
	candidates, err := s.retriever.Retrieve(ctx, question, vector)
	s.metrics.ObserveStage(observability.StageRetrieve, time.Since(retrieveStart))
	if err != nil {
		return nil, "", err
	}
	s.logger.Debug("retrieved candidates",
		zap.String("conversation_id", conversationID.String()),
		zap.Int("candidates", len(candidates)))

	// Nothing retrieved and nothing highlighted: answer honestly without
	// spending a generation call.
	if len(candidates) == 0 && selectedText == "" {
		elapsed := int(time.Since(start).Milliseconds())
		message := models.NewAssistantMessage(conversationID, noContentAnswer, []models.Source{}, nil, &elapsed)
		return message, observability.OutcomeNoContent, nil
	}

	assembleStart := time.Now()
	assembled := s.assembler.Assemble(candidates, selectedText)
	s.metrics.ObserveStage(observability.StageAssemble, time.Since(assembleStart))

	generateStart := time.Now()
	result, err := s.generator.Generate(ctx, &generation.Request{
		Question: question,
		Context:  assembled.Context,
		History:  dereference(history),
	})
	s.metrics.ObserveStage(observability.StageGenerate, time.Since(generateStart))
	if err != nil {
		return nil, "", err
	}

	elapsed := int(time.Since(start).Milliseconds())
	tokens := result.TokenCount
	message := models.NewAssistantMessage(conversationID, result.AnswerText, assembled.Sources, &tokens, &elapsed)
	return message, observability.OutcomeAnswered, nil
}

// embedWithRetry turns the question into a query vector, retrying transient
// provider failures with exponential backoff up to EmbedMaxAttempts.
func (s *ChatService) embedWithRetry(ctx context.Context, question string) ([]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.EmbedMaxAttempts; attempt++ {
		if attempt > 1 {
			delay := s.cfg.EmbedRetryDelay * time.Duration(1<<(attempt-2))
			s.logger.Debug("retrying embedding",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			s.metrics.RecordProviderRetry(observability.StageEmbed)
			time.Sleep(delay)
		}

		embedCtx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
		vector, err := s.provider.EmbedText(embedCtx, question)
		cancel()
		if err == nil {
			return vector, nil
		}

		lastErr = err
		s.logger.Warn("embedding failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
		if !providers.IsRetryable(err) {
			break
		}
	}

	return nil, services.WrapExternal("embedding provider unavailable", lastErr)
}

// persistAssistantMessage saves the answer, downgrading a failure to a
// data-consistency warning: the caller still gets the generated answer, the
// stored history is just missing the turn.
func (s *ChatService) persistAssistantMessage(ctx context.Context, message *models.Message) {
	persistStart := time.Now()
	err := s.conversations.SaveMessage(ctx, message)
	s.metrics.ObserveStage(observability.StagePersist, time.Since(persistStart))
	if err != nil {
		s.logger.Warn("assistant message not persisted, returning answer anyway",
			zap.String("conversation_id", message.ConversationID.String()),
			zap.String("message_id", message.ID.String()),
			zap.Error(err))
	}
}

func dereference(messages []*models.Message) []models.Message {
	out := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, *m)
	}
	return out
}
