package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/farbook/far-chat/services/chat"
	"github.com/farbook/far-chat/utils"
)

// SendMessageRequest is the request body for POST /api/v1/chat/{conversationID}/messages
type SendMessageRequest struct {
	Content      string `json:"content" validate:"required,max=500"`
	SelectedText string `json:"selected_text,omitempty" validate:"omitempty,max=2000"`
}

// ChatService defines the pipeline operations the handler needs
type ChatService interface {
	// Ask answers one question and returns both persisted messages
	Ask(ctx context.Context, conversationID uuid.UUID, content, selectedText string) (*chat.Result, error)

	// Regenerate replaces an assistant message with a fresh answer
	Regenerate(ctx context.Context, conversationID, messageID uuid.UUID) (*chat.Result, error)
}

// ChatHandler handles question answering HTTP requests
type ChatHandler struct {
	service ChatService
	logger  *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(service ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		logger:  logger,
	}
}

// HandleSendMessage handles POST /api/v1/chat/{conversationID}/messages
func (h *ChatHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chimiddleware.GetReqID(ctx)

	conversationID, ok := h.parseID(w, r, "conversationID")
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	h.logger.Debug("processing question",
		zap.String("request_id", requestID),
		zap.String("conversation_id", conversationID.String()),
		zap.Int("content_chars", len(req.Content)))

	result, err := h.service.Ask(ctx, conversationID, req.Content, req.SelectedText)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("question answered",
		zap.String("request_id", requestID),
		zap.String("conversation_id", conversationID.String()),
		zap.Int("sources", len(result.AssistantMessage.Sources)))

	if err := utils.WriteOK(w, result); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// HandleRegenerate handles POST /api/v1/chat/{conversationID}/messages/{messageID}/regenerate
func (h *ChatHandler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chimiddleware.GetReqID(ctx)

	conversationID, ok := h.parseID(w, r, "conversationID")
	if !ok {
		return
	}
	messageID, ok := h.parseID(w, r, "messageID")
	if !ok {
		return
	}

	h.logger.Debug("regenerating answer",
		zap.String("request_id", requestID),
		zap.String("conversation_id", conversationID.String()),
		zap.String("message_id", messageID.String()))

	result, err := h.service.Regenerate(ctx, conversationID, messageID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("answer regenerated",
		zap.String("request_id", requestID),
		zap.String("conversation_id", conversationID.String()),
		zap.String("message_id", result.AssistantMessage.ID.String()))

	if err := utils.WriteOK(w, result); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// parseID extracts and validates a UUID path parameter, writing a 400
// response on failure.
func (h *ChatHandler) parseID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		h.logger.Warn("invalid path parameter",
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.String("param", name),
			zap.String("value", raw))
		_ = utils.WriteBadRequest(w, name+" must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}
