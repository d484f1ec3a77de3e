package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/farbook/far-chat/models"
	"github.com/farbook/far-chat/utils"
)

const (
	// defaultMessageLimit bounds GET messages responses when the client
	// does not ask for a specific page size
	defaultMessageLimit = 50

	// maxMessageLimit is the hard ceiling on a requested page size
	maxMessageLimit = 200
)

// CreateConversationRequest is the request body for POST /api/v1/conversations.
// All fields are optional; an empty body opens a blank conversation.
type CreateConversationRequest struct {
	Origin   string                 `json:"origin,omitempty" validate:"omitempty,max=100"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// MessagesResponse is the response body for GET /api/v1/conversations/{id}/messages
type MessagesResponse struct {
	ConversationID uuid.UUID         `json:"conversation_id"`
	Messages       []*models.Message `json:"messages"`
	Count          int               `json:"count"`
}

// ConversationService defines the conversation operations the handler needs
type ConversationService interface {
	// Start opens a new conversation
	Start(ctx context.Context, origin string, metadata map[string]interface{}) (*models.Conversation, error)

	// Get retrieves a conversation by ID
	Get(ctx context.Context, id uuid.UUID) (*models.Conversation, error)

	// ListMessages returns a conversation's messages in chronological order
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error)
}

// ConversationHandler handles conversation-related HTTP requests
type ConversationHandler struct {
	service ConversationService
	logger  *zap.Logger
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(service ConversationService, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: service,
		logger:  logger,
	}
}

// HandleCreateConversation handles POST /api/v1/conversations
func (h *ConversationHandler) HandleCreateConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := chimiddleware.GetReqID(ctx)

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
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

	conversation, err := h.service.Start(ctx, req.Origin, req.Metadata)
	if err != nil {
		h.logger.Error("failed to create conversation",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteCreated(w, conversation); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// HandleGetConversation handles GET /api/v1/conversations/{conversationID}
func (h *ConversationHandler) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conversationID, ok := h.parseConversationID(w, r)
	if !ok {
		return
	}

	conversation, err := h.service.Get(ctx, conversationID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, conversation); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", chimiddleware.GetReqID(ctx)),
			zap.Error(err))
	}
}

// HandleListMessages handles GET /api/v1/conversations/{conversationID}/messages
func (h *ConversationHandler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conversationID, ok := h.parseConversationID(w, r)
	if !ok {
		return
	}

	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			_ = utils.WriteBadRequest(w, "limit must be a positive integer", nil)
			return
		}
		limit = parsed
		if limit > maxMessageLimit {
			limit = maxMessageLimit
		}
	}

	messages, err := h.service.ListMessages(ctx, conversationID, limit)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}

	response := MessagesResponse{
		ConversationID: conversationID,
		Messages:       messages,
		Count:          len(messages),
	}
	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", chimiddleware.GetReqID(ctx)),
			zap.Error(err))
	}
}

// parseConversationID extracts and validates the conversation ID path
// parameter, writing a 400 response on failure.
func (h *ConversationHandler) parseConversationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "conversationID")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.logger.Warn("invalid conversation ID",
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.String("conversation_id", raw))
		_ = utils.WriteBadRequest(w, "conversationID must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}
