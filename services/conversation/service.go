package conversation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/farbook/far-chat/models"
	"github.com/farbook/far-chat/repositories"
	"github.com/farbook/far-chat/services"
)

// ConversationService handles conversation lifecycle and message history
type ConversationService struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	logger        *zap.Logger
}

// NewConversationService creates a new ConversationService instance
func NewConversationService(repos *repositories.Repositories, logger *zap.Logger) *ConversationService {
	return &ConversationService{
		conversations: repos.Conversations,
		messages:      repos.Messages,
		logger:        logger,
	}
}

// Start creates a new conversation. Origin tags where the conversation was
// opened from; metadata is an opaque client-supplied bag.
func (s *ConversationService) Start(ctx context.Context, origin string, metadata map[string]interface{}) (*models.Conversation, error) {
	conversation := models.NewConversation(origin, metadata)

	if err := s.conversations.Create(ctx, conversation); err != nil {
		return nil, services.WrapInternal("failed to create conversation", err)
	}

	s.logger.Info("conversation started",
		zap.String("conversation_id", conversation.ID.String()),
		zap.String("origin", origin))

	return conversation, nil
}

// Get retrieves a conversation by ID
func (s *ConversationService) Get(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conversation, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.ErrConversationNotFound
		}
		return nil, services.WrapInternal("failed to get conversation", err)
	}
	return conversation, nil
}

// ListMessages returns a conversation's messages in chronological order, up
// to limit when limit > 0. The conversation must exist.
func (s *ConversationService) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error) {
	if _, err := s.Get(ctx, conversationID); err != nil {
		return nil, err
	}

	messages, err := s.messages.ListByConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, services.WrapInternal("failed to list messages", err)
	}
	return messages, nil
}

// History returns the most recent messages in chronological order for use
// as model context. A non-nil before restricts the window to messages
// created strictly earlier than that instant.
func (s *ConversationService) History(ctx context.Context, conversationID uuid.UUID, limit int, before *time.Time) ([]*models.Message, error) {
	messages, err := s.messages.ListRecent(ctx, conversationID, limit, before)
	if err != nil {
		return nil, services.WrapInternal("failed to load history", err)
	}
	return messages, nil
}

// SaveMessage persists a message and bumps the conversation's updated_at.
// A failed bump is logged but does not fail the save: the message is
// already durable and the timestamp only drives recency ordering.
func (s *ConversationService) SaveMessage(ctx context.Context, message *models.Message) error {
	if err := s.messages.Create(ctx, message); err != nil {
		return services.WrapInternal("failed to save message", err)
	}

	if err := s.conversations.Touch(ctx, message.ConversationID, message.CreatedAt); err != nil {
		s.logger.Warn("failed to bump conversation timestamp",
			zap.String("conversation_id", message.ConversationID.String()),
			zap.Error(err))
	}

	return nil
}

// GetMessage retrieves a message by ID
func (s *ConversationService) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	message, err := s.messages.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.ErrMessageNotFound
		}
		return nil, services.WrapInternal("failed to get message", err)
	}
	return message, nil
}

// LastUserMessageBefore returns the most recent user message created
// strictly before the given instant, the question that triggered whatever
// answer followed it.
func (s *ConversationService) LastUserMessageBefore(ctx context.Context, conversationID uuid.UUID, before time.Time) (*models.Message, error) {
	message, err := s.messages.LastUserMessageBefore(ctx, conversationID, before)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.ErrNoTriggeringMessage
		}
		return nil, services.WrapInternal("failed to find triggering message", err)
	}
	return message, nil
}

// DeleteMessage removes a message by ID
func (s *ConversationService) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	if err := s.messages.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return services.ErrMessageNotFound
		}
		return services.WrapInternal("failed to delete message", err)
	}
	return nil
}
