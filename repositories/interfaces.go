package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/farbook/far-chat/models"
)

// ConversationRepository defines the interface for conversation data access
type ConversationRepository interface {
	// Create inserts a new conversation
	Create(ctx context.Context, conversation *models.Conversation) error

	// GetByID retrieves a conversation by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)

	// Touch bumps a conversation's updated_at timestamp
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
}

// MessageRepository defines the interface for message data access
type MessageRepository interface {
	// Create inserts a new message
	Create(ctx context.Context, message *models.Message) error

	// GetByID retrieves a message by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error)

	// ListByConversation retrieves messages in chronological order, up to
	// limit when limit > 0
	ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error)

	// ListRecent retrieves the most recent messages in chronological order.
	// A non-nil before restricts the window to messages created strictly
	// earlier than that instant.
	ListRecent(ctx context.Context, conversationID uuid.UUID, limit int, before *time.Time) ([]*models.Message, error)

	// LastUserMessageBefore retrieves the most recent user message created
	// strictly before the given instant
	LastUserMessageBefore(ctx context.Context, conversationID uuid.UUID, before time.Time) (*models.Message, error)

	// Delete removes a message by ID
	Delete(ctx context.Context, id uuid.UUID) error
}

// Repositories holds all repository instances
type Repositories struct {
	Conversations ConversationRepository
	Messages      MessageRepository
}
