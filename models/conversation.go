package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation represents a chat thread over the regulation corpus
type Conversation struct {
	ID        uuid.UUID              `json:"id" db:"id"`
	Origin    string                 `json:"origin,omitempty" db:"origin"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Conversation model
func (Conversation) TableName() string {
	return "conversations"
}

// NewConversation creates a new Conversation instance
func NewConversation(origin string, metadata map[string]interface{}) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        uuid.New(),
		Origin:    origin,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
