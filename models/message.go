package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid reports whether the role is one of the known roles
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Source is a citation attached to an assistant message. It carries the
// locator metadata of a corpus chunk that contributed to the answer.
type Source struct {
	ChunkID        string  `json:"chunk_id"`
	Chapter        int     `json:"chapter"`
	Section        string  `json:"section"`
	Page           *int    `json:"page,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
	Excerpt        string  `json:"excerpt"`
}

// Message represents a single user or assistant turn in a conversation
type Message struct {
	ID             uuid.UUID `json:"id" db:"id"`
	ConversationID uuid.UUID `json:"conversation_id" db:"conversation_id"`
	Role           Role      `json:"role" db:"role"`
	Content        string    `json:"content" db:"content"`

	// User-side fields
	SelectedText *string `json:"selected_text,omitempty" db:"selected_text"`

	// Assistant-side fields
	Sources          []Source `json:"sources,omitempty" db:"sources"`
	TokenCount       *int     `json:"token_count,omitempty" db:"token_count"`
	ProcessingTimeMs *int     `json:"processing_time_ms,omitempty" db:"processing_time_ms"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Message model
func (Message) TableName() string {
	return "messages"
}

// NewUserMessage creates a user message. selectedText is optional and
// recorded verbatim when present.
func NewUserMessage(conversationID uuid.UUID, content, selectedText string) *Message {
	msg := &Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           RoleUser,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if selectedText != "" {
		msg.SelectedText = &selectedText
	}
	return msg
}

// NewAssistantMessage creates an assistant message carrying the generated
// answer, its citations, and generation metrics. tokenCount and
// processingTimeMs are optional; an answer produced without a generation
// call has no token count.
func NewAssistantMessage(conversationID uuid.UUID, content string, sources []Source, tokenCount, processingTimeMs *int) *Message {
	return &Message{
		ID:               uuid.New(),
		ConversationID:   conversationID,
		Role:             RoleAssistant,
		Content:          content,
		Sources:          sources,
		TokenCount:       tokenCount,
		ProcessingTimeMs: processingTimeMs,
		CreatedAt:        time.Now(),
	}
}
