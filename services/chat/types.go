package chat

import (
	"time"

	"github.com/farbook/far-chat/models"
)

// Config holds the orchestration policy around the pipeline stages
type Config struct {
	// HistoryMessages bounds how many prior messages are handed to the
	// generator for conversational continuity
	HistoryMessages int

	// Embedding call policy
	EmbedTimeout     time.Duration
	EmbedMaxAttempts int
	EmbedRetryDelay  time.Duration
}

// DefaultConfig returns the default orchestration policy
func DefaultConfig() Config {
	return Config{
		HistoryMessages:  6,
		EmbedTimeout:     10 * time.Second,
		EmbedMaxAttempts: 3,
		EmbedRetryDelay:  500 * time.Millisecond,
	}
}

// Result bundles the two messages produced by one question
type Result struct {
	UserMessage      *models.Message `json:"user_message"`
	AssistantMessage *models.Message `json:"assistant_message"`
}

// noContentAnswer is returned without calling the generator when retrieval
// finds nothing and the user highlighted nothing. An honest empty-handed
// answer beats a fabricated one.
const noContentAnswer = "I couldn't find any relevant FAR content to answer that question. " +
	"Try rephrasing it, or ask about a specific FAR section such as 15.203."
