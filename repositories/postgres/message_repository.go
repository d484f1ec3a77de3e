package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/farbook/far-chat/models"
	"github.com/farbook/far-chat/repositories"
)

const messageColumns = `id, conversation_id, role, content, selected_text, sources, token_count, processing_time_ms, created_at`

// MessageRepository implements the repositories.MessageRepository interface
type MessageRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *DB, logger *zap.Logger) repositories.MessageRepository {
	return &MessageRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new message
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	sources, err := marshalSources(message.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal message sources: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		message.ID,
		message.ConversationID,
		message.Role,
		message.Content,
		message.SelectedText,
		sources,
		message.TokenCount,
		message.ProcessingTimeMs,
		message.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	r.logger.Debug("message created",
		zap.String("id", message.ID.String()),
		zap.String("conversation_id", message.ConversationID.String()),
		zap.String("role", string(message.Role)))
	return nil
}

// GetByID retrieves a message by ID
func (r *MessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE id = $1
	`

	message, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("message %s: %w", id, sql.ErrNoRows)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return message, nil
}

// ListByConversation retrieves messages in chronological order, up to limit
// when limit > 0
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`

	args := []interface{}{conversationID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// ListRecent retrieves the most recent messages in chronological order. A
// non-nil before restricts the window to messages created strictly earlier
// than that instant.
func (r *MessageRepository) ListRecent(ctx context.Context, conversationID uuid.UUID, limit int, before *time.Time) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
	`

	args := []interface{}{conversationID}
	if before != nil {
		query += ` AND created_at < $2`
		args = append(args, *before)
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	defer rows.Close()

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	// Rows arrive newest first; reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// LastUserMessageBefore retrieves the most recent user message created
// strictly before the given instant
func (r *MessageRepository) LastUserMessageBefore(ctx context.Context, conversationID uuid.UUID, before time.Time) (*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		  AND role = 'user'
		  AND created_at < $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	message, err := scanMessage(r.db.QueryRowContext(ctx, query, conversationID, before))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user message before %s: %w", before.Format(time.RFC3339Nano), sql.ErrNoRows)
		}
		return nil, fmt.Errorf("failed to get last user message: %w", err)
	}

	return message, nil
}

// Delete deletes a message
func (r *MessageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM messages WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("message %s: %w", id, sql.ErrNoRows)
	}

	r.logger.Debug("message deleted", zap.String("id", id.String()))
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	message := &models.Message{}
	var selectedText sql.NullString
	var sources []byte
	var tokenCount, processingTimeMs sql.NullInt64

	err := row.Scan(
		&message.ID,
		&message.ConversationID,
		&message.Role,
		&message.Content,
		&selectedText,
		&sources,
		&tokenCount,
		&processingTimeMs,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if selectedText.Valid {
		message.SelectedText = &selectedText.String
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &message.Sources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message sources: %w", err)
		}
	}
	if tokenCount.Valid {
		count := int(tokenCount.Int64)
		message.TokenCount = &count
	}
	if processingTimeMs.Valid {
		elapsed := int(processingTimeMs.Int64)
		message.ProcessingTimeMs = &elapsed
	}

	return message, nil
}

func collectMessages(rows *sql.Rows) ([]*models.Message, error) {
	var messages []*models.Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	return messages, nil
}

// marshalSources serializes retrieval sources for JSONB storage. A nil slice
// persists as SQL NULL.
func marshalSources(sources []models.Source) ([]byte, error) {
	if sources == nil {
		return nil, nil
	}
	return json.Marshal(sources)
}
