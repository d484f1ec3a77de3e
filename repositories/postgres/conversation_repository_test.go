package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/farbook/far-chat/models"
)

func newTestDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return &DB{DB: mockDB, logger: zap.NewNop()}, mock
}

func TestConversationRepository_Create(t *testing.T) {
	t.Run("inserts conversation with origin and metadata", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewConversationRepository(db, zap.NewNop())

		conversation := models.NewConversation("far-reader", map[string]interface{}{"chapter": "5"})

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO conversations")).
			WithArgs(
				conversation.ID,
				nullString("far-reader"),
				[]byte(`{"chapter":"5"}`),
				conversation.CreatedAt,
				conversation.UpdatedAt,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(context.Background(), conversation)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stores empty origin as NULL and nil metadata as empty object", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewConversationRepository(db, zap.NewNop())

		conversation := models.NewConversation("", nil)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO conversations")).
			WithArgs(
				conversation.ID,
				nullString(""),
				[]byte(`{}`),
				conversation.CreatedAt,
				conversation.UpdatedAt,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(context.Background(), conversation)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns error when insert fails", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewConversationRepository(db, zap.NewNop())

		conversation := models.NewConversation("", nil)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO conversations")).
			WillReturnError(sql.ErrConnDone)

		err := repo.Create(context.Background(), conversation)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create conversation")
	})
}

func TestConversationRepository_GetByID(t *testing.T) {
	t.Run("returns conversation with decoded metadata", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewConversationRepository(db, zap.NewNop())

		id := uuid.New()
		now := time.Now().UTC()

		rows := sqlmock.NewRows([]string{"id", "origin", "metadata", "created_at", "updated_at"}).
			AddRow(id.String(), "far-reader", []byte(`{"chapter":"5"}`), now, now)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, origin, metadata, created_at, updated_at")).
			WithArgs(id).
			WillReturnRows(rows)

		conversation, err := repo.GetByID(context.Background(), id)

		require.NoError(t, err)
		assert.Equal(t, id, conversation.ID)
		assert.Equal(t, "far-reader", conversation.Origin)
		assert.Equal(t, map[string]interface{}{"chapter": "5"}, conversation.Metadata)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("handles NULL origin", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewConversationRepository(db, zap.NewNop())

		id := uuid.New()
		now := time.Now().UTC()

		rows := sqlmock.NewRows([]string{"id", "origin", "metadata", "created_at", "updated_at"}).
			AddRow(id.String(), nil, []byte(`{}`), now, now)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, origin, metadata, created_at, updated_at")).
			WithArgs(id).
			WillReturnRows(rows)

		conversation, err := repo.GetByID(context.Background(), id)

		require.NoError(t, err)
		assert.Empty(t, conversation.Origin)
	})

	t.Run("wraps sql.ErrNoRows when conversation is missing", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewConversationRepository(db, zap.NewNop())

		id := uuid.New()

		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, origin, metadata, created_at, updated_at")).
			WithArgs(id).
			WillReturnError(sql.ErrNoRows)

		conversation, err := repo.GetByID(context.Background(), id)

		assert.Nil(t, conversation)
		assert.True(t, errors.Is(err, sql.ErrNoRows))
	})
}

func TestConversationRepository_Touch(t *testing.T) {
	t.Run("updates the timestamp", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewConversationRepository(db, zap.NewNop())

		id := uuid.New()
		at := time.Now().UTC()

		mock.ExpectExec(regexp.QuoteMeta("UPDATE conversations")).
			WithArgs(id, at).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Touch(context.Background(), id, at)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps sql.ErrNoRows when no row is updated", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewConversationRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("UPDATE conversations")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Touch(context.Background(), uuid.New(), time.Now())

		assert.True(t, errors.Is(err, sql.ErrNoRows))
	})
}
