package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/farbook/far-chat/models"
	"github.com/farbook/far-chat/repositories"
	"github.com/farbook/far-chat/services"
)

type fakeConversationRepo struct {
	createFn func(ctx context.Context, c *models.Conversation) error
	getFn    func(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	touchFn  func(ctx context.Context, id uuid.UUID, at time.Time) error

	touchCalls int
}

func (r *fakeConversationRepo) Create(ctx context.Context, c *models.Conversation) error {
	if r.createFn != nil {
		return r.createFn(ctx, c)
	}
	return nil
}

func (r *fakeConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	if r.getFn != nil {
		return r.getFn(ctx, id)
	}
	return models.NewConversation("", nil), nil
}

func (r *fakeConversationRepo) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.touchCalls++
	if r.touchFn != nil {
		return r.touchFn(ctx, id, at)
	}
	return nil
}

type fakeMessageRepo struct {
	createFn     func(ctx context.Context, m *models.Message) error
	getFn        func(ctx context.Context, id uuid.UUID) (*models.Message, error)
	listFn       func(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error)
	listRecentFn func(ctx context.Context, conversationID uuid.UUID, limit int, before *time.Time) ([]*models.Message, error)
	lastUserFn   func(ctx context.Context, conversationID uuid.UUID, before time.Time) (*models.Message, error)
	deleteFn     func(ctx context.Context, id uuid.UUID) error
}

func (r *fakeMessageRepo) Create(ctx context.Context, m *models.Message) error {
	if r.createFn != nil {
		return r.createFn(ctx, m)
	}
	return nil
}

func (r *fakeMessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	if r.getFn != nil {
		return r.getFn(ctx, id)
	}
	return nil, fmt.Errorf("message %s: %w", id, sql.ErrNoRows)
}

func (r *fakeMessageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error) {
	if r.listFn != nil {
		return r.listFn(ctx, conversationID, limit)
	}
	return nil, nil
}

func (r *fakeMessageRepo) ListRecent(ctx context.Context, conversationID uuid.UUID, limit int, before *time.Time) ([]*models.Message, error) {
	if r.listRecentFn != nil {
		return r.listRecentFn(ctx, conversationID, limit, before)
	}
	return nil, nil
}

func (r *fakeMessageRepo) LastUserMessageBefore(ctx context.Context, conversationID uuid.UUID, before time.Time) (*models.Message, error) {
	if r.lastUserFn != nil {
		return r.lastUserFn(ctx, conversationID, before)
	}
	return nil, fmt.Errorf("user message: %w", sql.ErrNoRows)
}

func (r *fakeMessageRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if r.deleteFn != nil {
		return r.deleteFn(ctx, id)
	}
	return nil
}

func newService(conversations *fakeConversationRepo, messages *fakeMessageRepo) *ConversationService {
	return NewConversationService(&repositories.Repositories{
		Conversations: conversations,
		Messages:      messages,
	}, zap.NewNop())
}

func TestConversationService_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a conversation with origin and metadata", func(t *testing.T) {
		var created *models.Conversation
		repo := &fakeConversationRepo{
			createFn: func(_ context.Context, c *models.Conversation) error {
				created = c
				return nil
			},
		}
		svc := newService(repo, &fakeMessageRepo{})

		conv, err := svc.Start(ctx, "far-overlay", map[string]interface{}{"chapter": "5"})

		require.NoError(t, err)
		require.NotNil(t, created)
		assert.Equal(t, conv.ID, created.ID)
		assert.Equal(t, "far-overlay", conv.Origin)
		assert.Equal(t, "5", conv.Metadata["chapter"])
		assert.False(t, conv.CreatedAt.IsZero())
	})

	t.Run("wraps repository failures as internal", func(t *testing.T) {
		repo := &fakeConversationRepo{
			createFn: func(_ context.Context, _ *models.Conversation) error {
				return sql.ErrConnDone
			},
		}
		svc := newService(repo, &fakeMessageRepo{})

		_, err := svc.Start(ctx, "", nil)

		assert.True(t, services.IsInternalError(err))
	})
}

func TestConversationService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("maps a missing row to not found", func(t *testing.T) {
		id := uuid.New()
		repo := &fakeConversationRepo{
			getFn: func(_ context.Context, id uuid.UUID) (*models.Conversation, error) {
				return nil, fmt.Errorf("conversation %s: %w", id, sql.ErrNoRows)
			},
		}
		svc := newService(repo, &fakeMessageRepo{})

		_, err := svc.Get(ctx, id)

		assert.ErrorIs(t, err, services.ErrConversationNotFound)
	})

	t.Run("keeps other failures internal", func(t *testing.T) {
		repo := &fakeConversationRepo{
			getFn: func(_ context.Context, _ uuid.UUID) (*models.Conversation, error) {
				return nil, errors.New("connection refused")
			},
		}
		svc := newService(repo, &fakeMessageRepo{})

		_, err := svc.Get(ctx, uuid.New())

		assert.False(t, services.IsNotFoundError(err))
		assert.True(t, services.IsInternalError(err))
	})
}

func TestConversationService_ListMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("requires the conversation to exist", func(t *testing.T) {
		repo := &fakeConversationRepo{
			getFn: func(_ context.Context, id uuid.UUID) (*models.Conversation, error) {
				return nil, fmt.Errorf("conversation %s: %w", id, sql.ErrNoRows)
			},
		}
		listed := false
		messages := &fakeMessageRepo{
			listFn: func(_ context.Context, _ uuid.UUID, _ int) ([]*models.Message, error) {
				listed = true
				return nil, nil
			},
		}
		svc := newService(repo, messages)

		_, err := svc.ListMessages(ctx, uuid.New(), 50)

		assert.ErrorIs(t, err, services.ErrConversationNotFound)
		assert.False(t, listed)
	})

	t.Run("passes the limit through", func(t *testing.T) {
		var gotLimit int
		messages := &fakeMessageRepo{
			listFn: func(_ context.Context, _ uuid.UUID, limit int) ([]*models.Message, error) {
				gotLimit = limit
				return []*models.Message{}, nil
			},
		}
		svc := newService(&fakeConversationRepo{}, messages)

		_, err := svc.ListMessages(ctx, uuid.New(), 25)

		require.NoError(t, err)
		assert.Equal(t, 25, gotLimit)
	})
}

func TestConversationService_History(t *testing.T) {
	ctx := context.Background()

	t.Run("forwards the cutoff", func(t *testing.T) {
		cutoff := time.Now().Add(-time.Minute)
		var gotBefore *time.Time
		var gotLimit int
		messages := &fakeMessageRepo{
			listRecentFn: func(_ context.Context, _ uuid.UUID, limit int, before *time.Time) ([]*models.Message, error) {
				gotLimit = limit
				gotBefore = before
				return nil, nil
			},
		}
		svc := newService(&fakeConversationRepo{}, messages)

		_, err := svc.History(ctx, uuid.New(), 6, &cutoff)

		require.NoError(t, err)
		assert.Equal(t, 6, gotLimit)
		require.NotNil(t, gotBefore)
		assert.True(t, gotBefore.Equal(cutoff))
	})
}

func TestConversationService_SaveMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("persists and bumps the conversation timestamp", func(t *testing.T) {
		conversationID := uuid.New()
		var touchedAt time.Time
		conversations := &fakeConversationRepo{
			touchFn: func(_ context.Context, id uuid.UUID, at time.Time) error {
				assert.Equal(t, conversationID, id)
				touchedAt = at
				return nil
			},
		}
		svc := newService(conversations, &fakeMessageRepo{})
		message := models.NewUserMessage(conversationID, "question", "")

		err := svc.SaveMessage(ctx, message)

		require.NoError(t, err)
		assert.Equal(t, 1, conversations.touchCalls)
		assert.True(t, touchedAt.Equal(message.CreatedAt))
	})

	t.Run("fails when the message cannot be stored", func(t *testing.T) {
		conversations := &fakeConversationRepo{}
		messages := &fakeMessageRepo{
			createFn: func(_ context.Context, _ *models.Message) error {
				return sql.ErrConnDone
			},
		}
		svc := newService(conversations, messages)

		err := svc.SaveMessage(ctx, models.NewUserMessage(uuid.New(), "question", ""))

		assert.True(t, services.IsInternalError(err))
		assert.Equal(t, 0, conversations.touchCalls)
	})

	t.Run("tolerates a failed timestamp bump", func(t *testing.T) {
		conversations := &fakeConversationRepo{
			touchFn: func(_ context.Context, _ uuid.UUID, _ time.Time) error {
				return sql.ErrConnDone
			},
		}
		svc := newService(conversations, &fakeMessageRepo{})

		err := svc.SaveMessage(ctx, models.NewUserMessage(uuid.New(), "question", ""))

		assert.NoError(t, err)
	})
}

func TestConversationService_GetMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("maps a missing row to not found", func(t *testing.T) {
		svc := newService(&fakeConversationRepo{}, &fakeMessageRepo{})

		_, err := svc.GetMessage(ctx, uuid.New())

		assert.ErrorIs(t, err, services.ErrMessageNotFound)
	})

	t.Run("returns the message", func(t *testing.T) {
		want := models.NewUserMessage(uuid.New(), "question", "")
		messages := &fakeMessageRepo{
			getFn: func(_ context.Context, _ uuid.UUID) (*models.Message, error) {
				return want, nil
			},
		}
		svc := newService(&fakeConversationRepo{}, messages)

		got, err := svc.GetMessage(ctx, want.ID)

		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
	})
}

func TestConversationService_LastUserMessageBefore(t *testing.T) {
	ctx := context.Background()

	t.Run("maps a missing row to the triggering message error", func(t *testing.T) {
		svc := newService(&fakeConversationRepo{}, &fakeMessageRepo{})

		_, err := svc.LastUserMessageBefore(ctx, uuid.New(), time.Now())

		assert.ErrorIs(t, err, services.ErrNoTriggeringMessage)
		assert.True(t, services.IsValidationError(err))
	})
}

func TestConversationService_DeleteMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("maps a missing row to not found", func(t *testing.T) {
		messages := &fakeMessageRepo{
			deleteFn: func(_ context.Context, id uuid.UUID) error {
				return fmt.Errorf("message %s: %w", id, sql.ErrNoRows)
			},
		}
		svc := newService(&fakeConversationRepo{}, messages)

		err := svc.DeleteMessage(ctx, uuid.New())

		assert.ErrorIs(t, err, services.ErrMessageNotFound)
	})

	t.Run("deletes the message", func(t *testing.T) {
		deleted := uuid.Nil
		messages := &fakeMessageRepo{
			deleteFn: func(_ context.Context, id uuid.UUID) error {
				deleted = id
				return nil
			},
		}
		svc := newService(&fakeConversationRepo{}, messages)
		id := uuid.New()

		err := svc.DeleteMessage(ctx, id)

		require.NoError(t, err)
		assert.Equal(t, id, deleted)
	})
}
