package storage_test

import (
	"context"
	"testing"
	"time"

	"uniqsocial/client/internal/models"
	"uniqsocial/client/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Users(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	user := &models.User{Email: "ann@example.com", Username: "ann", PasswordHash: "x"}
	require.NoError(t, store.CreateUser(ctx, user))
	assert.NotEmpty(t, user.ID, "an id is assigned")
	assert.False(t, user.CreatedAt.IsZero())

	err := store.CreateUser(ctx, &models.User{Email: "ann@example.com"})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	byEmail, err := store.UserByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	byID, err := store.UserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ann", byID.Username)

	_, err = store.UserByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStore_SessionForUserPicksLatestOfDay(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	base := time.Date(2026, 10, 17, 20, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveSession(ctx, &models.ChatSession{SessionID: "a", User1ID: "u1", User2ID: "u2", MatchDate: "2026-10-17", Status: models.SessionEndedByUser, StartedAt: base}))
	require.NoError(t, store.SaveSession(ctx, &models.ChatSession{SessionID: "b", User1ID: "u3", User2ID: "u1", MatchDate: "2026-10-17", Status: models.SessionActive, StartedAt: base.Add(time.Hour)}))
	require.NoError(t, store.SaveSession(ctx, &models.ChatSession{SessionID: "c", User1ID: "u1", User2ID: "u4", MatchDate: "2026-10-16", Status: models.SessionActive, StartedAt: base.Add(2 * time.Hour)}))

	got, err := store.SessionForUser(ctx, "u1", "2026-10-17")
	require.NoError(t, err)
	assert.Equal(t, "b", got.SessionID)

	_, err = store.SessionForUser(ctx, "u9", "2026-10-17")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStore_EndSessionOnlyOnce(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.SaveSession(ctx, &models.ChatSession{SessionID: "s", User1ID: "u1", User2ID: "u2", Status: models.SessionActive}))
	at := time.Date(2026, 10, 17, 23, 0, 0, 0, time.UTC)

	require.NoError(t, store.EndSession(ctx, "s", models.SessionEndedByUser, at))
	assert.ErrorIs(t, store.EndSession(ctx, "s", models.SessionEndedByUser, at), storage.ErrNotFound)

	session, err := store.SessionByID(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, models.SessionEndedByUser, session.Status)
	require.NotNil(t, session.EndedAt)
	assert.True(t, at.Equal(*session.EndedAt))
}

func TestMemoryStore_HistoryInOrder(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	base := time.Date(2026, 10, 17, 21, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveMessage(ctx, &models.ChatHistory{SessionID: "s", SenderID: "u2", Content: "second", CreatedAt: base.Add(time.Second)}))
	require.NoError(t, store.SaveMessage(ctx, &models.ChatHistory{SessionID: "s", SenderID: "u1", Content: "first", CreatedAt: base}))
	require.NoError(t, store.SaveMessage(ctx, &models.ChatHistory{SessionID: "other", SenderID: "u1", Content: "elsewhere"}))

	history, err := store.GetChatHistory(ctx, "s")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Content)
	assert.Equal(t, "second", history[1].Content)
	assert.NotEmpty(t, history[0].ID)

	empty, err := store.GetChatHistory(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
