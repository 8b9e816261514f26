package devserver_test

import (
	"context"
	"testing"
	"time"

	"uniqsocial/client/internal/clock"
	"uniqsocial/client/internal/devserver"
	"uniqsocial/client/internal/models"
	"uniqsocial/client/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSessions(t *testing.T, store *storage.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SaveSession(ctx, &models.ChatSession{SessionID: "live", User1ID: "ann", User2ID: "bob", MatchDate: "2026-10-17", Status: models.SessionActive}))
	require.NoError(t, store.SaveSession(ctx, &models.ChatSession{SessionID: "done", User1ID: "cat", User2ID: "dan", MatchDate: "2026-10-17", Status: models.SessionEndedByUser}))
}

func sessionStatus(store *storage.MemoryStore, id string) models.SessionStatus {
	session, err := store.SessionByID(context.Background(), id)
	if err != nil {
		return ""
	}
	return session.Status
}

func runScheduler(t *testing.T, store *storage.MemoryStore, clk *clock.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := devserver.NewHub(store, nil)
	go hub.Run(ctx)
	go devserver.NewScheduler(store, hub, clk).Run(ctx)
	clk.WaitForTimers(1)
}

func TestScheduler_EndsActiveSessionsAtMidnight(t *testing.T) {
	// Arrange
	store := storage.NewMemoryStore()
	seedSessions(t, store)
	clk := clock.Fake(time.Date(2026, 10, 17, 23, 59, 30, 0, time.Local))
	runScheduler(t, store, clk)

	// Act
	clk.Advance(time.Minute)

	// Assert
	require.Eventually(t, func() bool {
		return sessionStatus(store, "live") == models.SessionEndedBySystem
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.SessionEndedByUser, sessionStatus(store, "done"), "already ended sessions keep their status")

	session, err := store.SessionByID(context.Background(), "live")
	require.NoError(t, err)
	require.NotNil(t, session.EndedAt)
}

func TestScheduler_LeavesSessionsAloneDuringTheDay(t *testing.T) {
	store := storage.NewMemoryStore()
	seedSessions(t, store)
	clk := clock.Fake(time.Date(2026, 10, 17, 21, 0, 30, 0, time.Local))
	runScheduler(t, store, clk)

	clk.Advance(time.Minute)

	assert.Never(t, func() bool {
		return sessionStatus(store, "live") != models.SessionActive
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func TestScheduler_EndActiveSessions(t *testing.T) {
	store := storage.NewMemoryStore()
	seedSessions(t, store)
	sched := devserver.NewScheduler(store, nil, nil)
	at := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	n, err := sched.EndActiveSessions(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = sched.EndActiveSessions(context.Background(), at)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is left to end")
}
