package engine_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"uniqsocial/client/internal/chat"
	"uniqsocial/client/internal/clock"
	"uniqsocial/client/internal/config"
	"uniqsocial/client/internal/credentials"
	"uniqsocial/client/internal/devserver"
	"uniqsocial/client/internal/engine"
	"uniqsocial/client/internal/models"
	"uniqsocial/client/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) config.Client {
	t.Helper()
	cfg, _ := startServerWithScheduler(t)
	return cfg
}

func startServerWithScheduler(t *testing.T) (config.Client, *devserver.Scheduler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := storage.NewMemoryStore()
	hub := devserver.NewHub(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	h := devserver.NewHandler(store, devserver.NewTokenService("engine-secret", time.Hour, time.Hour), hub, devserver.NewMatcher(store))
	srv := httptest.NewServer(h.Router())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	cfg := config.Client{
		APIURL:      srv.URL,
		WSURL:       "ws" + strings.TrimPrefix(srv.URL, "http"),
		HTTPTimeout: 5 * time.Second,
	}
	return cfg, devserver.NewScheduler(store, hub, nil)
}

func evening() *clock.FakeClock {
	return clock.Fake(time.Date(2026, 10, 17, 21, 0, 0, 0, time.Local))
}

func newEngine(t *testing.T, cfg config.Client, clk clock.Clock) *engine.Engine {
	t.Helper()
	e := engine.New(cfg, credentials.NewMemoryTokenStore(), clk)
	t.Cleanup(e.Close)
	return e
}

func TestFind_RequiresSignInAndOpenWindow(t *testing.T) {
	cfg := startServer(t)
	ctx := context.Background()

	afternoon := clock.Fake(time.Date(2026, 10, 17, 15, 0, 0, 0, time.Local))
	e := newEngine(t, cfg, afternoon)
	assert.ErrorIs(t, e.Find(ctx), engine.ErrNotSignedIn)

	_, err := e.Signup(ctx, "ann@example.com", "password1", "ann")
	require.NoError(t, err)
	assert.ErrorIs(t, e.Find(ctx), engine.ErrWindowClosed)
	assert.Equal(t, models.StatusIdle, e.Match.Snapshot().Status, "the server was not asked")
	assert.Equal(t, "05:00:00", e.Window().Countdown())
}

func TestRestore_WithoutCredentials(t *testing.T) {
	cfg := startServer(t)
	e := newEngine(t, cfg, evening())

	_, err := e.Restore(context.Background())

	assert.ErrorIs(t, err, engine.ErrNotSignedIn)
}

func TestFindJoinAndEnd(t *testing.T) {
	cfg := startServer(t)
	ctx := context.Background()
	ann := newEngine(t, cfg, evening())
	bob := newEngine(t, cfg, evening())

	annProfile, err := ann.Signup(ctx, "ann@example.com", "password1", "ann")
	require.NoError(t, err)
	assert.Equal(t, annProfile.ID, ann.SelfID())
	_, err = bob.Signup(ctx, "bob@example.com", "password1", "bob")
	require.NoError(t, err)

	require.NoError(t, ann.Find(ctx))
	assert.Equal(t, models.StatusIdle, ann.Match.Snapshot().Status, "nobody else is waiting")

	require.NoError(t, bob.Find(ctx))
	assert.Equal(t, models.StatusChatting, bob.Match.Snapshot().Status)

	// ann comes back, as after a restart
	_, err = ann.Restore(ctx)
	require.NoError(t, err)
	require.Equal(t, models.StatusMatched, ann.Match.Snapshot().Status)
	require.NoError(t, ann.Join(ctx))
	assert.Equal(t, models.StatusChatting, ann.Match.Snapshot().Status)

	ended := make(chan struct{}, 1)
	ann.Chat.Subscribe(func(ev chat.Event) {
		if ev.Kind == chat.SessionEnded {
			ended <- struct{}{}
		}
	})

	require.Eventually(t, func() bool {
		bob.Chat.SendTyping()
		return ann.Chat.Snapshot().PartnerTyping
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, bob.End(ctx))
	assert.Equal(t, models.StatusEnded, bob.Match.Snapshot().Status)

	select {
	case <-ended:
	case <-time.After(3 * time.Second):
		t.Fatal("ann never saw the end")
	}
	assert.Equal(t, models.StatusEnded, ann.Match.Snapshot().Status, "the end reaches the match lifecycle")

	// a second find returns today's ended session and does not reconnect
	require.NoError(t, ann.Find(ctx))
	assert.Equal(t, models.StatusEnded, ann.Match.Snapshot().Status)

	require.NoError(t, ann.Logout(ctx))
	assert.Empty(t, ann.SelfID())
	_, err = ann.Restore(ctx)
	assert.ErrorIs(t, err, engine.ErrNotSignedIn)
}

func TestUpdateLocation_FailureKeepsPreviousLocation(t *testing.T) {
	cfg := startServer(t)
	ctx := context.Background()
	e := newEngine(t, cfg, evening())

	kyiv := models.LocationUpdate{Latitude: 50.45, Longitude: 30.52, City: "Kyiv", Timezone: "Europe/Kyiv"}
	assert.ErrorIs(t, e.UpdateLocation(ctx, kyiv), engine.ErrNotSignedIn)
	_, ok := e.Location()
	assert.False(t, ok)

	_, err := e.Signup(ctx, "ann@example.com", "password1", "ann")
	require.NoError(t, err)
	require.NoError(t, e.UpdateLocation(ctx, kyiv))

	// Act
	err = e.UpdateLocation(ctx, models.LocationUpdate{Latitude: 123, Longitude: 0, City: "Nowhere"})

	// Assert
	require.Error(t, err)
	got, ok := e.Location()
	require.True(t, ok)
	assert.Equal(t, kyiv, got)
	me, err := e.API.Me(ctx)
	require.NoError(t, err)
	require.NotNil(t, me.City)
	assert.Equal(t, "Kyiv", *me.City)
}

func TestSystemEndAtMidnight(t *testing.T) {
	cfg, sched := startServerWithScheduler(t)
	ctx := context.Background()
	ann := newEngine(t, cfg, evening())
	bob := newEngine(t, cfg, evening())

	_, err := ann.Signup(ctx, "ann@example.com", "password1", "ann")
	require.NoError(t, err)
	_, err = bob.Signup(ctx, "bob@example.com", "password1", "bob")
	require.NoError(t, err)
	require.NoError(t, ann.Find(ctx))
	require.NoError(t, bob.Find(ctx))
	_, err = ann.Restore(ctx)
	require.NoError(t, err)
	require.NoError(t, ann.Join(ctx))

	ended := make(chan string, 2)
	for name, e := range map[string]*engine.Engine{"ann": ann, "bob": bob} {
		e.Chat.Subscribe(func(ev chat.Event) {
			if ev.Kind == chat.SessionEnded {
				ended <- name
			}
		})
	}

	// both sockets are in the room
	require.Eventually(t, func() bool {
		bob.Chat.SendTyping()
		return ann.Chat.Snapshot().PartnerTyping
	}, 3*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		ann.Chat.SendTyping()
		return bob.Chat.Snapshot().PartnerTyping
	}, 3*time.Second, 20*time.Millisecond)

	// Act
	n, err := sched.EndActiveSessions(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Assert
	for i := 0; i < 2; i++ {
		select {
		case <-ended:
		case <-time.After(3 * time.Second):
			t.Fatal("the system end did not reach both participants")
		}
	}
	assert.Equal(t, models.StatusEnded, ann.Match.Snapshot().Status)
	assert.Equal(t, models.StatusEnded, bob.Match.Snapshot().Status)

	ann.Match.CheckTodayMatch(ctx)
	snap := ann.Match.Snapshot()
	assert.Equal(t, models.StatusEnded, snap.Status)
	require.NotNil(t, snap.Match)
	assert.Equal(t, models.SessionEndedBySystem, snap.Match.Status)
}
