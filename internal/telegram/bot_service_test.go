package telegram_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"uniqsocial/client/internal/clock"
	"uniqsocial/client/internal/config"
	"uniqsocial/client/internal/credentials"
	"uniqsocial/client/internal/devserver"
	"uniqsocial/client/internal/engine"
	"uniqsocial/client/internal/localization"
	"uniqsocial/client/internal/storage"
	"uniqsocial/client/internal/telegram"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	annChat int64 = 1001
	bobChat int64 = 1002
)

type sent struct {
	chatID int64
	text   string
	action string
}

// recordingBot stands in for *tgbotapi.BotAPI.
type recordingBot struct {
	mu   sync.Mutex
	sent []sent
}

func (b *recordingBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		b.sent = append(b.sent, sent{chatID: m.ChatID, text: m.Text})
	case tgbotapi.ChatActionConfig:
		b.sent = append(b.sent, sent{chatID: m.ChatID, action: m.Action})
	}
	return tgbotapi.Message{}, nil
}

func (b *recordingBot) texts(chatID int64) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, s := range b.sent {
		if s.chatID == chatID && s.text != "" {
			out = append(out, s.text)
		}
	}
	return out
}

func (b *recordingBot) last(chatID int64) string {
	texts := b.texts(chatID)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (b *recordingBot) got(chatID int64, text string) bool {
	for _, t := range b.texts(chatID) {
		if t == text {
			return true
		}
	}
	return false
}

func (b *recordingBot) typingTo(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.sent {
		if s.chatID == chatID && s.action == tgbotapi.ChatTyping {
			return true
		}
	}
	return false
}

type harness struct {
	bot     *recordingBot
	service *telegram.BotService
	mu      sync.Mutex
	engines map[int64]*engine.Engine
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := storage.NewMemoryStore()
	hub := devserver.NewHub(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	h := devserver.NewHandler(store, devserver.NewTokenService("bot-secret", time.Hour, time.Hour), hub, devserver.NewMatcher(store))
	srv := httptest.NewServer(h.Router())

	cfg := config.Client{
		APIURL:      srv.URL,
		WSURL:       "ws" + strings.TrimPrefix(srv.URL, "http"),
		HTTPTimeout: 5 * time.Second,
	}
	loc, err := localization.NewLocalizer()
	require.NoError(t, err)

	hs := &harness{bot: &recordingBot{}, engines: map[int64]*engine.Engine{}}
	clk := clock.Fake(now)
	hs.service = telegram.NewBotService(hs.bot, loc, func(chatID int64) *engine.Engine {
		e := engine.New(cfg, credentials.NewMemoryTokenStore(), clk)
		hs.mu.Lock()
		hs.engines[chatID] = e
		hs.mu.Unlock()
		return e
	}, "en")

	t.Cleanup(func() {
		hs.service.Close()
		srv.Close()
		cancel()
	})
	return hs
}

func (h *harness) engine(chatID int64) *engine.Engine {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engines[chatID]
}

func (h *harness) say(chatID int64, text string) {
	h.service.HandleUpdate(context.Background(), tgbotapi.Update{
		Message: &tgbotapi.Message{
			Text: text,
			Chat: tgbotapi.Chat{ID: chatID},
			From: &tgbotapi.User{ID: chatID},
		},
	})
}

func evening() time.Time { return time.Date(2026, 10, 17, 21, 0, 0, 0, time.Local) }

func TestBot_CommandsBeforeSignIn(t *testing.T) {
	h := newHarness(t, evening())

	h.say(annChat, "/help")
	assert.Contains(t, h.bot.last(annChat), "/signup")

	h.say(annChat, "/find")
	assert.Equal(t, "Sign in first with /login or /signup.", h.bot.last(annChat))

	h.say(annChat, "/login ann@example.com")
	assert.Equal(t, "Usage: /login <email> <password>", h.bot.last(annChat))

	h.say(annChat, "/login ann@example.com password1")
	assert.Equal(t, "Sign in failed: invalid email or password", h.bot.last(annChat))

	h.say(annChat, "hello?")
	assert.Equal(t, "You are not in a chat. Use /find.", h.bot.last(annChat))

	h.say(annChat, "/dance")
	assert.Equal(t, "Unknown command. Send /help.", h.bot.last(annChat))
}

func TestBot_WindowClosed(t *testing.T) {
	h := newHarness(t, time.Date(2026, 10, 17, 18, 30, 0, 0, time.Local))
	h.say(annChat, "/signup ann@example.com password1 ann")

	h.say(annChat, "/find")
	assert.Equal(t, "Matches open at 20:00. Time left: 01:30:00", h.bot.last(annChat))

	h.say(annChat, "/status")
	assert.Equal(t, "Matches open at 20:00. Time left: 01:30:00\nNo match yet today.", h.bot.last(annChat))
}

func TestBot_MatchChatAndEnd(t *testing.T) {
	h := newHarness(t, evening())

	h.say(annChat, "/signup ann@example.com password1 ann")
	assert.Equal(t, "Signed in as ann.", h.bot.last(annChat))
	h.say(bobChat, "/signup bob@example.com password1 bob")

	h.say(annChat, "/find")
	assert.Equal(t, "Waiting for a partner, try again in a moment", h.bot.last(annChat))

	h.say(bobChat, "/find")
	assert.Equal(t, "You are matched with ann. Say hi!", h.bot.last(bobChat))

	h.say(annChat, "/find")
	assert.Equal(t, "You are matched with bob. Say hi!", h.bot.last(annChat))

	h.say(annChat, "/find")
	assert.Equal(t, "You already have today's match. Use /status.", h.bot.last(annChat))

	// both sockets are in the room once typing gets through
	require.Eventually(t, func() bool {
		h.engine(annChat).Chat.SendTyping()
		return h.bot.typingTo(bobChat)
	}, 3*time.Second, 20*time.Millisecond)

	h.say(annChat, "hi bob")
	require.Eventually(t, func() bool {
		return h.bot.got(bobChat, "ann: hi bob")
	}, 3*time.Second, 10*time.Millisecond)
	assert.False(t, h.bot.got(annChat, "ann: hi bob"), "own messages are not pushed back")

	h.say(annChat, strings.Repeat("x", 1001))
	assert.Equal(t, "Message is too long (max 1000 characters).", h.bot.last(annChat))

	h.say(bobChat, "/end")
	assert.Equal(t, "The chat has ended.", h.bot.last(bobChat))
	require.Eventually(t, func() bool {
		return h.bot.got(annChat, "The chat has ended.")
	}, 3*time.Second, 10*time.Millisecond)

	h.say(annChat, "are you there?")
	assert.Equal(t, "You are not in a chat. Use /find.", h.bot.last(annChat))

	h.say(annChat, "/status")
	assert.Equal(t, "The match window is open.\nToday's match: bob (ended)", h.bot.last(annChat))

	h.say(annChat, "/leave")
	assert.Equal(t, "You left the chat.", h.bot.last(annChat))
}

func TestBot_UkrainianCopy(t *testing.T) {
	h := newHarness(t, evening())

	h.service.HandleUpdate(context.Background(), tgbotapi.Update{
		Message: &tgbotapi.Message{
			Text: "/find",
			Chat: tgbotapi.Chat{ID: annChat},
			From: &tgbotapi.User{ID: annChat, LanguageCode: "uk"},
		},
	})

	assert.Equal(t, "Спершу увійдіть через /login або /signup.", h.bot.last(annChat))
}
