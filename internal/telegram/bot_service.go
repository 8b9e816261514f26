// Package telegram bridges Telegram chats to client engines: one engine
// per Telegram chat, commands mapped onto engine operations, chat events
// pushed back as bot messages.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"uniqsocial/client/internal/api"
	"uniqsocial/client/internal/chat"
	"uniqsocial/client/internal/engine"
	"uniqsocial/client/internal/localization"
	"uniqsocial/client/internal/models"
	"uniqsocial/client/internal/window"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Messenger is the outbound half of *tgbotapi.BotAPI.
type Messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// EngineFactory builds the engine serving one Telegram chat.
type EngineFactory func(chatID int64) *engine.Engine

type session struct {
	engine *engine.Engine
	lang   string
	unsub  func()
}

// BotService routes Telegram updates to per-chat engines.
type BotService struct {
	Bot       Messenger
	Localizer *localization.Localizer
	NewEngine EngineFactory
	// Language is used when Telegram does not report the user's language.
	Language string

	mu       sync.Mutex
	sessions map[int64]*session
}

func NewBotService(bot Messenger, localizer *localization.Localizer, factory EngineFactory, lang string) *BotService {
	if lang == "" {
		lang = localization.DefaultLanguage
	}
	return &BotService{
		Bot:       bot,
		Localizer: localizer,
		NewEngine: factory,
		Language:  lang,
		sessions:  make(map[int64]*session),
	}
}

// Run handles updates until ctx is done or the channel closes.
func (s *BotService) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			s.HandleUpdate(ctx, update)
		}
	}
}

// Close disconnects every engine.
func (s *BotService) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[int64]*session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.unsub()
		sess.engine.Close()
	}
}

func (s *BotService) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Text == "" {
		return
	}
	chatID := msg.Chat.ID
	lang := s.Language
	if msg.From != nil && msg.From.LanguageCode != "" {
		lang = msg.From.LanguageCode
	}
	sess := s.session(ctx, chatID, lang)

	command, args, ok := parseCommand(msg.Text)
	if !ok {
		s.handleText(chatID, sess, msg.Text)
		return
	}

	switch command {
	case "start", "help":
		s.reply(chatID, sess.lang, "help")
	case "signup":
		if len(args) != 3 {
			s.reply(chatID, sess.lang, "usage_signup")
			return
		}
		profile, err := sess.engine.Signup(ctx, args[0], args[1], args[2])
		s.afterSignIn(ctx, chatID, sess, profile, err)
	case "login":
		if len(args) != 2 {
			s.reply(chatID, sess.lang, "usage_login")
			return
		}
		profile, err := sess.engine.Login(ctx, args[0], args[1])
		s.afterSignIn(ctx, chatID, sess, profile, err)
	case "status":
		s.handleStatus(chatID, sess)
	case "find":
		s.handleFind(ctx, chatID, sess)
	case "end":
		if err := sess.engine.End(ctx); err != nil {
			log.Printf("WARNING: /end from chat %d: %v", chatID, err)
			s.reply(chatID, sess.lang, "end_failed")
		}
		// the chat_ended notice comes from the session event
	case "leave":
		sess.engine.Leave()
		s.reply(chatID, sess.lang, "left")
	case "logout":
		if err := sess.engine.Logout(ctx); err != nil {
			log.Printf("WARNING: logout for chat %d: %v", chatID, err)
		}
		s.reply(chatID, sess.lang, "logged_out")
	default:
		s.reply(chatID, sess.lang, "unknown_command")
	}
}

// session returns the chat's engine, creating it on first contact. A new
// engine tries stored credentials and rejoins today's active match.
func (s *BotService) session(ctx context.Context, chatID int64, lang string) *session {
	s.mu.Lock()
	sess, ok := s.sessions[chatID]
	if ok {
		sess.lang = lang
		s.mu.Unlock()
		return sess
	}
	sess = &session{engine: s.NewEngine(chatID), lang: lang}
	s.sessions[chatID] = sess
	s.mu.Unlock()

	sess.unsub = sess.engine.Chat.Subscribe(func(ev chat.Event) {
		s.push(chatID, sess, ev)
	})

	_, err := sess.engine.Restore(ctx)
	switch {
	case errors.Is(err, engine.ErrNotSignedIn):
	case err != nil:
		log.Printf("WARNING: restoring chat %d: %v", chatID, err)
	default:
		s.rejoin(ctx, chatID, sess)
	}
	return sess
}

func (s *BotService) afterSignIn(ctx context.Context, chatID int64, sess *session, profile models.Profile, err error) {
	if err != nil {
		s.send(chatID, s.Localizer.Format(sess.lang, "auth_failed", reason(err)))
		return
	}
	s.send(chatID, s.Localizer.Format(sess.lang, "logged_in", profile.Username))
	s.rejoin(ctx, chatID, sess)
}

// rejoin reconnects to a match that is still active.
func (s *BotService) rejoin(ctx context.Context, chatID int64, sess *session) {
	if sess.engine.Match.Snapshot().Status != models.StatusMatched {
		return
	}
	if err := sess.engine.Join(ctx); err != nil {
		log.Printf("WARNING: rejoining chat %d: %v", chatID, err)
		return
	}
	s.announceMatch(chatID, sess)
}

func (s *BotService) handleStatus(chatID int64, sess *session) {
	lines := []string{s.windowLine(sess.lang, sess.engine.Window())}

	snap := sess.engine.Match.Snapshot()
	if snap.Match != nil {
		lines = append(lines, s.Localizer.Format(sess.lang, "status_match", snap.Match.PartnerUsername, snap.Status))
	} else {
		lines = append(lines, s.Localizer.GetString(sess.lang, "status_no_match"))
	}
	s.send(chatID, strings.Join(lines, "\n"))
}

func (s *BotService) handleFind(ctx context.Context, chatID int64, sess *session) {
	switch sess.engine.Match.Snapshot().Status {
	case models.StatusChatting:
		s.reply(chatID, sess.lang, "already_matched")
		return
	case models.StatusMatched:
		s.rejoin(ctx, chatID, sess)
		return
	}

	err := sess.engine.Find(ctx)
	switch {
	case errors.Is(err, engine.ErrNotSignedIn):
		s.reply(chatID, sess.lang, "not_logged_in")
		return
	case errors.Is(err, engine.ErrWindowClosed):
		s.send(chatID, s.windowLine(sess.lang, sess.engine.Window()))
		return
	case err != nil:
		log.Printf("WARNING: /find from chat %d: %v", chatID, err)
	}

	snap := sess.engine.Match.Snapshot()
	switch snap.Status {
	case models.StatusChatting:
		s.announceMatch(chatID, sess)
	case models.StatusEnded:
		s.reply(chatID, sess.lang, "match_ended_today")
	default:
		s.send(chatID, s.Localizer.Format(sess.lang, "no_match", snap.Error))
	}
}

func (s *BotService) handleText(chatID int64, sess *session, text string) {
	snap := sess.engine.Chat.Snapshot()
	if snap.SessionID == "" || snap.Ended {
		s.reply(chatID, sess.lang, "not_in_chat")
		return
	}

	_, err := sess.engine.Send(text)
	switch {
	case errors.Is(err, chat.ErrMessageTooLong):
		s.reply(chatID, sess.lang, "message_too_long")
	case errors.Is(err, chat.ErrNoSession):
		s.reply(chatID, sess.lang, "not_in_chat")
	}
}

func (s *BotService) announceMatch(chatID int64, sess *session) {
	s.send(chatID, s.Localizer.Format(sess.lang, "match_found", partnerName(sess.engine)))
}

func (s *BotService) windowLine(lang string, st window.State) string {
	switch st.Phase {
	case window.Open:
		return s.Localizer.GetString(lang, "window_open")
	case window.ClosedPastMidnight:
		return s.Localizer.Format(lang, "window_closed_past_midnight", st.Countdown())
	default:
		return s.Localizer.Format(lang, "window_closed", st.Countdown())
	}
}

func (s *BotService) reply(chatID int64, lang, key string) {
	s.send(chatID, s.Localizer.GetString(lang, key))
}

// parseCommand splits "/cmd@bot a b" into ("cmd", [a b]).
func parseCommand(text string) (string, []string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	command := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(command, '@'); at >= 0 {
		command = command[:at]
	}
	return strings.ToLower(command), fields[1:], true
}

// reason is the server's explanation when there is one.
func reason(err error) string {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return statusErr.Message
	}
	return fmt.Sprint(err)
}
