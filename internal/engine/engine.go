// Package engine assembles one signed-in user's client: credentials, the
// request client, the match and chat controllers, and the window gate.
// Every front end (terminal, admin CLI, Telegram bridge) drives an Engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"uniqsocial/client/internal/api"
	"uniqsocial/client/internal/chat"
	"uniqsocial/client/internal/clock"
	"uniqsocial/client/internal/config"
	"uniqsocial/client/internal/credentials"
	"uniqsocial/client/internal/match"
	"uniqsocial/client/internal/models"
	"uniqsocial/client/internal/realtime"
	"uniqsocial/client/internal/window"
)

var (
	ErrWindowClosed = errors.New("match window is closed")
	ErrNotSignedIn  = errors.New("not signed in")
	ErrNoMatch      = errors.New("no active match")
)

type Engine struct {
	Tokens credentials.TokenStore
	API    *api.Client
	Match  *match.Controller
	Chat   *chat.Controller
	Clock  clock.Clock

	mu       sync.Mutex
	selfID   string
	location *models.LocationUpdate // last location the server accepted
}

// New wires an engine against cfg's endpoints. Nothing is dialled yet.
func New(cfg config.Client, tokens credentials.TokenStore, clk clock.Clock) *Engine {
	client := api.NewClient(cfg.APIURL, tokens, cfg.HTTPTimeout)
	factory := func(sessionID string) chat.Transport {
		return realtime.New(sessionID, realtime.Options{
			BaseURL: cfg.WSURL,
			Tokens:  credentials.AccessTokenSource{Store: tokens},
			Clock:   clk,
		})
	}

	e := &Engine{
		Tokens: tokens,
		API:    client,
		Match:  match.NewController(client),
		Chat:   chat.NewController(client, factory, clk),
		Clock:  clk,
	}
	e.Chat.Subscribe(func(ev chat.Event) {
		if ev.Kind == chat.SessionEnded {
			e.Match.MarkEnded()
		}
	})
	return e
}

// SelfID is the signed-in user's id, "" before Login/Signup/Restore.
func (e *Engine) SelfID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selfID
}

// Location returns the last location the server accepted.
func (e *Engine) Location() (models.LocationUpdate, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.location == nil {
		return models.LocationUpdate{}, false
	}
	return *e.location, true
}

// UpdateLocation reports loc to the server. A failure is logged and
// returned; the previously accepted location stays in place.
func (e *Engine) UpdateLocation(ctx context.Context, loc models.LocationUpdate) error {
	if e.SelfID() == "" {
		return ErrNotSignedIn
	}
	if err := e.API.UpdateLocation(ctx, loc); err != nil {
		log.Printf("WARNING: location update failed: %v", err)
		return err
	}
	e.mu.Lock()
	e.location = &loc
	e.mu.Unlock()
	return nil
}

func (e *Engine) Window() window.State {
	return window.Classify(e.Clock.Now())
}

func (e *Engine) Login(ctx context.Context, email, password string) (models.Profile, error) {
	if _, err := e.API.Login(ctx, email, password); err != nil {
		return models.Profile{}, err
	}
	return e.Restore(ctx)
}

func (e *Engine) Signup(ctx context.Context, email, password, username string) (models.Profile, error) {
	if _, err := e.API.Signup(ctx, email, password, username); err != nil {
		return models.Profile{}, err
	}
	return e.Restore(ctx)
}

// Restore picks up stored credentials: it loads the profile, then
// today's match.
func (e *Engine) Restore(ctx context.Context) (models.Profile, error) {
	tokens, err := e.Tokens.Tokens(ctx)
	if err != nil {
		return models.Profile{}, fmt.Errorf("read credentials: %w", err)
	}
	if tokens.AccessToken == "" {
		return models.Profile{}, ErrNotSignedIn
	}

	me, err := e.API.Me(ctx)
	if err != nil {
		return models.Profile{}, err
	}
	e.mu.Lock()
	e.selfID = me.ID
	e.mu.Unlock()

	e.Match.CheckTodayMatch(ctx)
	return me, nil
}

// Find asks for today's match when the window is open and joins the
// chat if one is found. A response without a match is not an error;
// the reason is in Match.Snapshot().Error.
func (e *Engine) Find(ctx context.Context) error {
	if e.SelfID() == "" {
		return ErrNotSignedIn
	}
	if !e.Window().IsOpen() {
		return ErrWindowClosed
	}
	if err := e.Match.FindMatch(ctx); err != nil {
		return err
	}
	snap := e.Match.Snapshot()
	if snap.Status != models.StatusMatched {
		return nil
	}
	if !snap.Match.IsActive() {
		e.Match.MarkEnded()
		return nil
	}
	return e.Join(ctx)
}

// Join opens the chat for the current match: history first, then the socket.
func (e *Engine) Join(ctx context.Context) error {
	snap := e.Match.Snapshot()
	if snap.Match == nil || !snap.Match.IsActive() {
		return ErrNoMatch
	}
	sessionID := snap.Match.SessionID
	if current := e.Chat.Snapshot().SessionID; current != "" && current != sessionID {
		e.Chat.Reset()
	}

	if err := e.Chat.LoadHistory(ctx, sessionID); err != nil {
		log.Printf("WARNING: history for %s not loaded: %v", sessionID, err)
	}
	if err := e.Chat.Connect(ctx, sessionID, e.SelfID()); err != nil {
		return err
	}
	e.Match.MarkChatting()
	return nil
}

func (e *Engine) Send(content string) (models.ChatMessage, error) {
	return e.Chat.SendMessage(content, e.SelfID())
}

// End ends the current session for both participants.
func (e *Engine) End(ctx context.Context) error {
	sessionID := e.Chat.Snapshot().SessionID
	if sessionID == "" {
		if m := e.Match.Snapshot().Match; m != nil {
			sessionID = m.SessionID
		}
	}
	if sessionID == "" {
		return ErrNoMatch
	}
	if err := e.Chat.EndChat(ctx, sessionID); err != nil {
		return err
	}
	e.Match.MarkEnded()
	return nil
}

// Leave drops the chat and the match locally; the server is not told.
func (e *Engine) Leave() {
	e.Chat.Reset()
	e.Match.Reset()
}

func (e *Engine) Logout(ctx context.Context) error {
	e.Leave()
	e.mu.Lock()
	e.selfID = ""
	e.location = nil
	e.mu.Unlock()
	return e.API.Logout(ctx)
}

// Close releases the socket. The engine can be reused after Join.
func (e *Engine) Close() {
	e.Chat.Disconnect()
}
