// Package realtime owns the bidirectional chat socket for one session:
// connect, typed send/receive, automatic reconnect with exponential
// backoff, and terminal disconnect.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"

	"uniqsocial/client/internal/clock"
	"uniqsocial/client/internal/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

var (
	// ErrAuthenticationMissing means no access token was available to connect with.
	ErrAuthenticationMissing = errors.New("realtime: authentication missing")
	// ErrNotConnected is returned by Send when the event was dropped.
	ErrNotConnected = errors.New("realtime: not connected")
	// ErrClosed is returned by Connect after Disconnect.
	ErrClosed = errors.New("realtime: transport closed")
)

// TokenSource yields the current access token; "" means signed out.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type Options struct {
	// BaseURL is ws(s)://host[:port]; the chat path is appended.
	BaseURL string
	Tokens  TokenSource
	Dialer  Dialer
	Clock   clock.Clock
	// BackOff overrides the reconnect schedule. Defaults to NewBackOff().
	BackOff backoff.BackOff
}

type handlerEntry[T any] struct {
	id int
	fn func(T)
}

// Transport is bound to one session id and is never reused. After
// Disconnect it is terminal.
type Transport struct {
	sessionID string
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	conn    Conn
	gen     uint64
	state   models.TransportState
	closed  bool
	retry   backoff.BackOff
	attempt int
	timer   *clock.Timer
	nextID  int
	onMsg   []handlerEntry[models.WSMessage]
	onState []handlerEntry[models.TransportState]
	writeMu sync.Mutex
}

// New builds a disconnected transport for sessionID.
func New(sessionID string, opts Options) *Transport {
	if opts.Dialer == nil {
		opts.Dialer = GorillaDialer{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	retry := opts.BackOff
	if retry == nil {
		retry = NewBackOff()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Transport{
		sessionID: sessionID,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		retry:     retry,
	}
}

func (t *Transport) SessionID() string { return t.sessionID }

// URL builds {BaseURL}/api/chat/ws?session_id=..&token=..
func URL(baseURL, sessionID, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse websocket base url: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/chat/ws"
	q := url.Values{}
	q.Set("session_id", sessionID)
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect fetches a fresh token, dials and returns once the handshake is
// done. A failure here is returned to the caller and is not retried.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.state.Phase == models.Connected {
		t.mu.Unlock()
		return nil
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	emit := t.setStateLocked(models.TransportState{Phase: models.Connecting})
	t.mu.Unlock()
	emit()

	conn, err := t.open(ctx)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return ErrClosed
	}
	if err != nil {
		emit = t.setStateLocked(models.TransportState{Phase: models.Disconnected})
		t.mu.Unlock()
		emit()
		return err
	}
	emit = t.installLocked(conn)
	t.mu.Unlock()
	emit()
	return nil
}

func (t *Transport) open(ctx context.Context) (Conn, error) {
	token, err := t.opts.Tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("read access token: %w", err)
	}
	if token == "" {
		return nil, ErrAuthenticationMissing
	}

	target, err := URL(t.opts.BaseURL, t.sessionID, token)
	if err != nil {
		return nil, err
	}
	return t.opts.Dialer.Dial(ctx, target)
}

func (t *Transport) installLocked(conn Conn) func() {
	t.gen++
	t.conn = conn
	t.attempt = 0
	t.retry.Reset()
	go t.readLoop(conn, t.gen)
	return t.setStateLocked(models.TransportState{Phase: models.Connected})
}

func (t *Transport) readLoop(conn Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.connectionLost(gen, err)
			return
		}

		var msg models.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("WARNING: dropping malformed frame on session %s: %v", t.sessionID, err)
			continue
		}
		if !msg.KnownType() {
			log.Printf("WARNING: dropping frame of unknown type %q on session %s", msg.Type, t.sessionID)
			continue
		}
		t.dispatch(gen, msg)
	}
}

func (t *Transport) dispatch(gen uint64, msg models.WSMessage) {
	t.mu.Lock()
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		return
	}
	handlers := append([]handlerEntry[models.WSMessage](nil), t.onMsg...)
	t.mu.Unlock()

	for _, h := range handlers {
		h.fn(msg)
	}
}

func (t *Transport) connectionLost(gen uint64, err error) {
	t.mu.Lock()
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		return
	}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Printf("WARNING: session %s socket closed: %v", t.sessionID, err)
	}
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	emit := t.scheduleReconnectLocked()
	t.mu.Unlock()
	emit()
}

func (t *Transport) scheduleReconnectLocked() func() {
	delay := t.retry.NextBackOff()
	if delay == backoff.Stop {
		log.Printf("ERROR: session %s: giving up after %d reconnect attempts", t.sessionID, t.attempt)
		return t.setStateLocked(models.TransportState{Phase: models.Disconnected, GaveUp: true})
	}

	t.attempt++
	log.Printf("INFO: session %s: reconnect attempt %d in %s", t.sessionID, t.attempt, delay)
	t.timer = t.opts.Clock.AfterFunc(delay, t.reconnect)
	return t.setStateLocked(models.TransportState{Phase: models.Reconnecting, Attempt: t.attempt})
}

func (t *Transport) reconnect() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.mu.Unlock()

	conn, err := t.open(t.ctx)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	var emit func()
	switch {
	case err == nil:
		log.Printf("INFO: session %s reconnected", t.sessionID)
		emit = t.installLocked(conn)
	case errors.Is(err, ErrAuthenticationMissing):
		log.Printf("ERROR: session %s: no credential, reconnect stopped", t.sessionID)
		emit = t.setStateLocked(models.TransportState{Phase: models.Disconnected, GaveUp: true})
	default:
		log.Printf("WARNING: session %s reconnect attempt %d failed: %v", t.sessionID, t.attempt, err)
		emit = t.scheduleReconnectLocked()
	}
	t.mu.Unlock()
	emit()
}

// setStateLocked records s and returns the notification to run once
// the lock is released.
func (t *Transport) setStateLocked(s models.TransportState) func() {
	if t.state == s {
		return func() {}
	}
	t.state = s
	handlers := append([]handlerEntry[models.TransportState](nil), t.onState...)
	return func() {
		for _, h := range handlers {
			h.fn(s)
		}
	}
}

// Send writes one event. Outside Connected the event is dropped and
// ErrNotConnected returned; nothing is queued.
func (t *Transport) Send(msg models.WSMessage) error {
	t.mu.Lock()
	conn := t.conn
	connected := t.state.Phase == models.Connected && conn != nil
	t.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", msg.Type, err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s event: %w", msg.Type, err)
	}
	return nil
}

// OnMessage registers fn for every parsed inbound event. Handlers run on
// the read goroutine in registration order. The returned func unsubscribes.
func (t *Transport) OnMessage(fn func(models.WSMessage)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return func() {}
	}
	t.nextID++
	id := t.nextID
	t.onMsg = append(t.onMsg, handlerEntry[models.WSMessage]{id: id, fn: fn})
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.onMsg = removeHandler(t.onMsg, id)
	}
}

// OnStateChange registers fn for every state transition.
func (t *Transport) OnStateChange(fn func(models.TransportState)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return func() {}
	}
	t.nextID++
	id := t.nextID
	t.onState = append(t.onState, handlerEntry[models.TransportState]{id: id, fn: fn})
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.onState = removeHandler(t.onState, id)
	}
}

func removeHandler[T any](handlers []handlerEntry[T], id int) []handlerEntry[T] {
	for i, h := range handlers {
		if h.id == id {
			return append(handlers[:i:i], handlers[i+1:]...)
		}
	}
	return handlers
}

func (t *Transport) State() models.TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) IsConnected() bool {
	return t.State().Phase == models.Connected
}

// Disconnect cancels any pending reconnect, closes the socket and drops
// all handlers. Calling it again is a no-op.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	conn := t.conn
	t.conn = nil
	t.onMsg = nil
	t.onState = nil
	t.state = models.TransportState{Phase: models.Disconnected}
	t.mu.Unlock()

	t.cancel()
	if conn != nil {
		conn.Close()
	}
}
