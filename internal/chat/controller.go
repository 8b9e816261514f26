// Package chat owns the in-memory message log of one chat session. It
// appends partner messages as they arrive, records the user's own sends
// optimistically, derives the partner typing indicator and ends sessions.
package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"uniqsocial/client/internal/clock"
	"uniqsocial/client/internal/config"
	"uniqsocial/client/internal/models"
)

var (
	ErrEmptyMessage   = errors.New("chat: message is empty")
	ErrMessageTooLong = errors.New("chat: message is too long")
	ErrNoSession      = errors.New("chat: no session connected")
	// ErrSuperseded is returned by Connect when Disconnect, Reset or another
	// Connect ran before the transport finished connecting.
	ErrSuperseded = errors.New("chat: connect superseded")
)

// Service is the history/end-session pair. *api.Client satisfies it.
type Service interface {
	Messages(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	EndChat(ctx context.Context, sessionID string) error
}

// Transport is the part of *realtime.Transport the controller uses.
type Transport interface {
	Connect(ctx context.Context) error
	Send(msg models.WSMessage) error
	OnMessage(fn func(models.WSMessage)) func()
	OnStateChange(fn func(models.TransportState)) func()
	Disconnect()
}

// TransportFactory returns a fresh, unconnected transport for sessionID.
type TransportFactory func(sessionID string) Transport

type EventKind int

const (
	MessageReceived EventKind = iota + 1
	TypingChanged
	SessionEnded
	ConnectionLost
)

func (k EventKind) String() string {
	switch k {
	case MessageReceived:
		return "message_received"
	case TypingChanged:
		return "typing_changed"
	case SessionEnded:
		return "session_ended"
	case ConnectionLost:
		return "connection_lost"
	}
	return "unknown"
}

// Event is pushed to subscribers after the controller state changed.
type Event struct {
	Kind      EventKind
	SessionID string
	Message   models.ChatMessage // MessageReceived
	Typing    bool               // TypingChanged
}

type Snapshot struct {
	SessionID     string
	Messages      []models.ChatMessage
	PartnerTyping bool
	Connected     bool
	// Ended is set once either party ended the session.
	Ended bool
	// Lost is set when the transport gave up reconnecting.
	Lost bool
}

type subscriber struct {
	id int
	fn func(Event)
}

type Controller struct {
	Service      Service
	NewTransport TransportFactory
	Clock        clock.Clock

	mu          sync.Mutex
	gen         uint64 // bumped on every transport change
	epoch       uint64 // bumped on Reset
	sessionID   string
	selfID      string
	transport   Transport
	messages    []models.ChatMessage
	typing      bool
	typingTimer *clock.Timer
	typingSeq   uint64
	localSeq    uint64 // suffix of locally assigned message ids
	connected   bool
	ended       bool
	lost        bool
	subs        []subscriber
	nextSubID   int
}

// nextLocalID must be called with c.mu held.
func (c *Controller) nextLocalID(at time.Time, senderID string) string {
	c.localSeq++
	return models.LocalMessageID(at, senderID, c.localSeq)
}

func NewController(svc Service, factory TransportFactory, clk clock.Clock) *Controller {
	if clk == nil {
		clk = clock.Real()
	}
	return &Controller{Service: svc, NewTransport: factory, Clock: clk}
}

// Subscribe registers fn for controller events and returns the
// unsubscribe func. fn is called without the controller lock held.
func (c *Controller) Subscribe(fn func(Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Controller) publish(events []Event) {
	if len(events) == 0 {
		return
	}
	c.mu.Lock()
	subs := append([]subscriber(nil), c.subs...)
	c.mu.Unlock()

	for _, e := range events {
		for _, s := range subs {
			s.fn(e)
		}
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		SessionID:     c.sessionID,
		Messages:      append([]models.ChatMessage(nil), c.messages...),
		PartnerTyping: c.typing,
		Connected:     c.connected,
		Ended:         c.ended,
		Lost:          c.lost,
	}
}

// LoadHistory replaces the log with the server's copy. On failure the
// log is left as it was. A result that arrives after Reset or a switch
// to another session is dropped.
func (c *Controller) LoadHistory(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	if c.sessionID == "" {
		c.sessionID = sessionID
	}
	epoch := c.epoch
	c.mu.Unlock()

	messages, err := c.Service.Messages(ctx, sessionID)
	if err != nil {
		log.Printf("WARNING: loading history for session %s failed: %v", sessionID, err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || c.sessionID != sessionID {
		log.Printf("INFO: dropping stale history for session %s", sessionID)
		return nil
	}
	c.messages = append([]models.ChatMessage(nil), messages...)
	return nil
}

// Connect tears down any previous transport and opens a new one for
// sessionID. selfID is used to drop the server's echo of our own events.
func (c *Controller) Connect(ctx context.Context, sessionID, selfID string) error {
	c.mu.Lock()
	old := c.transport
	c.transport = nil
	c.gen++
	gen := c.gen
	c.stopTypingLocked()
	if c.sessionID != sessionID {
		c.messages = nil
	}
	c.sessionID = sessionID
	c.selfID = selfID
	c.connected = false
	c.ended = false
	c.lost = false
	c.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}

	tr := c.NewTransport(sessionID)
	tr.OnMessage(func(msg models.WSMessage) { c.handleInbound(gen, msg) })
	tr.OnStateChange(func(s models.TransportState) { c.handleState(gen, s) })

	if err := tr.Connect(ctx); err != nil {
		tr.Disconnect()
		log.Printf("ERROR: connecting to session %s failed: %v", sessionID, err)
		return err
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		tr.Disconnect()
		return ErrSuperseded
	}
	c.transport = tr
	c.connected = !c.ended
	c.mu.Unlock()
	return nil
}

func (c *Controller) handleInbound(gen uint64, msg models.WSMessage) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if msg.SessionID != "" && msg.SessionID != c.sessionID {
		current := c.sessionID
		c.mu.Unlock()
		log.Printf("WARNING: ignoring %s event for session %s while in %s", msg.Type, msg.SessionID, current)
		return
	}

	var events []Event
	switch msg.Type {
	case models.TypeMessage:
		if msg.Content == "" || msg.SenderID == "" || msg.SenderID == c.selfID {
			break
		}
		now := c.Clock.Now()
		createdAt, ok := msg.SentAt()
		if !ok {
			createdAt = now
		}
		entry := models.ChatMessage{
			ID:        c.nextLocalID(now, msg.SenderID),
			SessionID: c.sessionID,
			SenderID:  msg.SenderID,
			Content:   msg.Content,
			CreatedAt: createdAt,
		}
		c.messages = append(c.messages, entry)
		events = append(events, Event{Kind: MessageReceived, SessionID: c.sessionID, Message: entry})

	case models.TypeTyping:
		if msg.SenderID == c.selfID {
			break
		}
		if !c.typing {
			events = append(events, Event{Kind: TypingChanged, SessionID: c.sessionID, Typing: true})
		}
		c.typing = true
		c.restartTypingTimerLocked(gen)

	case models.TypeChatEnded:
		c.connected = false
		if !c.ended {
			c.ended = true
			events = append(events, Event{Kind: SessionEnded, SessionID: c.sessionID})
		}

	case models.TypeReadReceipt:
		// not surfaced
	}
	c.mu.Unlock()

	c.publish(events)
}

func (c *Controller) restartTypingTimerLocked(gen uint64) {
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingSeq++
	seq := c.typingSeq
	c.typingTimer = c.Clock.AfterFunc(config.TypingIndicatorTimeout, func() {
		c.clearTyping(gen, seq)
	})
}

func (c *Controller) clearTyping(gen, seq uint64) {
	c.mu.Lock()
	if gen != c.gen || seq != c.typingSeq || !c.typing {
		c.mu.Unlock()
		return
	}
	c.typing = false
	c.typingTimer = nil
	sessionID := c.sessionID
	c.mu.Unlock()

	c.publish([]Event{{Kind: TypingChanged, SessionID: sessionID, Typing: false}})
}

func (c *Controller) stopTypingLocked() {
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	c.typingSeq++
	c.typing = false
}

func (c *Controller) handleState(gen uint64, s models.TransportState) {
	c.mu.Lock()
	if gen != c.gen || c.ended {
		c.mu.Unlock()
		return
	}

	var events []Event
	switch {
	case s.Phase == models.Connected:
		c.connected = true
		c.lost = false
	case s.Phase == models.Disconnected && s.GaveUp:
		c.connected = false
		if !c.lost {
			c.lost = true
			events = append(events, Event{Kind: ConnectionLost, SessionID: c.sessionID})
		}
	default:
		c.connected = false
	}
	c.mu.Unlock()

	c.publish(events)
}

// SendMessage validates content, appends it to the log and sends it.
// The log entry stays even if the transport drops the event; there is
// no retry and no rollback.
func (c *Controller) SendMessage(content, selfID string) (models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.ChatMessage{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > config.MaxMessageLength {
		return models.ChatMessage{}, ErrMessageTooLong
	}

	c.mu.Lock()
	tr := c.transport
	if tr == nil {
		c.mu.Unlock()
		return models.ChatMessage{}, ErrNoSession
	}
	now := c.Clock.Now()
	entry := models.ChatMessage{
		ID:        c.nextLocalID(now, selfID),
		SessionID: c.sessionID,
		SenderID:  selfID,
		Content:   content,
		CreatedAt: now,
	}
	c.messages = append(c.messages, entry)
	sessionID := c.sessionID
	c.mu.Unlock()

	err := tr.Send(models.WSMessage{Type: models.TypeMessage, SessionID: sessionID, Content: content})
	if err != nil {
		log.Printf("WARNING: message %s on session %s not delivered: %v", entry.ID, sessionID, err)
	}
	return entry, nil
}

// SendTyping forwards one typing signal. The receiver debounces.
func (c *Controller) SendTyping() {
	c.mu.Lock()
	tr := c.transport
	sessionID := c.sessionID
	c.mu.Unlock()

	if tr == nil {
		return
	}
	_ = tr.Send(models.WSMessage{Type: models.TypeTyping, SessionID: sessionID})
}

// EndChat ends the session on the server, then marks it ended locally.
func (c *Controller) EndChat(ctx context.Context, sessionID string) error {
	if err := c.Service.EndChat(ctx, sessionID); err != nil {
		log.Printf("ERROR: ending session %s failed: %v", sessionID, err)
		return err
	}

	c.mu.Lock()
	var events []Event
	if c.sessionID == sessionID {
		c.connected = false
		if !c.ended {
			c.ended = true
			events = append(events, Event{Kind: SessionEnded, SessionID: sessionID})
		}
	}
	c.mu.Unlock()

	c.publish(events)
	return nil
}

// Disconnect closes the transport and cancels the typing timer. The log is kept.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	tr := c.teardownLocked()
	c.mu.Unlock()

	if tr != nil {
		tr.Disconnect()
	}
}

// Reset disconnects and forgets the session, its log and all indicators.
func (c *Controller) Reset() {
	c.mu.Lock()
	tr := c.teardownLocked()
	c.epoch++
	c.sessionID = ""
	c.selfID = ""
	c.messages = nil
	c.ended = false
	c.lost = false
	c.mu.Unlock()

	if tr != nil {
		tr.Disconnect()
	}
}

func (c *Controller) teardownLocked() Transport {
	tr := c.transport
	c.transport = nil
	c.gen++
	c.stopTypingLocked()
	c.connected = false
	return tr
}
