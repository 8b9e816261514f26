package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"uniqsocial/client/internal/config"
	"uniqsocial/client/internal/models"
	"uniqsocial/client/internal/storage"

	"github.com/google/uuid"
)

// Broker relays frames between server instances. *storage.Service
// satisfies it through Redis pub/sub.
type Broker interface {
	PublishMessage(ctx context.Context, payload []byte) error
	SubscribeMessages(ctx context.Context) <-chan []byte
}

// envelope is what travels over the broker.
type envelope struct {
	SessionID  string `json:"session_id"`
	Data       []byte `json:"data"`
	InstanceID string `json:"instance_id,omitempty"`
}

// Hub keeps the sockets of every session room and fans frames out to them.
// All room state is owned by the Run goroutine.
type Hub struct {
	Storage storage.Storage
	Broker  Broker

	RegisterCh   chan *Client
	UnregisterCh chan *Client
	broadcastCh  chan envelope

	instanceID string
	rooms      map[string]map[*Client]bool
	done       chan struct{}
	now        func() time.Time
}

// NewHub builds a hub. broker may be nil for a single instance.
func NewHub(s storage.Storage, broker Broker) *Hub {
	return &Hub{
		Storage:      s,
		Broker:       broker,
		RegisterCh:   make(chan *Client),
		UnregisterCh: make(chan *Client),
		broadcastCh:  make(chan envelope, 256),
		instanceID:   "hub-" + uuid.New().String(),
		rooms:        make(map[string]map[*Client]bool),
		done:         make(chan struct{}),
		now:          time.Now,
	}
}

// Run serves the hub until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	var remote <-chan []byte
	if h.Broker != nil {
		remote = h.Broker.SubscribeMessages(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			for _, clients := range h.rooms {
				for client := range clients {
					close(client.Send)
				}
			}
			h.rooms = map[string]map[*Client]bool{}
			log.Println("INFO: chat hub stopped")
			return

		case client := <-h.RegisterCh:
			if h.rooms[client.SessionID] == nil {
				h.rooms[client.SessionID] = make(map[*Client]bool)
			}
			h.rooms[client.SessionID][client] = true
			log.Printf("INFO: user %s joined session %s", client.UserID, client.SessionID)

		case client := <-h.UnregisterCh:
			h.remove(client)
			log.Printf("INFO: user %s left session %s", client.UserID, client.SessionID)

		case env := <-h.broadcastCh:
			h.deliver(env.SessionID, env.Data)
			if h.Broker == nil {
				continue
			}
			env.InstanceID = h.instanceID
			payload, err := json.Marshal(env)
			if err != nil {
				log.Printf("ERROR: encode relay envelope: %v", err)
				continue
			}
			if err := h.Broker.PublishMessage(ctx, payload); err != nil {
				log.Printf("WARNING: relay publish failed: %v", err)
			}

		case payload, ok := <-remote:
			if !ok {
				remote = nil
				continue
			}
			var env envelope
			if err := json.Unmarshal(payload, &env); err != nil {
				log.Printf("WARNING: bad relay envelope: %v", err)
				continue
			}
			if env.InstanceID == h.instanceID {
				continue
			}
			h.deliver(env.SessionID, env.Data)
		}
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.rooms[client.SessionID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.rooms, client.SessionID)
	}
}

func (h *Hub) deliver(sessionID string, data []byte) {
	for client := range h.rooms[sessionID] {
		select {
		case client.Send <- data:
		default:
			log.Printf("WARNING: user %s is too slow, dropping connection", client.UserID)
			h.remove(client)
		}
	}
}

// Broadcast sends msg to every socket of its session, on all instances.
func (h *Hub) Broadcast(msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", msg.Type, err)
	}
	select {
	case h.broadcastCh <- envelope{SessionID: msg.SessionID, Data: data}:
		return nil
	case <-h.done:
		return fmt.Errorf("hub stopped")
	}
}

// HandleMessage stamps an inbound client frame with the sender, session
// and time, stores chat messages, then relays the frame to the room.
func (h *Hub) HandleMessage(ctx context.Context, client *Client, raw []byte) {
	var msg models.WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("WARNING: Error decoding JSON from user %s: %v", client.UserID, err)
		return
	}

	now := h.now().UTC()
	msg.SenderID = client.UserID
	msg.SessionID = client.SessionID
	msg.Timestamp = now.Format(time.RFC3339)

	switch msg.Type {
	case models.TypeMessage:
		msg.Content = strings.TrimSpace(msg.Content)
		if msg.Content == "" || utf8.RuneCountInString(msg.Content) > config.MaxMessageLength {
			return
		}
		history := &models.ChatHistory{
			SessionID: client.SessionID,
			SenderID:  client.UserID,
			Content:   msg.Content,
			CreatedAt: now,
		}
		if err := h.Storage.SaveMessage(ctx, history); err != nil {
			log.Printf("ERROR: persist message: %v", err)
		}
	case models.TypeTyping, models.TypeReadReceipt:
	default:
		// chat_ended is only issued by the server
		return
	}

	if err := h.Broadcast(msg); err != nil {
		log.Printf("WARNING: relay %s from %s: %v", msg.Type, client.UserID, err)
	}
}
