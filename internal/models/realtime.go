package models

import (
	"fmt"
	"time"
)

// Realtime envelope types.
const (
	TypeMessage     = "message"
	TypeTyping      = "typing"
	TypeReadReceipt = "read_receipt"
	TypeChatEnded   = "chat_ended"
)

// WSMessage is the envelope exchanged over the chat socket in both directions.
// The server stamps SenderID and Timestamp on everything it relays.
type WSMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Content   string `json:"content,omitempty"`
	SenderID  string `json:"sender_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"` // RFC3339
}

// KnownType reports whether Type is one of the envelope types above.
func (m WSMessage) KnownType() bool {
	switch m.Type {
	case TypeMessage, TypeTyping, TypeReadReceipt, TypeChatEnded:
		return true
	}
	return false
}

// SentAt parses Timestamp. ok is false when it is missing or malformed.
func (m WSMessage) SentAt() (t time.Time, ok bool) {
	if m.Timestamp == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, m.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// TransportPhase is the coarse state of a realtime transport.
type TransportPhase int

const (
	Disconnected TransportPhase = iota
	Connecting
	Connected
	Reconnecting
)

func (p TransportPhase) String() string {
	switch p {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// TransportState is owned by the transport. Attempt is set while
// Reconnecting; GaveUp is set on the Disconnected state entered after
// the reconnect budget ran out.
type TransportState struct {
	Phase   TransportPhase
	Attempt int
	GaveUp  bool
}

func (s TransportState) String() string {
	switch {
	case s.Phase == Reconnecting:
		return fmt.Sprintf("reconnecting(%d)", s.Attempt)
	case s.GaveUp:
		return "disconnected(gave up)"
	default:
		return s.Phase.String()
	}
}
