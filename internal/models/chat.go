package models

import (
	"fmt"
	"time"
)

// ChatMessage is one entry of a session's message log, as served by
// GET /chat/{id}/messages and as kept in memory by the chat controller.
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// LocalMessageID builds the identifier given to messages that have not
// been assigned one by the server: receipt or send time in milliseconds,
// the sender, and a counter that keeps ids taken in the same millisecond
// apart.
func LocalMessageID(at time.Time, senderID string, seq uint64) string {
	return fmt.Sprintf("%d-%s-%d", at.UnixMilli(), senderID, seq)
}
