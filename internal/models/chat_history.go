package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatHistory is a persisted chat message of the local stub server.
type ChatHistory struct {
	ID string `gorm:"primaryKey"`
	// SessionID is the chat session the message belongs to.
	SessionID string `gorm:"type:text;not null;index:idx_session_msg"`
	// SenderID is the user who sent the message.
	SenderID  string    `gorm:"type:text;not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index:idx_session_msg"`
}

func (h *ChatHistory) BeforeCreate(tx *gorm.DB) (err error) {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	return
}

// Message converts the row to its wire form.
func (h ChatHistory) Message() ChatMessage {
	return ChatMessage{
		ID:        h.ID,
		SessionID: h.SessionID,
		SenderID:  h.SenderID,
		Content:   h.Content,
		CreatedAt: h.CreatedAt,
	}
}

// ChatSession is one day's pairing of two users.
type ChatSession struct {
	SessionID string `gorm:"primaryKey"`
	User1ID   string `gorm:"index"`
	User2ID   string `gorm:"index"`
	// MatchDate is the local calendar day (YYYY-MM-DD) the pair was made on.
	MatchDate string        `gorm:"index"`
	Status    SessionStatus `gorm:"type:text;not null"`
	StartedAt time.Time
	EndedAt   *time.Time
}

// Partner returns the other participant, or "" if userID is not in the session.
func (s ChatSession) Partner(userID string) string {
	switch userID {
	case s.User1ID:
		return s.User2ID
	case s.User2ID:
		return s.User1ID
	}
	return ""
}

// Includes reports whether userID takes part in the session.
func (s ChatSession) Includes(userID string) bool {
	return userID != "" && (userID == s.User1ID || userID == s.User2ID)
}

func (s ChatSession) IsActive() bool { return s.Status == SessionActive }
