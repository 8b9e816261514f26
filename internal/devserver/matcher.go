package devserver

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"uniqsocial/client/internal/models"
	"uniqsocial/client/internal/storage"

	"github.com/google/uuid"
)

const (
	msgWaiting    = "Waiting for a partner, try again in a moment"
	msgNoMatchYet = "No match yet today"
)

// Matcher pairs users first come, first served, at most once per user
// per day. It has no ranking: the real service owns that.
type Matcher struct {
	Storage storage.Storage

	mu    sync.Mutex
	queue []string // user ids waiting, oldest first
	now   func() time.Time
}

func NewMatcher(s storage.Storage) *Matcher {
	return &Matcher{Storage: s, now: time.Now}
}

func (m *Matcher) matchDate() string {
	return m.now().Format("2006-01-02")
}

// Today returns the user's session of the current day, if any.
func (m *Matcher) Today(ctx context.Context, userID string) (models.MatchResponse, error) {
	session, err := m.Storage.SessionForUser(ctx, userID, m.matchDate())
	if errors.Is(err, storage.ErrNotFound) {
		return models.MatchResponse{Matched: false, Message: msgNoMatchYet}, nil
	}
	if err != nil {
		return models.MatchResponse{}, err
	}
	return m.response(ctx, session, userID)
}

// Find returns today's session or pairs the user with whoever has been
// waiting longest. With nobody waiting the user is queued and the
// response says so.
func (m *Matcher) Find(ctx context.Context, userID string) (models.MatchResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	date := m.matchDate()
	session, err := m.Storage.SessionForUser(ctx, userID, date)
	if err == nil {
		return m.response(ctx, session, userID)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return models.MatchResponse{}, err
	}

	partnerID := m.takePartner(userID)
	if partnerID == "" {
		m.enqueue(userID)
		log.Printf("INFO: user %s queued for a match", userID)
		return models.MatchResponse{Matched: false, Message: msgWaiting}, nil
	}

	session = &models.ChatSession{
		SessionID: uuid.New().String(),
		User1ID:   partnerID,
		User2ID:   userID,
		MatchDate: date,
		Status:    models.SessionActive,
		StartedAt: m.now().UTC(),
	}
	if err := m.Storage.SaveSession(ctx, session); err != nil {
		log.Printf("ERROR: Error saving new session: %v", err)
		m.queue = append([]string{partnerID}, m.queue...)
		return models.MatchResponse{}, err
	}

	log.Printf("INFO: Match found: %s and %s in session %s", partnerID, userID, session.SessionID)
	return m.response(ctx, session, userID)
}

func (m *Matcher) takePartner(userID string) string {
	for i, waiting := range m.queue {
		if waiting == userID {
			continue
		}
		m.queue = append(m.queue[:i:i], m.queue[i+1:]...)
		m.dequeue(userID)
		return waiting
	}
	return ""
}

func (m *Matcher) enqueue(userID string) {
	for _, waiting := range m.queue {
		if waiting == userID {
			return
		}
	}
	m.queue = append(m.queue, userID)
}

func (m *Matcher) dequeue(userID string) {
	for i, waiting := range m.queue {
		if waiting == userID {
			m.queue = append(m.queue[:i:i], m.queue[i+1:]...)
			return
		}
	}
}

func (m *Matcher) response(ctx context.Context, session *models.ChatSession, userID string) (models.MatchResponse, error) {
	result := &models.MatchResult{
		SessionID: session.SessionID,
		Status:    session.Status,
		PartnerID: session.Partner(userID),
		StartedAt: session.StartedAt,
	}
	partner, err := m.Storage.UserByID(ctx, result.PartnerID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return models.MatchResponse{}, err
	}
	if partner != nil {
		result.PartnerUsername = partner.Username
		result.PartnerPhoto = partner.PhotoURL
	}
	return models.MatchResponse{Matched: true, Match: result}, nil
}
