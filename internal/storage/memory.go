package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"uniqsocial/client/internal/models"

	"github.com/google/uuid"
)

// MemoryStore is a Storage that lives in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]models.User // by id
	emails   map[string]string      // email -> id
	sessions map[string]models.ChatSession
	messages map[string][]models.ChatHistory // by session id
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]models.User),
		emails:   make(map[string]string),
		sessions: make(map[string]models.ChatSession),
		messages: make(map[string][]models.ChatHistory),
		now:      time.Now,
	}
}

func (m *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.emails[user.Email]; ok {
		return fmt.Errorf("user %s: %w", user.Email, ErrDuplicate)
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = m.now()
	}
	m.users[user.ID] = *user
	m.emails[user.Email] = user.ID
	return nil
}

func (m *MemoryStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	user := m.users[id]
	return &user, nil
}

func (m *MemoryStore) UserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (m *MemoryStore) UpdateLocation(ctx context.Context, userID string, loc models.LocationUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	city, tz := loc.City, loc.Timezone
	lat, lng := loc.Latitude, loc.Longitude
	user.City, user.Timezone = &city, &tz
	user.Latitude, user.Longitude = &lat, &lng
	m.users[userID] = user
	return nil
}

func (m *MemoryStore) SaveSession(ctx context.Context, session *models.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.SessionID] = *session
	return nil
}

func (m *MemoryStore) SessionByID(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &session, nil
}

func (m *MemoryStore) SessionForUser(ctx context.Context, userID, matchDate string) (*models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *models.ChatSession
	for _, s := range m.sessions {
		if s.MatchDate != matchDate || !s.Includes(userID) {
			continue
		}
		if found == nil || s.StartedAt.After(found.StartedAt) {
			found = &s
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (m *MemoryStore) EndSession(ctx context.Context, sessionID string, status models.SessionStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok || session.Status != models.SessionActive {
		return ErrNotFound
	}
	session.Status = status
	session.EndedAt = &at
	m.sessions[sessionID] = session
	return nil
}

func (m *MemoryStore) ActiveSessions(ctx context.Context) ([]models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active []models.ChatSession
	for _, s := range m.sessions {
		if s.IsActive() {
			active = append(active, s)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].SessionID < active[j].SessionID })
	return active, nil
}

func (m *MemoryStore) SaveMessage(ctx context.Context, msg *models.ChatHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], *msg)
	return nil
}

func (m *MemoryStore) GetChatHistory(ctx context.Context, sessionID string) ([]models.ChatHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := append([]models.ChatHistory(nil), m.messages[sessionID]...)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].CreatedAt.Before(history[j].CreatedAt)
	})
	return history, nil
}
