// Package storage persists the local stub server's users, chat sessions
// and messages. Service is the gorm/PostgreSQL implementation; MemoryStore
// keeps everything in process for tests and zero-setup development.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"uniqsocial/client/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("storage: not found")
	ErrDuplicate = errors.New("storage: already exists")
)

type Storage interface {
	CreateUser(ctx context.Context, user *models.User) error
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id string) (*models.User, error)
	UpdateLocation(ctx context.Context, userID string, loc models.LocationUpdate) error

	SaveSession(ctx context.Context, session *models.ChatSession) error
	SessionByID(ctx context.Context, sessionID string) (*models.ChatSession, error)
	// SessionForUser returns the user's latest session of matchDate (YYYY-MM-DD).
	SessionForUser(ctx context.Context, userID, matchDate string) (*models.ChatSession, error)
	EndSession(ctx context.Context, sessionID string, status models.SessionStatus, at time.Time) error
	ActiveSessions(ctx context.Context) ([]models.ChatSession, error)

	SaveMessage(ctx context.Context, msg *models.ChatHistory) error
	GetChatHistory(ctx context.Context, sessionID string) ([]models.ChatHistory, error)
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor. rdb may be nil when no fan-out is configured.
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{DB: db, Redis: rdb}
}

// Migrate creates or updates the tables.
func (s *Service) Migrate() error {
	return s.DB.AutoMigrate(&models.User{}, &models.ChatSession{}, &models.ChatHistory{})
}

func (s *Service) CreateUser(ctx context.Context, user *models.User) error {
	err := s.DB.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) || (err != nil && strings.Contains(err.Error(), "duplicate key")) {
		return fmt.Errorf("user %s: %w", user.Email, ErrDuplicate)
	}
	if err != nil {
		log.Printf("ERROR: Failed to create user %s: %v", user.Email, err)
	}
	return err
}

func (s *Service) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) UserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) UpdateLocation(ctx context.Context, userID string, loc models.LocationUpdate) error {
	result := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"latitude":  loc.Latitude,
			"longitude": loc.Longitude,
			"city":      loc.City,
			"timezone":  loc.Timezone,
		})
	if result.Error != nil {
		log.Printf("ERROR: Failed to update location of user %s: %v", userID, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveSession inserts or updates a session row.
func (s *Service) SaveSession(ctx context.Context, session *models.ChatSession) error {
	return s.DB.WithContext(ctx).Save(session).Error
}

func (s *Service) SessionByID(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := s.DB.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		log.Printf("ERROR: Failed to get session %s: %v", sessionID, err)
		return nil, err
	}
	return &session, nil
}

func (s *Service) SessionForUser(ctx context.Context, userID, matchDate string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := s.DB.WithContext(ctx).
		Where("match_date = ?", matchDate).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("started_at desc").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		log.Printf("ERROR: Failed to find session for user %s: %v", userID, err)
		return nil, err
	}
	return &session, nil
}

// EndSession closes an active session. Ending a session that is already
// closed is ErrNotFound.
func (s *Service) EndSession(ctx context.Context, sessionID string, status models.SessionStatus, at time.Time) error {
	result := s.DB.WithContext(ctx).Model(&models.ChatSession{}).
		Where("session_id = ? AND status = ?", sessionID, models.SessionActive).
		Updates(map[string]interface{}{
			"status":   status,
			"ended_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) ActiveSessions(ctx context.Context) ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	if err := s.DB.WithContext(ctx).Where("status = ?", models.SessionActive).Find(&sessions).Error; err != nil {
		log.Printf("ERROR: Failed to list active sessions: %v", err)
		return nil, err
	}
	return sessions, nil
}

// SaveMessage stores msg; ID and CreatedAt are filled in by gorm.
func (s *Service) SaveMessage(ctx context.Context, msg *models.ChatHistory) error {
	if err := s.DB.WithContext(ctx).Create(msg).Error; err != nil {
		log.Printf("ERROR: Failed to save message for session %s: %v", msg.SessionID, err)
		return err
	}
	return nil
}

// GetChatHistory returns the session's messages oldest first.
func (s *Service) GetChatHistory(ctx context.Context, sessionID string) ([]models.ChatHistory, error) {
	var history []models.ChatHistory
	if err := s.DB.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at asc").Find(&history).Error; err != nil {
		log.Printf("ERROR: Failed to get chat history for session %s: %v", sessionID, err)
		return nil, err
	}
	return history, nil
}

// OpenPostgres connects gorm to dsn.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return db, nil
}
