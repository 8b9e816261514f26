package devserver

import (
	"context"
	"errors"
	"log"
	"time"

	"uniqsocial/client/internal/clock"
	"uniqsocial/client/internal/models"
	"uniqsocial/client/internal/storage"
)

// Scheduler closes the day: at 00:00 local time every session still
// active is ended by the system and both participants are told.
type Scheduler struct {
	Storage storage.Storage
	Hub     *Hub
	Clock   clock.Clock

	lastRun string // match date of the last midnight run
}

// NewScheduler builds a scheduler. hub may be nil when nobody listens.
func NewScheduler(s storage.Storage, hub *Hub, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	return &Scheduler{Storage: s, Hub: hub, Clock: clk}
}

// Run checks the time once a minute until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.Clock.NewTicker(time.Minute)
	defer ticker.Stop()

	log.Println("INFO: scheduler started")
	for {
		select {
		case <-ctx.Done():
			log.Println("INFO: scheduler stopped")
			return
		case <-ticker.C:
			now := s.Clock.Now()
			if now.Hour() != 0 || now.Minute() != 0 {
				continue
			}
			day := now.Format(time.DateOnly)
			if day == s.lastRun {
				continue
			}
			s.lastRun = day
			if _, err := s.EndActiveSessions(ctx, now); err != nil {
				log.Printf("ERROR: midnight cleanup: %v", err)
			}
		}
	}
}

// EndActiveSessions ends every active session as of at and returns how
// many it ended. A session ended by a user in the meantime is skipped.
func (s *Scheduler) EndActiveSessions(ctx context.Context, at time.Time) (int, error) {
	sessions, err := s.Storage.ActiveSessions(ctx)
	if err != nil {
		return 0, err
	}

	at = at.UTC()
	ended := 0
	for _, session := range sessions {
		err := s.Storage.EndSession(ctx, session.SessionID, models.SessionEndedBySystem, at)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			log.Printf("ERROR: Failed to end session %s: %v", session.SessionID, err)
			continue
		}
		ended++

		if s.Hub == nil {
			continue
		}
		err = s.Hub.Broadcast(models.WSMessage{
			Type:      models.TypeChatEnded,
			SessionID: session.SessionID,
			Timestamp: at.Format(time.RFC3339),
		})
		if err != nil {
			log.Printf("WARNING: chat_ended for %s not broadcast: %v", session.SessionID, err)
		}
	}

	log.Printf("INFO: scheduler ended %d active sessions", ended)
	return ended, nil
}
