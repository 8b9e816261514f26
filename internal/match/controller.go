// Package match drives the daily match lifecycle:
// Idle -> Searching -> Matched -> Chatting -> Ended, and back to Idle on Reset.
package match

import (
	"context"
	"log"
	"sync"

	"uniqsocial/client/internal/config"
	"uniqsocial/client/internal/models"
)

// Service is the matching query/command pair. *api.Client satisfies it.
type Service interface {
	TodayMatch(ctx context.Context) (models.MatchResponse, error)
	FindMatch(ctx context.Context) (models.MatchResponse, error)
}

// Snapshot is a copy of the controller state. Match is nil until a
// match is known; Error is the last user-facing error text.
type Snapshot struct {
	Status models.MatchStatus
	Match  *models.MatchResult
	Error  string
}

type Controller struct {
	Service Service

	mu           sync.Mutex
	status       models.MatchStatus
	match        *models.MatchResult
	errText      string
	lastCheckErr error
	gen          uint64
	listeners    []func(Snapshot)
}

func NewController(svc Service) *Controller {
	return &Controller{Service: svc, status: models.StatusIdle}
}

// OnChange registers fn to receive a snapshot after every state change.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{Status: c.status, Error: c.errText}
	if c.match != nil {
		m := *c.match
		s.Match = &m
	}
	return s
}

// LastCheckErr is the error swallowed by the most recent CheckTodayMatch,
// or nil if it succeeded.
func (c *Controller) LastCheckErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCheckErr
}

// update applies fn under the lock unless Reset ran since gen was taken,
// then notifies listeners.
func (c *Controller) update(gen uint64, fn func()) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	fn()
	snap := c.snapshotLocked()
	listeners := append([]func(Snapshot){}, c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
	return true
}

func (c *Controller) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// CheckTodayMatch restores today's match, if any. It runs in the
// background at startup, so failures are recorded instead of returned
// and the current status is kept.
func (c *Controller) CheckTodayMatch(ctx context.Context) {
	gen := c.generation()

	resp, err := c.Service.TodayMatch(ctx)
	if err != nil {
		log.Printf("WARNING: checking today's match failed: %v", err)
		c.update(gen, func() {
			c.lastCheckErr = err
			c.errText = config.ErrTextCheckFailed
		})
		return
	}

	c.update(gen, func() {
		c.lastCheckErr = nil
		c.errText = ""
		if resp.Matched && resp.Match != nil {
			m := *resp.Match
			c.match = &m
			if m.IsActive() {
				c.status = models.StatusMatched
			} else {
				c.status = models.StatusEnded
			}
			return
		}
		c.match = nil
		c.status = models.StatusIdle
	})
}

// FindMatch asks the server for today's partner. Status is Searching
// while the call is in flight. A response without a match returns the
// controller to Idle with the server's reason and is not an error.
// Callers must not start a second FindMatch while one is in flight.
func (c *Controller) FindMatch(ctx context.Context) error {
	gen := c.generation()
	c.update(gen, func() {
		c.status = models.StatusSearching
		c.errText = ""
	})

	resp, err := c.Service.FindMatch(ctx)
	if err != nil {
		log.Printf("ERROR: find match failed: %v", err)
		c.update(gen, func() {
			c.status = models.StatusIdle
			c.errText = config.ErrTextFindFailed
		})
		return err
	}

	c.update(gen, func() {
		if resp.Matched && resp.Match != nil {
			m := *resp.Match
			c.match = &m
			c.status = models.StatusMatched
			return
		}
		c.status = models.StatusIdle
		c.errText = resp.Message
		if c.errText == "" {
			c.errText = config.ErrTextNoMatches
		}
	})
	return nil
}

// MarkChatting records that the chat screen took over the match.
func (c *Controller) MarkChatting() {
	c.update(c.generation(), func() {
		if c.status != models.StatusMatched {
			log.Printf("WARNING: MarkChatting ignored in status %s", c.status)
			return
		}
		c.status = models.StatusChatting
	})
}

// MarkEnded records that the session finished, by either party.
func (c *Controller) MarkEnded() {
	c.update(c.generation(), func() {
		if c.status != models.StatusMatched && c.status != models.StatusChatting {
			log.Printf("WARNING: MarkEnded ignored in status %s", c.status)
			return
		}
		c.status = models.StatusEnded
	})
}

// Reset returns to Idle and forgets the match. Results of calls that
// were in flight are ignored.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.update(gen, func() {
		c.status = models.StatusIdle
		c.match = nil
		c.errText = ""
		c.lastCheckErr = nil
	})
}
