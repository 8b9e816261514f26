package models

import "time"

// MatchStatus is the client-side lifecycle of today's match.
type MatchStatus string

const (
	StatusIdle      MatchStatus = "idle"
	StatusSearching MatchStatus = "searching"
	StatusMatched   MatchStatus = "matched"
	StatusChatting  MatchStatus = "chatting"
	StatusEnded     MatchStatus = "ended"
)

// SessionStatus is the server's view of a chat session.
type SessionStatus string

const (
	SessionActive         SessionStatus = "active"
	SessionEndedByUser    SessionStatus = "ended_by_user"
	SessionEndedBySystem  SessionStatus = "ended_by_system"
	SessionEndedByNoReply SessionStatus = "ended_no_reply"
)

// MatchResult describes today's pairing as returned by the match endpoints.
type MatchResult struct {
	SessionID       string        `json:"session_id"`
	Status          SessionStatus `json:"status"`
	PartnerID       string        `json:"partner_id"`
	PartnerUsername string        `json:"partner_username"`
	PartnerPhoto    *string       `json:"partner_photo"`
	StartedAt       time.Time     `json:"started_at"`
}

// IsActive reports whether the session can still be chatted in.
func (m MatchResult) IsActive() bool { return m.Status == SessionActive }

// MatchResponse is the body of GET /match/today and POST /match/find.
type MatchResponse struct {
	Matched bool         `json:"matched"`
	Match   *MatchResult `json:"match,omitempty"`
	Message string       `json:"message,omitempty"`
}
