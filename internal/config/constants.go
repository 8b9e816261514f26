package config

import "time"

const (
	// Match window (local wall-clock hours)
	WindowOpenHour        = 20
	WindowCloseHour       = 24
	PastMidnightUntilHour = 8

	// Realtime transport
	ReconnectInitialDelay = 1000 * time.Millisecond
	ReconnectMaxDelay     = 30000 * time.Millisecond
	ReconnectMaxAttempts  = 5
	WriteWait             = 10 * time.Second
	PongWait              = 60 * time.Second
	PingPeriod            = (PongWait * 9) / 10
	MaxFrameSize          = 8192

	// Chat session
	TypingIndicatorTimeout = 3000 * time.Millisecond
	MaxMessageLength       = 1000

	// Match lifecycle copy used when the server gives no reason
	ErrTextCheckFailed = "Failed to check match"
	ErrTextFindFailed  = "Failed to find match"
	ErrTextNoMatches   = "No matches available"
)
