package realtime

import (
	"uniqsocial/client/internal/config"

	"github.com/cenkalti/backoff/v4"
)

// Schedule returns the uncapped reconnect delay sequence:
// min(1s * 2^attempt, 30s), without jitter and without an elapsed-time limit.
func Schedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.ReconnectInitialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = config.ReconnectMaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// NewBackOff is Schedule limited to config.ReconnectMaxAttempts delays.
// NextBackOff returns backoff.Stop once the budget is spent; Reset
// restores both the delay and the budget.
func NewBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(Schedule(), config.ReconnectMaxAttempts)
}
