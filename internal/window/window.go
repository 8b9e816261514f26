// Package window decides whether the daily match window is open.
//
// The window opens at 20:00 and closes at midnight, local time. Outside
// it the state carries the instant the window next opens and how long
// that is from now. Nothing here performs I/O or can fail.
package window

import (
	"context"
	"fmt"
	"time"

	"uniqsocial/client/internal/clock"
	"uniqsocial/client/internal/config"
)

// Phase classifies a wall-clock instant.
type Phase int

const (
	Closed Phase = iota
	Open
	// ClosedPastMidnight is Closed between 00:00 and 08:00. It only
	// changes the copy shown to the user.
	ClosedPastMidnight
)

func (p Phase) String() string {
	switch p {
	case Open:
		return "open"
	case ClosedPastMidnight:
		return "closed_past_midnight"
	default:
		return "closed"
	}
}

// State is the gate's answer for one instant. OpensAt and Remaining are
// zero when the window is open.
type State struct {
	Phase     Phase
	OpensAt   time.Time
	Remaining time.Duration
}

// IsOpen reports whether finding a match is actionable.
func (s State) IsOpen() bool { return s.Phase == Open }

// Countdown renders Remaining as HH:MM:SS.
func (s State) Countdown() string { return FormatCountdown(s.Remaining) }

// Classify maps now, in its own location, to a State.
func Classify(now time.Time) State {
	hour := now.Hour()
	if hour >= config.WindowOpenHour && hour < config.WindowCloseHour {
		return State{Phase: Open}
	}

	opensAt := nextOpening(now)
	phase := Closed
	if hour < config.PastMidnightUntilHour {
		phase = ClosedPastMidnight
	}
	return State{Phase: phase, OpensAt: opensAt, Remaining: opensAt.Sub(now)}
}

// nextOpening returns today's 20:00. Classify only calls it before 20:00,
// so the result is always after now.
func nextOpening(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, config.WindowOpenHour, 0, 0, 0, now.Location())
}

// FormatCountdown renders d as zero-padded HH:MM:SS, truncating to whole
// seconds. Negative durations render as 00:00:00.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// Watch calls fn with a fresh State immediately and then once per second
// until ctx is done. Every tick recomputes from clk.Now(), so a late or
// skipped tick never skews the countdown.
func Watch(ctx context.Context, clk clock.Clock, fn func(State)) {
	fn(Classify(clk.Now()))

	ticker := clk.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(Classify(clk.Now()))
		}
	}
}

// OpenChanges reduces a stream of States to the moments the window opens
// or closes. Moving from ClosedPastMidnight to Closed is not a change.
// The zero value is ready; the first State only primes it.
type OpenChanges struct {
	primed bool
	open   bool
}

// Changed records st and reports whether it flipped the window.
func (o *OpenChanges) Changed(st State) bool {
	open := st.IsOpen()
	changed := o.primed && open != o.open
	o.primed, o.open = true, open
	return changed
}
