// Package clock lets the engine's timers run against wall-clock time in
// production and against a manually advanced clock in tests.
//
// Anything that schedules work (reconnect backoff, the typing indicator,
// the window countdown) takes a Clock instead of calling the time package.
package clock

import "time"

// Clock is the subset of the time package the engine uses.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine (Real) or synchronously
	// inside Advance (Fake) once d has elapsed.
	AfterFunc(d time.Duration, f func()) *Timer
	NewTicker(d time.Duration) *Ticker
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// Stop cancels the call. It reports false if the timer already fired or
// was already stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Ticker delivers ticks on C. C has capacity 1; slow readers miss ticks.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stopFunc() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	timer := time.AfterFunc(d, f)
	return &Timer{stopFunc: timer.Stop}
}

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stopFunc: ticker.Stop}
}
