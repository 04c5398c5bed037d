// Package clock abstracts the host timer primitive so the engine can run on
// real timers in production and on a manually advanced clock in tests.
package clock

import "time"

// Timer is a pending callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer, false if it already fired or was stopped.
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the Scheduler backed by the time package.
type Real struct{}

// Now returns the current wall clock time in UTC.
func (Real) Now() time.Time { return time.Now().UTC() }

// AfterFunc calls f on its own goroutine once d has elapsed.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
