package engine

import (
	"math"
	"time"
)

// Backoff defaults.
const (
	DefaultPollFloor  = 2 * time.Second
	DefaultPollCap    = 30 * time.Second
	BackoffMultiplier = 1.5
)

// Backoff computes the delay before the next fetch attempt.
// After n consecutive failures the delay is floor × 1.5^(n-1), capped.
// Not safe for concurrent use; the Poller owns it under its own lock.
type Backoff struct {
	floor    time.Duration
	cap      time.Duration
	current  time.Duration
	failures int
}

// NewBackoff returns a Backoff starting at floor. Non-positive values use the defaults.
func NewBackoff(floor, ceiling time.Duration) *Backoff {
	if floor <= 0 {
		floor = DefaultPollFloor
	}
	if ceiling <= 0 {
		ceiling = DefaultPollCap
	}
	if ceiling < floor {
		ceiling = floor
	}
	return &Backoff{floor: floor, cap: ceiling, current: floor}
}

// OnSuccess resets the delay to the floor and returns it.
func (b *Backoff) OnSuccess() time.Duration {
	b.failures = 0
	b.current = b.floor
	return b.current
}

// OnFailure records a failure and returns the delay before the next attempt.
func (b *Backoff) OnFailure() time.Duration {
	b.failures++
	grown := float64(b.floor) * math.Pow(BackoffMultiplier, float64(b.failures-1))
	if grown >= float64(b.cap) {
		b.current = b.cap
	} else {
		b.current = time.Duration(grown)
	}
	return b.current
}

// Current returns the delay the next schedule will use.
func (b *Backoff) Current() time.Duration { return b.current }

// Failures returns the number of consecutive failures.
func (b *Backoff) Failures() int { return b.failures }
