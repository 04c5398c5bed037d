// Package clocktest provides a manually advanced clock.Scheduler for tests.
package clocktest

import (
	"sort"
	"sync"
	"time"

	"biofilter_monitor/internal/clock"
)

// Scheduler is a fake clock. Callbacks fire synchronously inside Advance,
// in due-time order, on the caller's goroutine.
type Scheduler struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	pending []*timer
}

var _ clock.Scheduler = (*Scheduler)(nil)

type timer struct {
	s   *Scheduler
	due time.Time
	seq uint64
	fn  func()
}

// New returns a Scheduler whose clock starts at start.
func New(start time.Time) *Scheduler {
	return &Scheduler{now: start}
}

// Now returns the fake current time.
func (s *Scheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// AfterFunc registers f to run once the clock has advanced by d.
// A non-positive d fires on the next Advance, including Advance(0).
func (s *Scheduler) AfterFunc(d time.Duration, f func()) clock.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d < 0 {
		d = 0
	}
	s.seq++
	t := &timer{s: s, due: s.now.Add(d), seq: s.seq, fn: f}
	s.pending = append(s.pending, t)
	return t
}

// Stop removes t from the pending set.
func (t *timer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i, p := range t.s.pending {
		if p == t {
			t.s.pending = append(t.s.pending[:i], t.s.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Advance moves the clock forward by d, firing every callback that comes due.
// Callbacks scheduled by a firing callback also fire if they fall inside the window.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		next := s.popDueLocked(target)
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		s.now = next.due
		s.mu.Unlock()

		next.fn()
	}
}

// Pending returns the number of timers that have not fired or been stopped.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// NextDue returns the delay until the earliest pending timer.
func (s *Scheduler) NextDue() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return 0, false
	}
	s.sortLocked()
	return s.pending[0].due.Sub(s.now), true
}

func (s *Scheduler) popDueLocked(target time.Time) *timer {
	if len(s.pending) == 0 {
		return nil
	}
	s.sortLocked()
	first := s.pending[0]
	if first.due.After(target) {
		return nil
	}
	s.pending = s.pending[1:]
	return first
}

func (s *Scheduler) sortLocked() {
	sort.SliceStable(s.pending, func(i, j int) bool {
		if s.pending[i].due.Equal(s.pending[j].due) {
			return s.pending[i].seq < s.pending[j].seq
		}
		return s.pending[i].due.Before(s.pending[j].due)
	})
}
