// Package debounce coalesces bursts of triggers into one delayed action.
package debounce

import (
	"sync"
	"time"
)

// Timer is the subset of *time.Timer the scheduler needs.
type Timer interface {
	Stop() bool
}

// AfterFunc starts a timer that calls f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Scheduler runs at most one pending action. Schedule replaces any action that
// has not fired yet, so N triggers inside the window produce one call.
// Goroutine-safe.
type Scheduler struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   Timer
	gen     uint64 // bumped on every Schedule/Cancel; stale timer callbacks compare it
	pending bool

	// After creates timers. Tests replace it with a manual clock.
	After AfterFunc
}

// New creates a Scheduler with the given coalescing window.
func New(delay time.Duration) *Scheduler {
	return &Scheduler{delay: delay, After: realAfterFunc}
}

// Delay returns the coalescing window.
func (s *Scheduler) Delay() time.Duration {
	return s.delay
}

// Schedule cancels any pending action and arranges for fn to run after the
// window. fn runs on the timer's goroutine.
func (s *Scheduler) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.pending = true
	s.timer = s.After(s.delay, func() {
		s.mu.Lock()
		if gen != s.gen {
			// Replaced or cancelled after the timer already fired.
			s.mu.Unlock()
			return
		}
		s.pending = false
		s.timer = nil
		s.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending action. Returns true if one was pending.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	was := s.pending
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.pending = false
	return was
}

// Pending reports whether an action is scheduled and has not fired.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}
