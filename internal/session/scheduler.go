package session

import (
	"sync"
	"time"
)

// DefaultReconnectDelay is the pause before a reconnect attempt.
const DefaultReconnectDelay = 10 * time.Second

// Scheduler runs at most one delayed action at a time. Scheduling replaces
// any pending action, so repeated failures never stack retries.
type Scheduler struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewScheduler creates a Scheduler. A non-positive delay selects
// DefaultReconnectDelay.
func NewScheduler(delay time.Duration) *Scheduler {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &Scheduler{delay: delay}
}

// Delay returns the configured delay.
func (s *Scheduler) Delay() time.Duration {
	return s.delay
}

// Schedule arms fn to run after the delay, cancelling any pending action.
func (s *Scheduler) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		if s.timer != t {
			// Replaced or cancelled after the timer already fired.
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()

		fn()
	})
	s.timer = t
}

// Cancel drops the pending action. It reports whether one was pending.
func (s *Scheduler) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer == nil {
		return false
	}
	s.timer.Stop()
	s.timer = nil
	return true
}

// Pending reports whether an action is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
