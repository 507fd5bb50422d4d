package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNewScheduler_DefaultDelay(t *testing.T) {
	if got := NewScheduler(0).Delay(); got != DefaultReconnectDelay {
		t.Errorf("Delay() = %v, want %v", got, DefaultReconnectDelay)
	}
	if got := NewScheduler(time.Second).Delay(); got != time.Second {
		t.Errorf("Delay() = %v, want 1s", got)
	}
}

func TestScheduler_FiresOnce(t *testing.T) {
	s := NewScheduler(10 * time.Millisecond)
	var fired atomic.Int32

	s.Schedule(func() { fired.Add(1) })
	if !s.Pending() {
		t.Error("Pending() = false after Schedule")
	}

	waitFor(t, time.Second, "scheduled action", func() bool { return fired.Load() == 1 })
	time.Sleep(30 * time.Millisecond)

	if got := fired.Load(); got != 1 {
		t.Errorf("fired %d times, want 1", got)
	}
	if s.Pending() {
		t.Error("Pending() = true after firing")
	}
}

func TestScheduler_ReplaceKeepsSingleSlot(t *testing.T) {
	s := NewScheduler(40 * time.Millisecond)
	var first, second atomic.Int32

	s.Schedule(func() { first.Add(1) })
	time.Sleep(10 * time.Millisecond)
	s.Schedule(func() { second.Add(1) })

	time.Sleep(150 * time.Millisecond)

	if got := first.Load(); got != 0 {
		t.Errorf("replaced action fired %d times, want 0", got)
	}
	if got := second.Load(); got != 1 {
		t.Errorf("replacement fired %d times, want 1", got)
	}
}

func TestScheduler_Cancel(t *testing.T) {
	s := NewScheduler(20 * time.Millisecond)
	var fired atomic.Int32

	s.Schedule(func() { fired.Add(1) })
	if !s.Cancel() {
		t.Error("Cancel() = false, want true with pending action")
	}
	if s.Cancel() {
		t.Error("second Cancel() = true, want false")
	}

	time.Sleep(60 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("cancelled action fired %d times", got)
	}
}
