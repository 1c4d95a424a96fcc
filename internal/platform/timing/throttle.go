package timing

import (
	"sync"
	"time"
)

// Throttle is a leading-edge throttle: the first call passes, and any call
// arriving less than the interval after the last accepted one is dropped
// rather than queued.
type Throttle struct {
	mu       sync.Mutex
	clock    Clock
	interval time.Duration
	last     time.Time
	fired    bool
}

// NewThrottle returns a Throttle with the given interval. A nil clock uses
// wall time.
func NewThrottle(clock Clock, interval time.Duration) *Throttle {
	if clock == nil {
		clock = NewClock()
	}
	return &Throttle{clock: clock, interval: interval}
}

// Allow reports whether the caller may proceed, recording the acceptance.
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if t.fired && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	t.fired = true
	return true
}

// Reset forgets the last accepted call.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fired = false
	t.last = time.Time{}
}
