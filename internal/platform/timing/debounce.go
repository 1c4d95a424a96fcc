package timing

import (
	"sync"
	"time"
)

// Debouncer delays a call until no new trigger has arrived for the wait
// period. At most one call is pending at any time: a new trigger stops the
// pending timer before arming a fresh one. Calls that already started are
// never interrupted.
type Debouncer struct {
	mu    sync.Mutex
	clock Clock
	wait  time.Duration
	timer Timer
	gen   uint64
}

// NewDebouncer returns a Debouncer with the given wait. A nil clock uses
// wall time.
func NewDebouncer(clock Clock, wait time.Duration) *Debouncer {
	if clock == nil {
		clock = NewClock()
	}
	return &Debouncer{clock: clock, wait: wait}
}

// Trigger schedules fn, replacing any call that has not fired yet.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.wait, func() {
		d.mu.Lock()
		if gen != d.gen {
			// superseded between firing and acquiring the lock
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Pending reports whether a call is armed.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
