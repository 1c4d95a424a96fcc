package theatre

import (
	"strings"
	"time"

	"github.com/ehr/theatre/internal/platform/timing"
)

// DefaultRealtimeEvent is the workflow-update event the workflow listens to.
const DefaultRealtimeEvent = "theatre.workflow.updated"

// Coalescer turns a stream of workflow-update events into bounded refreshes.
// Events arriving within the throttle interval of the last processed event
// are dropped. A processed event refreshes the selected snapshot when it
// names the selected case, and light-refreshes the queue otherwise.
type Coalescer struct {
	throttle   *timing.Throttle
	isSelected func(caseKey string) bool
	onSelected func()
	onOther    func()
}

// NewCoalescer returns a Coalescer. A nil clock uses wall time.
func NewCoalescer(clock timing.Clock, interval time.Duration, isSelected func(string) bool, onSelected, onOther func()) *Coalescer {
	return &Coalescer{
		throttle:   timing.NewThrottle(clock, interval),
		isSelected: isSelected,
		onSelected: onSelected,
		onOther:    onOther,
	}
}

// Handle processes one event. It reports whether the event was acted on.
func (c *Coalescer) Handle(ev RealtimeEvent) bool {
	if !c.throttle.Allow() {
		return false
	}
	if key := ev.CaseKey(); key != "" && c.isSelected != nil && c.isSelected(key) {
		if c.onSelected != nil {
			c.onSelected()
		}
		return true
	}
	if c.onOther != nil {
		c.onOther()
	}
	return true
}

func (w *Workflow) isSelected(key string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.state.SelectedID != "" && strings.EqualFold(w.state.SelectedID, key) {
		return true
	}
	return w.state.Selected != nil && w.state.Selected.Matches(key)
}

func (w *Workflow) onRealtimeSelected() {
	_ = w.RefreshSnapshot(w.ctx())
}

func (w *Workflow) onRealtimeOther() {
	_ = w.LoadQueueLight(w.ctx())
}

// HandleRealtimeEvent feeds one event through the coalescer.
func (w *Workflow) HandleRealtimeEvent(ev RealtimeEvent) bool {
	return w.realtime.Handle(ev)
}

// Subscribed reports whether the realtime subscription is active.
func (w *Workflow) Subscribed() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.unsubscribe != nil
}

// syncSubscription subscribes while the view is visible, online and
// readable, and unsubscribes otherwise.
func (w *Workflow) syncSubscription() {
	if w.bus == nil {
		return
	}
	w.mu.Lock()
	c := w.state.Capability
	want := w.state.Visible && w.state.Online && c.IsResolved && c.CanRead && !w.state.AccessDenied
	unsub := w.unsubscribe
	if !want && unsub != nil {
		w.unsubscribe = nil
	}
	w.mu.Unlock()

	switch {
	case !want && unsub != nil:
		unsub()
		w.logger.Debug().Msg("realtime unsubscribed")
	case want && unsub == nil:
		cancel, err := w.bus.Subscribe(w.opts.RealtimeEvent, func(ev RealtimeEvent) {
			w.HandleRealtimeEvent(ev)
		})
		if err != nil {
			w.logger.Warn().Err(err).Str("event", w.opts.RealtimeEvent).Msg("realtime subscribe failed")
			return
		}
		w.mu.Lock()
		if w.unsubscribe != nil {
			w.mu.Unlock()
			cancel()
			return
		}
		w.unsubscribe = cancel
		w.mu.Unlock()
		w.logger.Debug().Str("event", w.opts.RealtimeEvent).Msg("realtime subscribed")
	}
}
