// Package theatre orchestrates a single surgical case through the theatre
// workflow. It owns the case queue, the selected case snapshot and the picker
// option sets, and is the only path through which case state changes: every
// write goes through the command dispatcher and the returned snapshot
// replaces local state.
package theatre

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/theatre/internal/platform/timing"
	"github.com/ehr/theatre/pkg/pagination"
)

// DefaultScopeKey is the capability scope the workflow checks.
const DefaultScopeKey = "clinical.theatre_flow"

var errEmptyResponse = errors.New("theatre: empty response")

// Options tunes the workflow. Zero values take the defaults.
type Options struct {
	ScopeKey         string
	ExitPath         string
	RealtimeEvent    string
	SearchDebounce   time.Duration
	RealtimeThrottle time.Duration
	QueueLimit       int
	OptionLimit      int
}

func (o Options) withDefaults() Options {
	if o.ScopeKey == "" {
		o.ScopeKey = DefaultScopeKey
	}
	if o.ExitPath == "" {
		o.ExitPath = "/dashboard"
	}
	if o.RealtimeEvent == "" {
		o.RealtimeEvent = DefaultRealtimeEvent
	}
	if o.SearchDebounce <= 0 {
		o.SearchDebounce = 280 * time.Millisecond
	}
	if o.RealtimeThrottle <= 0 {
		o.RealtimeThrottle = 700 * time.Millisecond
	}
	if o.QueueLimit <= 0 {
		o.QueueLimit = DefaultQueueLimit
	}
	if o.OptionLimit <= 0 || o.OptionLimit > MaxOptionLimit {
		o.OptionLimit = MaxOptionLimit
	}
	return o
}

// Dependencies are the collaborators the workflow drives. Legacy, Bus and
// Clock are optional.
type Dependencies struct {
	Cases      CaseAPI
	Legacy     LegacyRouteResolver
	References ReferenceAPI
	Oracle     CapabilityOracle
	Bus        RealtimeBus
	Router     Router
	Clock      timing.Clock
	Logger     zerolog.Logger
	// OnChange is called after every state change with a copy of the state.
	OnChange func(State)
}

// State is a point-in-time copy of everything the workflow holds.
type State struct {
	Capability   Capability              `json:"capability"`
	Online       bool                    `json:"online"`
	Visible      bool                    `json:"visible"`
	AccessDenied bool                    `json:"access_denied"`
	Filters      Filters                 `json:"filters"`
	Queue        []TheatreCase           `json:"queue"`
	Pagination   pagination.Meta         `json:"pagination"`
	SelectedID   string                  `json:"selected_id,omitempty"`
	Selected     *TheatreCase            `json:"selected,omitempty"`
	Options      map[OptionKind][]Option `json:"options"`
	Loading      bool                    `json:"loading"`
	Saving       bool                    `json:"saving"`
	LoadError    *LoadError              `json:"load_error,omitempty"`
	Message      string                  `json:"message,omitempty"`
	Route        RouteState              `json:"route"`
}

// Workflow is the theatre-case orchestrator. It is safe for concurrent use;
// each cache has a single writer path and the last completed write wins.
type Workflow struct {
	cases      CaseAPI
	legacy     LegacyRouteResolver
	references ReferenceAPI
	oracle     CapabilityOracle
	bus        RealtimeBus
	router     Router
	clock      timing.Clock
	logger     zerolog.Logger
	onChange   func(State)
	opts       Options

	mu            sync.RWMutex
	state         State
	appliedSearch string
	baseCtx       context.Context
	legacyTried   map[string]bool

	searchDebounce *timing.Debouncer
	options        *OptionDirectories
	realtime       *Coalescer
	unsubscribe    func()
}

// New returns a Workflow. It starts online and visible; call Mount to load.
func New(deps Dependencies, opts Options) *Workflow {
	opts = opts.withDefaults()
	clock := deps.Clock
	if clock == nil {
		clock = timing.NewClock()
	}
	legacy := deps.Legacy
	if legacy == nil {
		if r, ok := deps.Cases.(LegacyRouteResolver); ok {
			legacy = r
		}
	}
	w := &Workflow{
		cases:          deps.Cases,
		legacy:         legacy,
		references:     deps.References,
		oracle:         deps.Oracle,
		bus:            deps.Bus,
		router:         deps.Router,
		clock:          clock,
		logger:         deps.Logger.With().Str("component", "theatre_workflow").Logger(),
		onChange:       deps.OnChange,
		opts:           opts,
		baseCtx:        context.Background(),
		legacyTried:    make(map[string]bool),
		searchDebounce: timing.NewDebouncer(clock, opts.SearchDebounce),
		state: State{
			Online:  true,
			Visible: true,
			Options: emptyOptions(),
			Filters: Filters{QueueScope: ScopeActive},
		},
	}
	w.options = newOptionDirectories(w)
	w.realtime = NewCoalescer(clock, opts.RealtimeThrottle, w.isSelected, w.onRealtimeSelected, w.onRealtimeOther)
	return w
}

// Mount resolves capabilities and performs the initial loads: legacy route
// resolution, queue, option directories, the routed snapshot and the
// realtime subscription. ctx also bounds the background fetches triggered
// later by debounced searches and realtime events.
func (w *Workflow) Mount(ctx context.Context) error {
	w.mu.Lock()
	w.baseCtx = ctx
	w.mu.Unlock()

	capability := w.refreshCapability()
	if !capability.IsResolved {
		w.logger.Debug().Msg("capabilities not resolved yet; deferring mount")
		return nil
	}
	if !capability.CanRead || !capability.HasScope() {
		w.mu.Lock()
		w.state.AccessDenied = true
		w.mu.Unlock()
		w.notify()
		if w.router != nil {
			w.router.Replace(w.opts.ExitPath)
		}
		w.logger.Warn().Bool("can_read", capability.CanRead).Bool("has_scope", capability.HasScope()).
			Msg("theatre workflow access denied")
		return ErrAccessDenied
	}

	route := w.route()
	if route.ID != "" {
		w.mu.Lock()
		w.state.SelectedID = route.ID
		w.mu.Unlock()
	} else {
		w.ResolveLegacyRoute(ctx)
	}

	_ = w.LoadQueue(ctx)
	_ = w.options.Refresh(ctx)

	w.mu.RLock()
	selected, loaded := w.state.SelectedID, w.state.Selected
	w.mu.RUnlock()
	if selected != "" && (loaded == nil || !loaded.Matches(selected)) {
		_ = w.loadSnapshot(ctx, selected)
	}

	w.syncSubscription()
	return nil
}

// Close drops the realtime subscription and any pending debounced fetch.
func (w *Workflow) Close() {
	w.searchDebounce.Cancel()
	w.options.cancel()
	w.mu.Lock()
	unsub := w.unsubscribe
	w.unsubscribe = nil
	w.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// State returns a copy of the current state.
func (w *Workflow) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.copyStateLocked()
}

func (w *Workflow) copyStateLocked() State {
	s := w.state
	s.Queue = append([]TheatreCase(nil), w.state.Queue...)
	s.Options = make(map[OptionKind][]Option, len(w.state.Options))
	for k, v := range w.state.Options {
		s.Options[k] = append([]Option(nil), v...)
	}
	if w.state.LoadError != nil {
		le := *w.state.LoadError
		s.LoadError = &le
	}
	if w.router != nil {
		s.Route = w.router.Params()
	}
	return s
}

func (w *Workflow) notify() {
	if w.onChange == nil {
		return
	}
	w.onChange(w.State())
}

func (w *Workflow) ctx() context.Context {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.baseCtx
}

func (w *Workflow) route() RouteState {
	if w.router == nil {
		return RouteState{}
	}
	return w.router.Params()
}

func (w *Workflow) refreshCapability() Capability {
	var c Capability
	if w.oracle != nil {
		c = w.oracle.Capabilities(w.opts.ScopeKey)
	}
	w.mu.Lock()
	w.state.Capability = c
	w.mu.Unlock()
	return c
}

// readGate reports whether reads may run: capabilities resolved, read
// access with a scope, and online.
func (w *Workflow) readGate() (Capability, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c := w.state.Capability
	ok := c.IsResolved && c.CanRead && c.HasScope() && w.state.Online && !w.state.AccessDenied
	return c, ok
}

func (w *Workflow) setMessage(msg string) {
	w.mu.Lock()
	w.state.Message = msg
	w.mu.Unlock()
	w.notify()
}

// ClearMessage dismisses the inline message.
func (w *Workflow) ClearMessage() {
	w.setMessage("")
}

// DismissLoadError hides the load error without retrying.
func (w *Workflow) DismissLoadError() {
	w.mu.Lock()
	w.state.LoadError = nil
	w.mu.Unlock()
	w.notify()
}

// Retry repeats the load that failed.
func (w *Workflow) Retry(ctx context.Context) error {
	w.mu.Lock()
	le := w.state.LoadError
	w.state.LoadError = nil
	selected := w.state.SelectedID
	w.mu.Unlock()
	if le == nil {
		return nil
	}
	if le.Target == LoadSnapshot {
		id := le.CaseID
		if id == "" {
			id = selected
		}
		return w.loadSnapshot(ctx, id)
	}
	return w.LoadQueue(ctx)
}

// SetFilters replaces every filter except the search text and reloads the
// queue immediately. Search goes through SetSearch.
func (w *Workflow) SetFilters(ctx context.Context, f Filters) error {
	w.mu.Lock()
	f.Search = w.state.Filters.Search
	f.RoomID = ToPublicID(f.RoomID)
	w.state.Filters = f
	w.mu.Unlock()
	w.notify()
	return w.LoadQueue(ctx)
}

// SetSearch records the search text and schedules a debounced queue fetch.
// Typing again within the debounce window replaces the pending fetch.
func (w *Workflow) SetSearch(text string) {
	w.mu.Lock()
	w.state.Filters.Search = text
	w.mu.Unlock()
	w.notify()

	w.searchDebounce.Trigger(func() {
		w.mu.Lock()
		w.appliedSearch = Sanitize(w.state.Filters.Search)
		w.mu.Unlock()
		_ = w.LoadQueue(w.ctx())
	})
}

// ApplySearch records the search text and applies it at once, dropping any
// pending debounced fetch. The next queue load carries it.
func (w *Workflow) ApplySearch(text string) {
	w.searchDebounce.Cancel()
	w.mu.Lock()
	w.state.Filters.Search = text
	w.appliedSearch = Sanitize(text)
	w.mu.Unlock()
	w.notify()
}

// SetOptionSearch records the search text of one option directory and
// schedules its debounced fetch.
func (w *Workflow) SetOptionSearch(kind OptionKind, text string) error {
	return w.options.SetSearch(kind, text)
}

// RefreshOptions refetches all four option directories.
func (w *Workflow) RefreshOptions(ctx context.Context) error {
	return w.options.Refresh(ctx)
}

// SetPanel records the active detail panel in the route.
func (w *Workflow) SetPanel(panel Panel) {
	if w.router == nil {
		return
	}
	if setter, ok := w.router.(ParamSetter); ok {
		setter.SetParams(map[string]string{"panel": string(panel)})
	} else {
		route := w.router.Params()
		route.Panel = panel
		w.router.Replace(route.Path())
	}
	w.notify()
}

// SetOnline flips connectivity. Going offline drops the realtime
// subscription and turns every command into a refused no-op; coming back
// online resubscribes and refreshes.
func (w *Workflow) SetOnline(ctx context.Context, online bool) {
	w.mu.Lock()
	changed := w.state.Online != online
	w.state.Online = online
	if online && w.state.Message == MsgOffline {
		w.state.Message = ""
	}
	w.mu.Unlock()
	if !changed {
		return
	}
	w.notify()
	w.syncSubscription()
	if online {
		_ = w.LoadQueueLight(ctx)
		if w.selectedID() != "" {
			_ = w.RefreshSnapshot(ctx)
		}
	}
}

// SetVisible tells the workflow whether its view is on screen.
func (w *Workflow) SetVisible(visible bool) {
	w.mu.Lock()
	changed := w.state.Visible != visible
	w.state.Visible = visible
	w.mu.Unlock()
	if changed {
		w.notify()
		w.syncSubscription()
	}
}

// RefreshCapabilities re-reads the capability oracle and updates the
// subscription accordingly.
func (w *Workflow) RefreshCapabilities() Capability {
	c := w.refreshCapability()
	w.notify()
	w.syncSubscription()
	return c
}

func (w *Workflow) selectedID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state.SelectedID
}
