package theatre

import (
	"context"
	"sync"
)

// MemoryRouter is a Router that keeps the route in memory. It backs the
// console session, where the presentation client reads the route over HTTP.
type MemoryRouter struct {
	mu      sync.RWMutex
	path    string
	state   RouteState
	history []string
}

// NewMemoryRouter starts at path, or at BasePath when path is empty.
func NewMemoryRouter(path string) *MemoryRouter {
	if path == "" {
		path = BasePath
	}
	r := &MemoryRouter{}
	r.Replace(path)
	return r
}

// Replace navigates to path. Paths outside the workflow keep an empty state.
func (r *MemoryRouter) Replace(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = path
	r.state = ParseRoute(path)
	r.history = append(r.history, path)
}

// SetParams updates query parameters in place.
func (r *MemoryRouter) SetParams(partial map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = r.state.Apply(partial)
	r.path = r.state.Path()
}

func (r *MemoryRouter) Params() RouteState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Path returns the current route path.
func (r *MemoryRouter) Path() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.path
}

// History returns every path passed to Replace, oldest first.
func (r *MemoryRouter) History() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.history...)
}

// Navigate replaces the route and follows it: a direct id selects that case,
// a legacy pair is resolved, and the bare list clears the selection.
func (w *Workflow) Navigate(ctx context.Context, path string) error {
	if w.router == nil {
		return nil
	}
	w.router.Replace(path)
	route := w.router.Params()
	if route.ID == "" && w.ResolveLegacyRoute(ctx) {
		route = w.router.Params()
	}
	if route.ID == "" {
		w.mu.Lock()
		w.state.SelectedID = ""
		w.state.Selected = nil
		w.mu.Unlock()
		w.notify()
		return nil
	}
	w.mu.Lock()
	w.state.SelectedID = route.ID
	w.mu.Unlock()
	return w.loadSnapshot(ctx, route.ID)
}

// RoutePath returns the current route path, including paths outside the
// workflow such as the exit path after an access denial.
func (w *Workflow) RoutePath() string {
	if w.router == nil {
		return BasePath
	}
	if p, ok := w.router.(interface{ Path() string }); ok {
		return p.Path()
	}
	return w.router.Params().Path()
}
