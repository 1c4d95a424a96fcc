package theatre

import (
	"context"
	"strings"
)

// ResolveLegacyRoute translates a legacy (resource, legacyId) route into the
// current case identifier. It only runs when the route has no id, and at
// most once per pair. On success the route is replaced with the canonical id
// and the carried panel, action, resource and legacyId; on failure nothing
// happens and the queue stays usable.
func (w *Workflow) ResolveLegacyRoute(ctx context.Context) bool {
	if w.legacy == nil || w.router == nil {
		return false
	}
	if _, ok := w.readGate(); !ok {
		return false
	}
	route := w.router.Params()
	if route.ID != "" || route.Resource == "" || route.LegacyID == "" {
		return false
	}

	key := strings.ToLower(route.Resource) + "\x00" + route.LegacyID
	w.mu.Lock()
	if w.legacyTried[key] {
		w.mu.Unlock()
		return false
	}
	w.legacyTried[key] = true
	w.mu.Unlock()

	res, err := w.legacy.ResolveLegacyRoute(ctx, route.Resource, route.LegacyID)
	if err != nil || res == nil {
		w.logger.Debug().Err(err).Str("resource", route.Resource).Str("legacy_id", route.LegacyID).
			Msg("legacy route not resolved")
		return false
	}
	id := ToPublicID(res.TheatreCaseID)
	if id == "" {
		return false
	}

	next := RouteState{
		ID:       id,
		Panel:    route.Panel,
		Action:   route.Action,
		Resource: route.Resource,
		LegacyID: route.LegacyID,
	}
	if p := ParsePanel(res.Panel); p != "" {
		next.Panel = p
	}
	if a := Sanitize(res.Action); a != "" {
		next.Action = a
	}
	w.router.Replace(next.Path())

	w.mu.Lock()
	w.state.SelectedID = id
	w.mu.Unlock()
	w.notify()

	w.logger.Info().Str("resource", route.Resource).Str("legacy_id", route.LegacyID).
		Str("case_id", id).Msg("legacy route resolved")
	return true
}
