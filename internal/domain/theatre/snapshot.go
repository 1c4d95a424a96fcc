package theatre

import "context"

// Select makes id the selected case, publishes it to the route and loads its
// snapshot. An empty id clears the selection and returns to the list route.
func (w *Workflow) Select(ctx context.Context, id string) error {
	id = ToPublicID(id)

	w.mu.Lock()
	w.state.SelectedID = id
	if id == "" || (w.state.Selected != nil && !w.state.Selected.Matches(id)) {
		w.state.Selected = nil
	}
	w.mu.Unlock()
	w.notify()

	publishCaseID(w.router, id)
	if id == "" {
		return nil
	}
	return w.loadSnapshot(ctx, id)
}

// RefreshSnapshot refetches the selected case.
func (w *Workflow) RefreshSnapshot(ctx context.Context) error {
	id := w.selectedID()
	if id == "" {
		return nil
	}
	return w.loadSnapshot(ctx, id)
}

func (w *Workflow) loadSnapshot(ctx context.Context, id string) error {
	if _, ok := w.readGate(); !ok {
		return nil
	}
	id = Sanitize(id)
	if id == "" {
		return nil
	}

	snap, err := w.cases.Get(ctx, id, GetOptions{IncludeTimeline: true})
	if err != nil || snap == nil {
		w.mu.Lock()
		w.state.LoadError = &LoadError{Target: LoadSnapshot, Message: MsgLoadSnapshot, CaseID: id}
		w.mu.Unlock()
		w.notify()
		w.logger.Error().Err(err).Str("case_id", id).Msg("theatre snapshot load failed")
		if err == nil {
			err = errEmptyResponse
		}
		return err
	}

	w.mu.Lock()
	if w.state.LoadError != nil && w.state.LoadError.Target == LoadSnapshot {
		w.state.LoadError = nil
	}
	w.mu.Unlock()
	w.applySnapshot(snap, id)
	return nil
}

// applySnapshot is the single place a server snapshot enters local state:
// it becomes the selected case, is merged into the queue, and when the
// server's public identifier differs from the one used to fetch it, the
// server's identifier is adopted and written to the route.
func (w *Workflow) applySnapshot(snap *TheatreCase, requestedID string) {
	canonical := snap.RouteID()
	requested := ToPublicID(requestedID)

	w.mu.Lock()
	selected := canonical
	if selected == "" {
		selected = requested
	}
	w.state.SelectedID = selected
	w.state.Selected = snap
	w.state.Queue = MergeCase(w.state.Queue, *snap)
	w.mu.Unlock()
	w.notify()

	if canonical != "" && (canonical != requested || w.route().ID != canonical) {
		w.logger.Debug().Str("requested", requestedID).Str("canonical", canonical).
			Msg("adopting server case identifier")
		publishCaseID(w.router, canonical)
	}
}
