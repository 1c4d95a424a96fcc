package theatre

import (
	"context"
	"fmt"
)

// Dispatch runs one command through the write gate. The viewer must be
// online and hold write capability; the payload must pass the command's
// required-field check. Only then is the backend called, and only a
// non-empty snapshot changes local state. Post-write queue and option
// refreshes follow the command table.
func (w *Workflow) Dispatch(ctx context.Context, name CommandName, payload any) (*TheatreCase, error) {
	cmd, ok := commands[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	log := w.logger.With().Str("command", string(name)).Logger()

	w.mu.RLock()
	online := w.state.Online
	capability := w.state.Capability
	current := w.state.Selected
	w.mu.RUnlock()

	if !online {
		w.setMessage(MsgOffline)
		log.Info().Msg("command refused: offline")
		return nil, &CommandError{Command: name, Kind: KindOffline, Message: MsgOffline}
	}
	if !capability.CanWrite {
		w.setMessage(MsgReadOnly)
		log.Info().Msg("command refused: read-only")
		return nil, &CommandError{Command: name, Kind: KindReadOnly, Message: MsgReadOnly}
	}

	caseID := ""
	if cmd.needsCase {
		if current == nil {
			w.setMessage(MsgSelectCase)
			return nil, &CommandError{Command: name, Kind: KindValidation, Message: MsgSelectCase}
		}
		caseID = current.RouteID()
		if caseID == "" {
			caseID = current.ID
		}
	}

	prepared, msg := cmd.prepare(payload, current)
	if msg != "" {
		w.setMessage(msg)
		log.Debug().Str("reason", msg).Msg("command refused: validation")
		return nil, &CommandError{Command: name, Kind: KindValidation, Message: msg}
	}

	w.mu.Lock()
	w.state.Saving = true
	w.mu.Unlock()
	w.notify()

	snap, err := cmd.call(ctx, w.cases, caseID, prepared)

	w.mu.Lock()
	w.state.Saving = false
	w.mu.Unlock()

	if err != nil || snap == nil {
		w.setMessage(MsgUnableToSave)
		log.Error().Err(err).Str("case_id", caseID).Msg("command not applied")
		return nil, &CommandError{Command: name, Kind: KindWrite, Message: MsgUnableToSave, Err: err}
	}

	w.mu.Lock()
	w.state.Message = ""
	w.mu.Unlock()
	w.applySnapshot(snap, caseID)
	log.Info().Str("case_id", snap.RouteID()).Msg("command applied")

	if cmd.refreshQueue {
		_ = w.LoadQueueLight(ctx)
	}
	if cmd.refreshOptions {
		_ = w.options.Refresh(ctx)
	}
	return snap, nil
}

func (w *Workflow) Start(ctx context.Context, in StartInput) (*TheatreCase, error) {
	return w.Dispatch(ctx, CmdStart, in)
}

func (w *Workflow) UpdateStage(ctx context.Context, in StageInput) (*TheatreCase, error) {
	return w.Dispatch(ctx, CmdUpdateStage, in)
}

func (w *Workflow) ToggleChecklistItem(ctx context.Context, in ChecklistToggleInput) (*TheatreCase, error) {
	return w.Dispatch(ctx, CmdToggleChecklistItem, in)
}

func (w *Workflow) UpsertAnesthesiaRecord(ctx context.Context, in AnesthesiaRecordInput) (*TheatreCase, error) {
	return w.Dispatch(ctx, CmdUpsertAnesthesiaRecord, in)
}

func (w *Workflow) AddAnesthesiaObservation(ctx context.Context, in ObservationInput) (*TheatreCase, error) {
	return w.Dispatch(ctx, CmdAddAnesthesiaObservation, in)
}

func (w *Workflow) UpsertPostOpNote(ctx context.Context, in PostOpNoteInput) (*TheatreCase, error) {
	return w.Dispatch(ctx, CmdUpsertPostOpNote, in)
}

func (w *Workflow) AssignResource(ctx context.Context, in AssignResourceInput) (*TheatreCase, error) {
	return w.Dispatch(ctx, CmdAssignResource, in)
}

func (w *Workflow) ReleaseResource(ctx context.Context, in ReleaseResourceInput) (*TheatreCase, error) {
	return w.Dispatch(ctx, CmdReleaseResource, in)
}

func (w *Workflow) FinalizeRecord(ctx context.Context, in FinalizeInput) (*TheatreCase, error) {
	return w.Dispatch(ctx, CmdFinalizeRecord, in)
}

func (w *Workflow) ReopenRecord(ctx context.Context, in ReopenInput) (*TheatreCase, error) {
	return w.Dispatch(ctx, CmdReopenRecord, in)
}
