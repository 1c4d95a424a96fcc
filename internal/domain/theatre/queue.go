package theatre

import (
	"context"
	"strings"

	"github.com/ehr/theatre/pkg/pagination"
)

const (
	// DefaultQueueLimit is the fixed page size of the case queue.
	DefaultQueueLimit = 40
	queueSortField    = "scheduled_at"
	queueSortOrder    = "desc"
)

// TriState is an optional boolean filter.
type TriState string

const (
	TriUnset TriState = ""
	TriTrue  TriState = "true"
	TriFalse TriState = "false"
)

// ParseTriState maps "true"/"false" (any case) and leaves everything else unset.
func ParseTriState(s string) TriState {
	switch strings.ToLower(Sanitize(s)) {
	case "true", "yes", "1":
		return TriTrue
	case "false", "no", "0":
		return TriFalse
	}
	return TriUnset
}

// QueueScope is a preset passed through to the backend.
type QueueScope string

const (
	ScopeActive    QueueScope = "ACTIVE"
	ScopeFinalized QueueScope = "FINALIZED"
	ScopeAll       QueueScope = "ALL"
)

// Filters is the queue filter state. Search is the raw text as typed; the
// queue is queried with the debounced value.
type Filters struct {
	Search           string     `json:"search"`
	QueueScope       QueueScope `json:"queue_scope,omitempty"`
	Stage            Stage      `json:"stage,omitempty"`
	Status           CaseStatus `json:"status,omitempty"`
	RoomID           string     `json:"room_id,omitempty"`
	AnesthesiaStatus string     `json:"anesthesia_status,omitempty"`
	PostOpStatus     string     `json:"post_op_status,omitempty"`
	Finalized        TriState   `json:"finalized,omitempty"`
	ScheduledFrom    string     `json:"scheduled_from,omitempty"`
	ScheduledTo      string     `json:"scheduled_to,omitempty"`
}

// scopeParams adds tenant and facility scoping unless the viewer can manage
// every tenant.
func scopeParams(q Params, c Capability) {
	if c.CanManageAllTenants {
		return
	}
	if tenant := Sanitize(c.TenantID); tenant != "" {
		q["tenant_id"] = tenant
	}
	if facility := Sanitize(c.FacilityID); facility != "" {
		q["facility_id"] = facility
	}
}

// BuildQueueParams turns filter state into list parameters. search is the
// debounced search text.
func BuildQueueParams(f Filters, search string, c Capability, limit int) Params {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	q := Params{
		"sort_by": queueSortField,
		"order":   queueSortOrder,
	}
	pagination.Params{Page: 1, Limit: limit}.Apply(q)
	scopeParams(q, c)

	set := func(k, v string) {
		if v = Sanitize(v); v != "" {
			q[k] = v
		}
	}
	set("search", search)
	set("queue_scope", string(f.QueueScope))
	set("stage", string(f.Stage))
	set("status", string(f.Status))
	set("room_id", ToPublicID(f.RoomID))
	set("anesthesia_status", f.AnesthesiaStatus)
	set("post_op_status", f.PostOpStatus)
	if f.Finalized == TriTrue || f.Finalized == TriFalse {
		q["finalized"] = string(f.Finalized)
	}

	from, okFrom := ToISO(f.ScheduledFrom)
	to, okTo := ToISO(f.ScheduledTo)
	if okFrom && okTo {
		q["scheduled_from"] = from
		q["scheduled_to"] = to
	}
	return q
}

// MergeCase replaces the entry matching snap's public identifier
// (case-insensitive) or puts snap at the front. The input is not modified.
func MergeCase(list []TheatreCase, snap TheatreCase) []TheatreCase {
	key := snap.RouteID()
	out := make([]TheatreCase, 0, len(list)+1)
	replaced := false
	for _, c := range list {
		if !replaced && key != "" && strings.EqualFold(c.RouteID(), key) {
			out = append(out, snap)
			replaced = true
			continue
		}
		if !replaced && key == "" && snap.ID != "" && c.ID == snap.ID {
			out = append(out, snap)
			replaced = true
			continue
		}
		out = append(out, c)
	}
	if !replaced {
		out = append([]TheatreCase{snap}, out...)
	}
	return out
}

// LoadQueue fetches the queue and toggles the page-level loading indicator.
func (w *Workflow) LoadQueue(ctx context.Context) error {
	return w.loadQueue(ctx, false)
}

// LoadQueueLight fetches the queue without touching the loading indicator.
func (w *Workflow) LoadQueueLight(ctx context.Context) error {
	return w.loadQueue(ctx, true)
}

func (w *Workflow) loadQueue(ctx context.Context, light bool) error {
	capability, ok := w.readGate()
	if !ok {
		return nil
	}

	w.mu.Lock()
	params := BuildQueueParams(w.state.Filters, w.appliedSearch, capability, w.opts.QueueLimit)
	if !light {
		w.state.Loading = true
	}
	w.mu.Unlock()
	if !light {
		w.notify()
	}

	list, err := w.cases.List(ctx, params)

	w.mu.Lock()
	if !light {
		w.state.Loading = false
	}
	if err != nil || list == nil {
		w.state.LoadError = &LoadError{Target: LoadQueue, Message: MsgLoadQueue}
		w.mu.Unlock()
		w.notify()
		w.logger.Error().Err(err).Bool("light", light).Msg("theatre queue load failed")
		if err == nil {
			err = errEmptyResponse
		}
		return err
	}

	w.state.Queue = append([]TheatreCase(nil), list.Items...)
	w.state.Pagination = list.Pagination
	if w.state.LoadError != nil && w.state.LoadError.Target == LoadQueue {
		w.state.LoadError = nil
	}
	autoSelect := ""
	if w.state.SelectedID == "" {
		for i := range list.Items {
			if id := list.Items[i].RouteID(); id != "" {
				autoSelect = id
				break
			}
		}
		w.state.SelectedID = autoSelect
	}
	w.mu.Unlock()
	w.notify()

	w.logger.Debug().Int("count", len(list.Items)).Bool("light", light).Msg("theatre queue loaded")

	if autoSelect != "" {
		publishCaseID(w.router, autoSelect)
		// snapshot failures surface through LoadError
		_ = w.loadSnapshot(ctx, autoSelect)
	}
	return nil
}
