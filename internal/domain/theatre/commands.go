package theatre

import (
	"context"
	"strings"
)

// CommandName identifies one mutation of the workflow.
type CommandName string

const (
	CmdStart                    CommandName = "start"
	CmdUpdateStage              CommandName = "updateStage"
	CmdToggleChecklistItem      CommandName = "toggleChecklistItem"
	CmdUpsertAnesthesiaRecord   CommandName = "upsertAnesthesiaRecord"
	CmdAddAnesthesiaObservation CommandName = "addAnesthesiaObservation"
	CmdUpsertPostOpNote         CommandName = "upsertPostOpNote"
	CmdAssignResource           CommandName = "assignResource"
	CmdReleaseResource          CommandName = "releaseResource"
	CmdFinalizeRecord           CommandName = "finalizeRecord"
	CmdReopenRecord             CommandName = "reopenRecord"
)

// StartInput opens a theatre case from a source encounter.
type StartInput struct {
	EncounterID   string `json:"encounter_id"`
	RoomID        string `json:"room_id,omitempty"`
	SurgeonID     string `json:"surgeon_id,omitempty"`
	AnesthetistID string `json:"anesthetist_id,omitempty"`
	ScheduledAt   string `json:"scheduled_at,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// StageInput moves a case to a stage, a status, or both.
type StageInput struct {
	Stage  Stage      `json:"stage,omitempty"`
	Status CaseStatus `json:"status,omitempty"`
	Notes  string     `json:"notes,omitempty"`
}

type ChecklistToggleInput struct {
	Phase     Stage  `json:"phase"`
	ItemCode  string `json:"item_code"`
	ItemLabel string `json:"item_label,omitempty"`
	IsChecked bool   `json:"is_checked"`
	Notes     string `json:"notes,omitempty"`
}

// AnesthesiaRecordInput creates the anesthesia record or, when ID is set,
// updates it.
type AnesthesiaRecordInput struct {
	ID            string       `json:"id,omitempty"`
	AnesthetistID string       `json:"anesthetist_id,omitempty"`
	Notes         string       `json:"notes,omitempty"`
	RecordStatus  RecordStatus `json:"record_status,omitempty"`
}

type ObservationInput struct {
	AnesthesiaRecordID string `json:"anesthesia_record_id,omitempty"`
	ObservedAt         string `json:"observed_at,omitempty"`
	ObservationType    string `json:"observation_type,omitempty"`
	MetricKey          string `json:"metric_key,omitempty"`
	MetricValue        string `json:"metric_value,omitempty"`
	Unit               string `json:"unit,omitempty"`
	Notes              string `json:"notes,omitempty"`
}

type PostOpNoteInput struct {
	ID           string       `json:"id,omitempty"`
	Note         string       `json:"note"`
	RecordStatus RecordStatus `json:"record_status,omitempty"`
}

type AssignResourceInput struct {
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   string       `json:"resource_id"`
	StaffRole    string       `json:"staff_role,omitempty"`
	Notes        string       `json:"notes,omitempty"`
}

// ReleaseResourceInput names the allocation to release by its own id or by
// the held resource's id.
type ReleaseResourceInput struct {
	AllocationID string `json:"allocation_id,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

type FinalizeInput struct {
	RecordType RecordType `json:"record_type"`
	RecordID   string     `json:"record_id,omitempty"`
}

type ReopenInput struct {
	RecordType RecordType `json:"record_type,omitempty"`
	RecordID   string     `json:"record_id,omitempty"`
	Reason     string     `json:"reason"`
}

// command is one row of the dispatcher table.
type command struct {
	needsCase      bool
	refreshQueue   bool
	refreshOptions bool
	// prepare validates and normalizes the payload. A non-empty message
	// refuses the command before any network call.
	prepare func(payload any, current *TheatreCase) (any, string)
	call    func(ctx context.Context, api CaseAPI, caseID string, payload any) (*TheatreCase, error)
}

var commands = map[CommandName]command{
	CmdStart: {
		refreshQueue: true,
		prepare:      prepareStart,
		call: func(ctx context.Context, api CaseAPI, _ string, p any) (*TheatreCase, error) {
			return api.Start(ctx, p.(StartInput))
		},
	},
	CmdUpdateStage: {
		needsCase:    true,
		refreshQueue: true,
		prepare:      prepareStage,
		call: func(ctx context.Context, api CaseAPI, id string, p any) (*TheatreCase, error) {
			return api.UpdateStage(ctx, id, p.(StageInput))
		},
	},
	CmdToggleChecklistItem: {
		needsCase: true,
		prepare:   prepareChecklist,
		call: func(ctx context.Context, api CaseAPI, id string, p any) (*TheatreCase, error) {
			return api.ToggleChecklistItem(ctx, id, p.(ChecklistToggleInput))
		},
	},
	CmdUpsertAnesthesiaRecord: {
		needsCase: true,
		prepare:   prepareAnesthesiaRecord,
		call: func(ctx context.Context, api CaseAPI, id string, p any) (*TheatreCase, error) {
			return api.UpsertAnesthesiaRecord(ctx, id, p.(AnesthesiaRecordInput))
		},
	},
	CmdAddAnesthesiaObservation: {
		needsCase: true,
		prepare:   prepareObservation,
		call: func(ctx context.Context, api CaseAPI, id string, p any) (*TheatreCase, error) {
			return api.AddAnesthesiaObservation(ctx, id, p.(ObservationInput))
		},
	},
	CmdUpsertPostOpNote: {
		needsCase: true,
		prepare:   preparePostOpNote,
		call: func(ctx context.Context, api CaseAPI, id string, p any) (*TheatreCase, error) {
			return api.UpsertPostOpNote(ctx, id, p.(PostOpNoteInput))
		},
	},
	CmdAssignResource: {
		needsCase:      true,
		refreshQueue:   true,
		refreshOptions: true,
		prepare:        prepareAssign,
		call: func(ctx context.Context, api CaseAPI, id string, p any) (*TheatreCase, error) {
			return api.AssignResource(ctx, id, p.(AssignResourceInput))
		},
	},
	CmdReleaseResource: {
		needsCase:      true,
		refreshQueue:   true,
		refreshOptions: true,
		prepare:        prepareRelease,
		call: func(ctx context.Context, api CaseAPI, id string, p any) (*TheatreCase, error) {
			return api.ReleaseResource(ctx, id, p.(ReleaseResourceInput))
		},
	},
	CmdFinalizeRecord: {
		needsCase:    true,
		refreshQueue: true,
		prepare:      prepareFinalize,
		call: func(ctx context.Context, api CaseAPI, id string, p any) (*TheatreCase, error) {
			return api.FinalizeRecord(ctx, id, p.(FinalizeInput))
		},
	},
	CmdReopenRecord: {
		needsCase:    true,
		refreshQueue: true,
		prepare:      prepareReopen,
		call: func(ctx context.Context, api CaseAPI, id string, p any) (*TheatreCase, error) {
			return api.ReopenRecord(ctx, id, p.(ReopenInput))
		},
	},
}

// CommandNames lists the dispatchable commands in a stable order.
func CommandNames() []CommandName {
	return []CommandName{
		CmdStart, CmdUpdateStage, CmdToggleChecklistItem, CmdUpsertAnesthesiaRecord,
		CmdAddAnesthesiaObservation, CmdUpsertPostOpNote, CmdAssignResource,
		CmdReleaseResource, CmdFinalizeRecord, CmdReopenRecord,
	}
}

// CommandEffects reports the post-write refreshes a command triggers.
func CommandEffects(name CommandName) (refreshQueue, refreshOptions bool, ok bool) {
	cmd, ok := commands[name]
	return cmd.refreshQueue, cmd.refreshOptions, ok
}

// CommandNeedsCase reports whether the command acts on the selected case.
func CommandNeedsCase(name CommandName) bool {
	return commands[name].needsCase
}

// NewPayload returns a zero payload of the type the command expects, for
// decoding requests.
func NewPayload(name CommandName) (any, bool) {
	switch name {
	case CmdStart:
		return &StartInput{}, true
	case CmdUpdateStage:
		return &StageInput{}, true
	case CmdToggleChecklistItem:
		return &ChecklistToggleInput{}, true
	case CmdUpsertAnesthesiaRecord:
		return &AnesthesiaRecordInput{}, true
	case CmdAddAnesthesiaObservation:
		return &ObservationInput{}, true
	case CmdUpsertPostOpNote:
		return &PostOpNoteInput{}, true
	case CmdAssignResource:
		return &AssignResourceInput{}, true
	case CmdReleaseResource:
		return &ReleaseResourceInput{}, true
	case CmdFinalizeRecord:
		return &FinalizeInput{}, true
	case CmdReopenRecord:
		return &ReopenInput{}, true
	}
	return nil, false
}

// deref accepts a payload by value or by pointer.
func deref[T any](payload any) (T, bool) {
	switch v := payload.(type) {
	case T:
		return v, true
	case *T:
		if v != nil {
			return *v, true
		}
	}
	var zero T
	return zero, false
}

func prepareStart(payload any, _ *TheatreCase) (any, string) {
	in, ok := deref[StartInput](payload)
	if !ok {
		return nil, MsgInvalidInput
	}
	in.EncounterID = Sanitize(in.EncounterID)
	if in.EncounterID == "" {
		return nil, "Select an encounter to start a theatre case."
	}
	in.RoomID = Sanitize(in.RoomID)
	in.SurgeonID = Sanitize(in.SurgeonID)
	in.AnesthetistID = Sanitize(in.AnesthetistID)
	in.Notes = Sanitize(in.Notes)
	if raw := Sanitize(in.ScheduledAt); raw != "" {
		iso, ok := ToISO(raw)
		if !ok {
			return nil, "Enter a valid scheduled time."
		}
		in.ScheduledAt = iso
	} else {
		in.ScheduledAt = ""
	}
	return in, ""
}

func prepareStage(payload any, _ *TheatreCase) (any, string) {
	in, ok := deref[StageInput](payload)
	if !ok {
		return nil, MsgInvalidInput
	}
	in.Stage = Stage(strings.ToUpper(Sanitize(string(in.Stage))))
	in.Status = CaseStatus(strings.ToUpper(Sanitize(string(in.Status))))
	in.Notes = Sanitize(in.Notes)
	if in.Stage == StageUnset && in.Status == "" {
		return nil, "Choose a stage or status to update."
	}
	if in.Stage != StageUnset && !in.Stage.Valid() {
		return nil, "Choose a valid stage."
	}
	if in.Status != "" && !in.Status.Valid() {
		return nil, "Choose a valid status."
	}
	return in, ""
}

func prepareChecklist(payload any, _ *TheatreCase) (any, string) {
	in, ok := deref[ChecklistToggleInput](payload)
	if !ok {
		return nil, MsgInvalidInput
	}
	in.Phase = Stage(strings.ToUpper(Sanitize(string(in.Phase))))
	in.ItemCode = Sanitize(in.ItemCode)
	in.ItemLabel = Sanitize(in.ItemLabel)
	in.Notes = Sanitize(in.Notes)
	if in.Phase == StageUnset || in.ItemCode == "" {
		return nil, "Checklist phase and item are required."
	}
	return in, ""
}

func prepareAnesthesiaRecord(payload any, current *TheatreCase) (any, string) {
	in, ok := deref[AnesthesiaRecordInput](payload)
	if !ok {
		return nil, MsgInvalidInput
	}
	in.ID = Sanitize(in.ID)
	if in.ID == "" && current != nil && current.LatestAnesthesiaRecord != nil {
		in.ID = Sanitize(current.LatestAnesthesiaRecord.ID)
	}
	in.AnesthetistID = Sanitize(in.AnesthetistID)
	in.Notes = Sanitize(in.Notes)
	if in.RecordStatus == "" {
		in.RecordStatus = RecordDraft
	}
	if in.RecordStatus != RecordDraft && in.RecordStatus != RecordFinal {
		return nil, "Choose a valid record status."
	}
	return in, ""
}

func prepareObservation(payload any, current *TheatreCase) (any, string) {
	in, ok := deref[ObservationInput](payload)
	if !ok {
		return nil, MsgInvalidInput
	}
	in.ObservationType = Sanitize(in.ObservationType)
	in.Notes = Sanitize(in.Notes)
	if in.ObservationType == "" && in.Notes == "" {
		return nil, "Enter an observation type or notes."
	}
	in.AnesthesiaRecordID = Sanitize(in.AnesthesiaRecordID)
	if in.AnesthesiaRecordID == "" && current != nil && current.LatestAnesthesiaRecord != nil {
		in.AnesthesiaRecordID = Sanitize(current.LatestAnesthesiaRecord.ID)
	}
	if raw := Sanitize(in.ObservedAt); raw != "" {
		iso, ok := ToISO(raw)
		if !ok {
			return nil, "Enter a valid observation time."
		}
		in.ObservedAt = iso
	} else {
		in.ObservedAt = ""
	}
	in.MetricKey = Sanitize(in.MetricKey)
	in.MetricValue = Sanitize(in.MetricValue)
	in.Unit = Sanitize(in.Unit)
	return in, ""
}

func preparePostOpNote(payload any, current *TheatreCase) (any, string) {
	in, ok := deref[PostOpNoteInput](payload)
	if !ok {
		return nil, MsgInvalidInput
	}
	in.Note = Sanitize(in.Note)
	if in.Note == "" {
		return nil, "Post-operative note text is required."
	}
	in.ID = Sanitize(in.ID)
	if in.ID == "" && current != nil && current.LatestPostOpNote != nil {
		in.ID = Sanitize(current.LatestPostOpNote.ID)
	}
	if in.RecordStatus == "" {
		in.RecordStatus = RecordDraft
	}
	if in.RecordStatus != RecordDraft && in.RecordStatus != RecordFinal {
		return nil, "Choose a valid record status."
	}
	return in, ""
}

func prepareAssign(payload any, _ *TheatreCase) (any, string) {
	in, ok := deref[AssignResourceInput](payload)
	if !ok {
		return nil, MsgInvalidInput
	}
	in.ResourceType = ResourceType(strings.ToUpper(Sanitize(string(in.ResourceType))))
	in.ResourceID = Sanitize(in.ResourceID)
	in.StaffRole = strings.ToUpper(Sanitize(in.StaffRole))
	in.Notes = Sanitize(in.Notes)
	if !in.ResourceType.Valid() || in.ResourceID == "" {
		return nil, "Resource type and resource are required."
	}
	if in.ResourceType != ResourceStaff {
		in.StaffRole = ""
	}
	return in, ""
}

// prepareRelease fills in the allocation id from the case's held
// allocations when only the resource id was given.
func prepareRelease(payload any, current *TheatreCase) (any, string) {
	in, ok := deref[ReleaseResourceInput](payload)
	if !ok {
		return nil, MsgInvalidInput
	}
	in.AllocationID = Sanitize(in.AllocationID)
	in.ResourceID = Sanitize(in.ResourceID)
	in.Notes = Sanitize(in.Notes)
	if in.AllocationID == "" && in.ResourceID == "" {
		return nil, "Choose the allocation or resource to release."
	}
	if in.AllocationID == "" {
		for _, a := range current.ActiveAllocations() {
			if a.ResourceID == in.ResourceID {
				in.AllocationID = a.ID
				break
			}
		}
	}
	return in, ""
}

func prepareFinalize(payload any, _ *TheatreCase) (any, string) {
	in, ok := deref[FinalizeInput](payload)
	if !ok {
		return nil, MsgInvalidInput
	}
	in.RecordType = RecordType(strings.ToUpper(Sanitize(string(in.RecordType))))
	in.RecordID = Sanitize(in.RecordID)
	if !in.RecordType.Valid() {
		return nil, "Choose the record to finalize."
	}
	return in, ""
}

func prepareReopen(payload any, _ *TheatreCase) (any, string) {
	in, ok := deref[ReopenInput](payload)
	if !ok {
		return nil, MsgInvalidInput
	}
	in.Reason = Sanitize(in.Reason)
	if in.Reason == "" {
		return nil, "A reason is required to reopen a record."
	}
	in.RecordType = RecordType(strings.ToUpper(Sanitize(string(in.RecordType))))
	if in.RecordType == "" {
		in.RecordType = RecordTheatreCase
	}
	if !in.RecordType.Valid() {
		return nil, "Choose the record to reopen."
	}
	in.RecordID = Sanitize(in.RecordID)
	return in, ""
}
