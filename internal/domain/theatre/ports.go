package theatre

import (
	"context"

	"github.com/ehr/theatre/pkg/pagination"
)

// Params is a flat list query sent to a backend list endpoint.
type Params map[string]string

// CaseList is one page of the case queue.
type CaseList struct {
	Items      []TheatreCase   `json:"items"`
	Pagination pagination.Meta `json:"pagination"`
}

// GetOptions controls how much of a case snapshot is returned.
type GetOptions struct {
	IncludeTimeline bool
}

// LegacyRoute is the translation of an old per-module record reference.
type LegacyRoute struct {
	TheatreCaseID string `json:"theatre_case_id"`
	Panel         string `json:"panel,omitempty"`
	Action        string `json:"action,omitempty"`
}

// CaseAPI is the theatre-case backend. Every write returns the full updated
// snapshot; a nil snapshot with a nil error means the write was not applied.
type CaseAPI interface {
	List(ctx context.Context, params Params) (*CaseList, error)
	Get(ctx context.Context, id string, opts GetOptions) (*TheatreCase, error)

	Start(ctx context.Context, in StartInput) (*TheatreCase, error)
	UpdateStage(ctx context.Context, caseID string, in StageInput) (*TheatreCase, error)
	ToggleChecklistItem(ctx context.Context, caseID string, in ChecklistToggleInput) (*TheatreCase, error)
	UpsertAnesthesiaRecord(ctx context.Context, caseID string, in AnesthesiaRecordInput) (*TheatreCase, error)
	AddAnesthesiaObservation(ctx context.Context, caseID string, in ObservationInput) (*TheatreCase, error)
	UpsertPostOpNote(ctx context.Context, caseID string, in PostOpNoteInput) (*TheatreCase, error)
	AssignResource(ctx context.Context, caseID string, in AssignResourceInput) (*TheatreCase, error)
	ReleaseResource(ctx context.Context, caseID string, in ReleaseResourceInput) (*TheatreCase, error)
	FinalizeRecord(ctx context.Context, caseID string, in FinalizeInput) (*TheatreCase, error)
	ReopenRecord(ctx context.Context, caseID string, in ReopenInput) (*TheatreCase, error)
}

// LegacyRouteResolver translates (resource kind, legacy id) pairs.
type LegacyRouteResolver interface {
	ResolveLegacyRoute(ctx context.Context, kind, legacyID string) (*LegacyRoute, error)
}

// ReferenceAPI lists the reference data behind the option directories. Each
// call accepts search, scope, limit, sort_by and order parameters.
type ReferenceAPI interface {
	ListRooms(ctx context.Context, params Params) ([]Room, error)
	ListStaff(ctx context.Context, params Params) ([]StaffProfile, error)
	ListEquipment(ctx context.Context, params Params) ([]Equipment, error)
	ListEncounters(ctx context.Context, params Params) ([]Encounter, error)
}

// CapabilityOracle answers what the current viewer may do under a scope key.
type CapabilityOracle interface {
	Capabilities(scopeKey string) Capability
}

// RealtimeEvent is the payload of a workflow-update event.
type RealtimeEvent struct {
	TheatreCasePublicID string `json:"theatre_case_public_id,omitempty"`
	TheatreCaseID       string `json:"theatre_case_id,omitempty"`
}

// CaseKey returns the best identifier carried by the event.
func (e RealtimeEvent) CaseKey() string {
	if id := Sanitize(e.TheatreCasePublicID); id != "" {
		return id
	}
	return Sanitize(e.TheatreCaseID)
}

// RealtimeBus delivers named events. The returned function unsubscribes.
type RealtimeBus interface {
	Subscribe(event string, handler func(RealtimeEvent)) (func(), error)
}

// Router is the navigation collaborator.
type Router interface {
	Replace(path string)
	Params() RouteState
}

// ParamSetter is implemented by routers that can update query parameters in
// place without a full navigation.
type ParamSetter interface {
	SetParams(partial map[string]string)
}
