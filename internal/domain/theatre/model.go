package theatre

import (
	"strings"
	"time"
)

// Stage is the clinical sub-phase of a theatre case.
type Stage string

const (
	StageUnset       Stage = ""
	StagePreOp       Stage = "PRE_OP"
	StageSignIn      Stage = "SIGN_IN"
	StageTimeOut     Stage = "TIME_OUT"
	StageIntraOp     Stage = "INTRA_OP"
	StageSignOut     Stage = "SIGN_OUT"
	StagePostOp      Stage = "POST_OP"
	StagePACUHandoff Stage = "PACU_HANDOFF"
	StageCompleted   Stage = "COMPLETED"
)

var stageOrder = []Stage{
	StagePreOp, StageSignIn, StageTimeOut, StageIntraOp,
	StageSignOut, StagePostOp, StagePACUHandoff, StageCompleted,
}

// Stages returns the canonical progression order. Transitions are not
// enforced against it; any stage may be chosen at any time.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	for _, known := range stageOrder {
		if s == known {
			return true
		}
	}
	return false
}

// CaseStatus is the administrative status of a theatre case.
type CaseStatus string

const (
	StatusScheduled  CaseStatus = "SCHEDULED"
	StatusInProgress CaseStatus = "IN_PROGRESS"
	StatusCompleted  CaseStatus = "COMPLETED"
	StatusCancelled  CaseStatus = "CANCELLED"
)

func (s CaseStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// RecordStatus marks a clinical sub-record as draft or signed off.
type RecordStatus string

const (
	RecordDraft RecordStatus = "DRAFT"
	RecordFinal RecordStatus = "FINAL"
)

// ResourceType classifies a resource allocation.
type ResourceType string

const (
	ResourceRoom      ResourceType = "ROOM"
	ResourceStaff     ResourceType = "STAFF"
	ResourceEquipment ResourceType = "EQUIPMENT"
)

func (t ResourceType) Valid() bool {
	switch t {
	case ResourceRoom, ResourceStaff, ResourceEquipment:
		return true
	}
	return false
}

// RecordType names what finalizeRecord and reopenRecord act on.
type RecordType string

const (
	RecordTheatreCase      RecordType = "THEATRE_CASE"
	RecordAnesthesiaRecord RecordType = "ANESTHESIA_RECORD"
	RecordPostOpNote       RecordType = "POST_OP_NOTE"
)

func (t RecordType) Valid() bool {
	switch t {
	case RecordTheatreCase, RecordAnesthesiaRecord, RecordPostOpNote:
		return true
	}
	return false
}

// Reference points at another record by public identifier. The server may
// send the display text under several keys; Display picks the first usable one.
type Reference struct {
	PublicID    string `json:"id,omitempty"`
	Label       string `json:"label,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Name        string `json:"name,omitempty"`
}

// ID returns the routable identifier, or "" when only an opaque UUID is known.
func (r *Reference) ID() string {
	if r == nil {
		return ""
	}
	return ToPublicID(r.PublicID)
}

// Display returns the best label for the reference.
func (r *Reference) Display() string {
	if r == nil {
		return ""
	}
	for _, candidate := range []string{r.Label, r.DisplayName, r.Name} {
		if v := Sanitize(candidate); v != "" {
			return v
		}
	}
	return r.ID()
}

// ChecklistSummary is derived server-side.
type ChecklistSummary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// ChecklistItem is keyed by ItemCode within a case and phase.
type ChecklistItem struct {
	Phase     Stage  `json:"phase"`
	ItemCode  string `json:"item_code"`
	ItemLabel string `json:"item_label,omitempty"`
	IsChecked bool   `json:"is_checked"`
	Notes     string `json:"notes,omitempty"`
}

// AnesthesiaObservation is an append-only vitals or event entry.
type AnesthesiaObservation struct {
	ObservedAt      *time.Time `json:"observed_at,omitempty"`
	ObservationType string     `json:"observation_type,omitempty"`
	MetricKey       string     `json:"metric_key,omitempty"`
	MetricValue     string     `json:"metric_value,omitempty"`
	Unit            string     `json:"unit,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

type AnesthesiaRecord struct {
	ID            string                  `json:"id"`
	AnesthetistID string                  `json:"anesthetist_id,omitempty"`
	Notes         string                  `json:"notes,omitempty"`
	RecordStatus  RecordStatus            `json:"record_status,omitempty"`
	Observations  []AnesthesiaObservation `json:"observations,omitempty"`
}

type PostOpNote struct {
	ID           string       `json:"id"`
	Note         string       `json:"note"`
	RecordStatus RecordStatus `json:"record_status,omitempty"`
}

// ResourceAllocation holds a room, staff member or equipment item against a
// case. An allocation without ReleasedAt is still held.
type ResourceAllocation struct {
	ID           string       `json:"id"`
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   string       `json:"resource_id"`
	ResourceName string       `json:"resource_label,omitempty"`
	StaffRole    string       `json:"staff_role,omitempty"`
	AllocatedAt  *time.Time   `json:"allocated_at,omitempty"`
	ReleasedAt   *time.Time   `json:"released_at,omitempty"`
	Notes        string       `json:"notes,omitempty"`
}

func (a ResourceAllocation) Active() bool {
	return a.ReleasedAt == nil
}

// TimelineEntry is one audit event on a case. Entries are append-only.
type TimelineEntry struct {
	Type  string     `json:"type"`
	Label string     `json:"label"`
	At    *time.Time `json:"at,omitempty"`
}

// TheatreCase is the workflow aggregate: one surgical episode and the
// sub-records it owns.
type TheatreCase struct {
	ID                     string               `json:"id"`
	PublicID               string               `json:"human_friendly_id"`
	Stage                  Stage                `json:"stage"`
	Status                 CaseStatus           `json:"status"`
	Encounter              *Reference           `json:"encounter,omitempty"`
	Room                   *Reference           `json:"room,omitempty"`
	Surgeon                *Reference           `json:"surgeon,omitempty"`
	Anesthetist            *Reference           `json:"anesthetist,omitempty"`
	PatientName            string               `json:"patient_display_name,omitempty"`
	ProcedureName          string               `json:"procedure_name,omitempty"`
	ScheduledAt            *time.Time           `json:"scheduled_at,omitempty"`
	IsFinalized            bool                 `json:"is_finalized"`
	ChecklistSummary       ChecklistSummary     `json:"checklist_summary"`
	ChecklistItems         []ChecklistItem      `json:"checklist_items,omitempty"`
	LatestAnesthesiaRecord *AnesthesiaRecord    `json:"latest_anesthesia_record,omitempty"`
	LatestPostOpNote       *PostOpNote          `json:"latest_post_op_note,omitempty"`
	ResourceAllocations    []ResourceAllocation `json:"resource_allocations,omitempty"`
	Timeline               []TimelineEntry      `json:"timeline,omitempty"`
}

// RouteID is the identifier the case is shown and routed under. Opaque
// UUIDs are never surfaced.
func (c *TheatreCase) RouteID() string {
	if c == nil {
		return ""
	}
	return ToPublicID(c.PublicID)
}

// Matches reports whether id names this case, by public identifier
// (case-insensitive) or internal identifier.
func (c *TheatreCase) Matches(id string) bool {
	id = Sanitize(id)
	if c == nil || id == "" {
		return false
	}
	if pid := c.RouteID(); pid != "" && strings.EqualFold(pid, id) {
		return true
	}
	return c.ID != "" && strings.EqualFold(c.ID, id)
}

// ActiveAllocations returns the allocations still held.
func (c *TheatreCase) ActiveAllocations() []ResourceAllocation {
	if c == nil {
		return nil
	}
	var out []ResourceAllocation
	for _, a := range c.ResourceAllocations {
		if a.Active() {
			out = append(out, a)
		}
	}
	return out
}

// Option is one entry of a picker list.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Capability is what the capability oracle reports for one scope key.
type Capability struct {
	CanRead             bool   `json:"can_read"`
	CanWrite            bool   `json:"can_write"`
	CanManageAllTenants bool   `json:"can_manage_all_tenants"`
	TenantID            string `json:"tenant_id,omitempty"`
	FacilityID          string `json:"facility_id,omitempty"`
	IsResolved          bool   `json:"is_resolved"`
}

// HasScope reports whether list queries can be scoped for this viewer.
func (c Capability) HasScope() bool {
	return c.CanManageAllTenants || Sanitize(c.TenantID) != ""
}
