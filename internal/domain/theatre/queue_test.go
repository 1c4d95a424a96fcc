package theatre

import "testing"

func TestBuildQueueParams_Defaults(t *testing.T) {
	q := BuildQueueParams(Filters{}, "", fullAccess(), 0)
	want := map[string]string{
		"page":        "1",
		"limit":       "40",
		"sort_by":     "scheduled_at",
		"order":       "desc",
		"tenant_id":   "T1",
		"facility_id": "F1",
	}
	if len(q) != len(want) {
		t.Fatalf("expected %d params, got %v", len(want), q)
	}
	for k, v := range want {
		if q[k] != v {
			t.Errorf("%s = %q, want %q", k, q[k], v)
		}
	}
}

func TestBuildQueueParams_ManageAllTenantsOmitsScope(t *testing.T) {
	c := Capability{CanRead: true, CanManageAllTenants: true, TenantID: "T1", IsResolved: true}
	q := BuildQueueParams(Filters{}, "", c, 40)
	if _, ok := q["tenant_id"]; ok {
		t.Error("expected no tenant_id")
	}
	if _, ok := q["facility_id"]; ok {
		t.Error("expected no facility_id")
	}
}

func TestBuildQueueParams_Filters(t *testing.T) {
	f := Filters{
		QueueScope:       ScopeFinalized,
		Status:           StatusCompleted,
		RoomID:           " RM-1 ",
		AnesthesiaStatus: "FINAL",
		PostOpStatus:     "DRAFT",
		Finalized:        TriFalse,
	}
	q := BuildQueueParams(f, " hip ", fullAccess(), 40)
	checks := map[string]string{
		"search":            "hip",
		"queue_scope":       "FINALIZED",
		"status":            "COMPLETED",
		"room_id":           "RM-1",
		"anesthesia_status": "FINAL",
		"post_op_status":    "DRAFT",
		"finalized":         "false",
	}
	for k, v := range checks {
		if q[k] != v {
			t.Errorf("%s = %q, want %q", k, q[k], v)
		}
	}
}

func TestBuildQueueParams_ScheduledRangeNeedsBothEnds(t *testing.T) {
	q := BuildQueueParams(Filters{ScheduledFrom: "2024-03-01"}, "", fullAccess(), 40)
	if _, ok := q["scheduled_from"]; ok {
		t.Error("expected half-open range to be omitted")
	}

	q = BuildQueueParams(Filters{ScheduledFrom: "2024-03-01", ScheduledTo: "garbage"}, "", fullAccess(), 40)
	if _, ok := q["scheduled_to"]; ok {
		t.Error("expected unparseable range to be omitted")
	}

	q = BuildQueueParams(Filters{ScheduledFrom: "2024-03-01", ScheduledTo: "2024-03-02"}, "", fullAccess(), 40)
	if q["scheduled_from"] != "2024-03-01T00:00:00.000Z" || q["scheduled_to"] != "2024-03-02T00:00:00.000Z" {
		t.Errorf("unexpected range: %q .. %q", q["scheduled_from"], q["scheduled_to"])
	}
}

func TestParseTriState(t *testing.T) {
	tests := map[string]TriState{
		"true":  TriTrue,
		"TRUE":  TriTrue,
		"false": TriFalse,
		"":      TriUnset,
		"maybe": TriUnset,
	}
	for in, want := range tests {
		if got := ParseTriState(in); got != want {
			t.Errorf("ParseTriState(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMergeCase(t *testing.T) {
	list := sampleCases()

	updated := TheatreCase{ID: list[1].ID, PublicID: "tc-2", Stage: StageTimeOut}
	merged := MergeCase(list, updated)
	if len(merged) != 2 {
		t.Fatalf("expected replace in place, got %d entries", len(merged))
	}
	if merged[1].Stage != StageTimeOut {
		t.Errorf("expected TC-2 replaced, got %+v", merged[1])
	}
	if list[1].Stage != StageSignIn {
		t.Error("input list was modified")
	}

	fresh := TheatreCase{PublicID: "TC-3"}
	merged = MergeCase(list, fresh)
	if len(merged) != 3 || merged[0].PublicID != "TC-3" {
		t.Errorf("expected TC-3 prepended, got %+v", merged)
	}
}
