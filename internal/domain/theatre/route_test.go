package theatre

import "testing"

func TestParseRoute(t *testing.T) {
	r := ParseRoute("/theatre-flow?id=TC-1&panel=CHECKLIST&action=edit&resource=anesthesia&legacyId=AR-9")
	if r.ID != "TC-1" || r.Panel != PanelChecklist || r.Action != "edit" {
		t.Errorf("unexpected route: %+v", r)
	}
	if r.Resource != "anesthesia" || r.LegacyID != "AR-9" {
		t.Errorf("unexpected legacy params: %+v", r)
	}
}

func TestParseRoute_DropsUUIDAndUnknownPanel(t *testing.T) {
	r := ParseRoute("/theatre-flow?id=5b7f3c1e-8f1a-4d8e-9c51-1f2a3b4c5d6e&panel=billing")
	if r.ID != "" {
		t.Errorf("expected UUID id dropped, got %q", r.ID)
	}
	if r.Panel != "" {
		t.Errorf("expected unknown panel dropped, got %q", r.Panel)
	}
}

func TestRouteState_Path(t *testing.T) {
	if got := (RouteState{}).Path(); got != BasePath {
		t.Errorf("expected %s, got %q", BasePath, got)
	}
	r := RouteState{ID: "TC-1", Panel: PanelPostOp}
	if got := r.Path(); got != "/theatre-flow?id=TC-1&panel=post-op" {
		t.Errorf("unexpected path %q", got)
	}
	if back := ParseRoute(r.Path()); back != r {
		t.Errorf("expected %+v, got %+v", r, back)
	}
}

func TestRouteState_Apply(t *testing.T) {
	r := RouteState{ID: "TC-1", Panel: PanelChecklist, Action: "edit"}
	next := r.Apply(map[string]string{"id": "TC-2", "action": ""})
	if next.ID != "TC-2" || next.Panel != PanelChecklist || next.Action != "" {
		t.Errorf("unexpected state: %+v", next)
	}
}

func TestPublishCaseID_PrefersSetParams(t *testing.T) {
	router := NewMemoryRouter("/theatre-flow?panel=timeline")
	publishCaseID(router, "TC-7")

	if got := router.Params(); got.ID != "TC-7" || got.Panel != PanelTimeline {
		t.Errorf("unexpected route: %+v", got)
	}
	if len(router.History()) != 1 {
		t.Errorf("expected in-place update without navigation, got %v", router.History())
	}
}

func TestPublishCaseID_FallsBackToReplace(t *testing.T) {
	router := &replaceRouter{}
	router.Replace("/theatre-flow?panel=resources")
	publishCaseID(router, "TC-7")

	if got := router.last(); got != "/theatre-flow?id=TC-7&panel=resources" {
		t.Errorf("unexpected path %q", got)
	}
}

func TestPublishCaseID_EmptyGoesToList(t *testing.T) {
	router := NewMemoryRouter("/theatre-flow?id=TC-1&panel=timeline")
	publishCaseID(router, "  ")
	if router.Path() != BasePath {
		t.Errorf("expected %s, got %q", BasePath, router.Path())
	}

	replace := &replaceRouter{}
	publishCaseID(replace, "5b7f3c1e-8f1a-4d8e-9c51-1f2a3b4c5d6e")
	if replace.last() != BasePath {
		t.Errorf("expected UUID to fall back to %s, got %q", BasePath, replace.last())
	}
}

func TestWorkflow_SetPanelWithoutParamSetter(t *testing.T) {
	router := &replaceRouter{}
	router.Replace("/theatre-flow?id=TC-1")
	w := New(Dependencies{Cases: newMockCases(), Router: router}, Options{})

	w.SetPanel(PanelAnesthesia)
	if got := router.last(); got != "/theatre-flow?id=TC-1&panel=anesthesia" {
		t.Errorf("unexpected path %q", got)
	}
}
