package caseapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ehr/theatre/internal/domain/theatre"
)

func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: serverURL + "/", Token: "test-token", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected error for empty BaseURL")
	}
	if _, err := NewClient(Config{BaseURL: "not a url"}); err == nil {
		t.Error("expected error for relative BaseURL")
	}
}

func TestList_SendsParamsAndUnwrapsEnvelope(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /theatre-flows": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer test-token" {
				writeJSON(w, http.StatusUnauthorized, map[string]any{
					"error": map[string]any{"code": "UNAUTHORIZED", "message": "bad token"},
				})
				return
			}
			q := r.URL.Query()
			if q.Get("stage") != "INTRA_OP" || q.Get("limit") != "40" {
				t.Errorf("unexpected query: %s", r.URL.RawQuery)
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{
					"items":      []map[string]any{{"id": "u1", "human_friendly_id": "TC-1", "stage": "INTRA_OP"}},
					"pagination": map[string]any{"page": 1, "limit": 40, "total": 1, "total_pages": 1},
				},
			})
		},
	})

	list, err := newTestClient(t, srv.URL).List(context.Background(), theatre.Params{"stage": "INTRA_OP", "limit": "40"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].PublicID != "TC-1" || list.Items[0].Stage != theatre.StageIntraOp {
		t.Errorf("unexpected items: %+v", list.Items)
	}
	if list.Pagination.Total != 1 {
		t.Errorf("expected total 1, got %d", list.Pagination.Total)
	}
}

func TestGet_IncludesTimeline(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /theatre-flows/{id}": func(w http.ResponseWriter, r *http.Request) {
			if r.PathValue("id") != "TC-1" {
				t.Errorf("unexpected id %q", r.PathValue("id"))
			}
			if r.URL.Query().Get("include_timeline") != "true" {
				t.Error("expected include_timeline=true")
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{"id": "u1", "human_friendly_id": "TC-1",
					"timeline": []map[string]any{{"type": "STAGE", "label": "Moved to SIGN_IN"}}},
			})
		},
	})

	snap, err := newTestClient(t, srv.URL).Get(context.Background(), "TC-1", theatre.GetOptions{IncludeTimeline: true})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(snap.Timeline) != 1 {
		t.Errorf("expected 1 timeline entry, got %d", len(snap.Timeline))
	}
}

func TestGet_NotFound(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /theatre-flows/{id}": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]any{"code": "NOT_FOUND", "message": "theatre case not found"},
			})
		},
	})

	_, err := newTestClient(t, srv.URL).Get(context.Background(), "TC-404", theatre.GetOptions{})
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	apiErr := err.(*Error)
	if apiErr.Code != "NOT_FOUND" || apiErr.Message != "theatre case not found" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}

func TestErrorWithoutEnvelope(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /theatre-flows/{id}/reopen": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			_, _ = io.WriteString(w, "record already open")
		},
	})

	_, err := newTestClient(t, srv.URL).ReopenRecord(context.Background(), "TC-1", theatre.ReopenInput{Reason: "typo"})
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err.(*Error).Message != "record already open" {
		t.Errorf("unexpected message %q", err.(*Error).Message)
	}
}

func TestWrites_RouteToEndpoints(t *testing.T) {
	var seen []string
	record := func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("%s: expected JSON content type", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": "u1", "human_friendly_id": "TC-1"}})
	}
	srv := mockServer(t, map[string]http.HandlerFunc{"/": record})
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	calls := []func() (*theatre.TheatreCase, error){
		func() (*theatre.TheatreCase, error) { return c.Start(ctx, theatre.StartInput{EncounterID: "ENC-1"}) },
		func() (*theatre.TheatreCase, error) {
			return c.UpdateStage(ctx, "TC-1", theatre.StageInput{Stage: theatre.StageSignIn})
		},
		func() (*theatre.TheatreCase, error) {
			return c.ToggleChecklistItem(ctx, "TC-1", theatre.ChecklistToggleInput{ItemCode: "consent"})
		},
		func() (*theatre.TheatreCase, error) {
			return c.UpsertAnesthesiaRecord(ctx, "TC-1", theatre.AnesthesiaRecordInput{})
		},
		func() (*theatre.TheatreCase, error) {
			return c.UpsertAnesthesiaRecord(ctx, "TC-1", theatre.AnesthesiaRecordInput{ID: "AR-1"})
		},
		func() (*theatre.TheatreCase, error) {
			return c.AddAnesthesiaObservation(ctx, "TC-1", theatre.ObservationInput{Notes: "stable"})
		},
		func() (*theatre.TheatreCase, error) {
			return c.UpsertPostOpNote(ctx, "TC-1", theatre.PostOpNoteInput{ID: "PN-1", Note: "ok"})
		},
		func() (*theatre.TheatreCase, error) {
			return c.AssignResource(ctx, "TC-1", theatre.AssignResourceInput{ResourceType: theatre.ResourceRoom, ResourceID: "RM-1"})
		},
		func() (*theatre.TheatreCase, error) {
			return c.ReleaseResource(ctx, "TC-1", theatre.ReleaseResourceInput{AllocationID: "AL-1"})
		},
		func() (*theatre.TheatreCase, error) {
			return c.FinalizeRecord(ctx, "TC-1", theatre.FinalizeInput{RecordType: theatre.RecordTheatreCase})
		},
	}
	for i, call := range calls {
		snap, err := call()
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if snap == nil || snap.PublicID != "TC-1" {
			t.Errorf("call %d: unexpected snapshot %+v", i, snap)
		}
	}

	want := []string{
		"POST /theatre-flows",
		"PATCH /theatre-flows/TC-1/stage",
		"PUT /theatre-flows/TC-1/checklist-items",
		"POST /theatre-flows/TC-1/anesthesia-records",
		"PUT /theatre-flows/TC-1/anesthesia-records/AR-1",
		"POST /theatre-flows/TC-1/anesthesia-observations",
		"PUT /theatre-flows/TC-1/post-op-notes/PN-1",
		"POST /theatre-flows/TC-1/resource-allocations",
		"POST /theatre-flows/TC-1/resource-allocations/release",
		"POST /theatre-flows/TC-1/finalize",
	}
	if len(seen) != len(want) {
		t.Fatalf("expected %d requests, got %v", len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("request %d: expected %q, got %q", i, want[i], seen[i])
		}
	}
}

func TestWrite_EmptyDataIsNilSnapshot(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"PATCH /theatre-flows/{id}/stage": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"data": nil})
		},
	})

	snap, err := newTestClient(t, srv.URL).UpdateStage(context.Background(), "TC-1", theatre.StageInput{Stage: theatre.StagePostOp})
	if err != nil {
		t.Fatalf("UpdateStage: %v", err)
	}
	if snap != nil {
		t.Errorf("expected nil snapshot, got %+v", snap)
	}
}

func TestResolveLegacyRoute(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /theatre-flows/resolve-legacy-route": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("resource") != "anesthesia" || q.Get("legacy_id") != "AR-9" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{"theatre_case_id": "TC-2", "panel": "anesthesia"},
			})
		},
	})

	route, err := newTestClient(t, srv.URL).ResolveLegacyRoute(context.Background(), "anesthesia", "AR-9")
	if err != nil {
		t.Fatalf("ResolveLegacyRoute: %v", err)
	}
	if route.TheatreCaseID != "TC-2" || route.Panel != "anesthesia" {
		t.Errorf("unexpected route %+v", route)
	}
}

func TestReferenceLists_AcceptArrayAndPage(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /rooms": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("sort_by") != "name" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": []map[string]any{{"human_friendly_id": "RM-1", "name": "Theatre 1"}},
			})
		},
		"GET /staff-profiles": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{"items": []map[string]any{{"human_friendly_id": "S1", "last_name": "Okafor"}}},
			})
		},
		"GET /equipment-registries": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, []map[string]any{{"human_friendly_id": "EQ-1", "name": "Ventilator"}})
		},
		"GET /encounters": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"data": nil})
		},
	})
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	rooms, err := c.ListRooms(ctx, theatre.Params{"sort_by": "name"})
	if err != nil || len(rooms) != 1 || rooms[0].Name != "Theatre 1" {
		t.Errorf("rooms: %+v, %v", rooms, err)
	}
	staff, err := c.ListStaff(ctx, nil)
	if err != nil || len(staff) != 1 || staff[0].LastName != "Okafor" {
		t.Errorf("staff: %+v, %v", staff, err)
	}
	equipment, err := c.ListEquipment(ctx, nil)
	if err != nil || len(equipment) != 1 {
		t.Errorf("equipment: %+v, %v", equipment, err)
	}
	encounters, err := c.ListEncounters(ctx, nil)
	if err != nil || len(encounters) != 0 {
		t.Errorf("encounters: %+v, %v", encounters, err)
	}
}
