package theatre

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/theatre/internal/platform/timing"
)

// -- Mock Collaborators --

type writeCall struct {
	command CommandName
	caseID  string
	input   any
}

type mockCases struct {
	mu        sync.Mutex
	items     []TheatreCase
	lists     []Params
	gets      []string
	writes    []writeCall
	listErr   error
	getErr    error
	writeErr  error
	result    *TheatreCase
	nilResult bool

	legacy      *LegacyRoute
	legacyErr   error
	legacyCalls int
}

func newMockCases(items ...TheatreCase) *mockCases {
	return &mockCases{items: items}
}

func (m *mockCases) List(_ context.Context, params Params) (*CaseList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make(Params, len(params))
	for k, v := range params {
		copied[k] = v
	}
	m.lists = append(m.lists, copied)
	if m.listErr != nil {
		return nil, m.listErr
	}
	return &CaseList{Items: append([]TheatreCase(nil), m.items...)}, nil
}

func (m *mockCases) Get(_ context.Context, id string, _ GetOptions) (*TheatreCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets = append(m.gets, id)
	if m.getErr != nil {
		return nil, m.getErr
	}
	for i := range m.items {
		if m.items[i].Matches(id) {
			c := m.items[i]
			return &c, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockCases) write(name CommandName, caseID string, in any) (*TheatreCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, writeCall{command: name, caseID: caseID, input: in})
	if m.writeErr != nil {
		return nil, m.writeErr
	}
	if m.nilResult {
		return nil, nil
	}
	if m.result != nil {
		c := *m.result
		return &c, nil
	}
	for i := range m.items {
		if m.items[i].Matches(caseID) {
			c := m.items[i]
			return &c, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (m *mockCases) Start(_ context.Context, in StartInput) (*TheatreCase, error) {
	return m.write(CmdStart, "", in)
}

func (m *mockCases) UpdateStage(_ context.Context, id string, in StageInput) (*TheatreCase, error) {
	return m.write(CmdUpdateStage, id, in)
}

func (m *mockCases) ToggleChecklistItem(_ context.Context, id string, in ChecklistToggleInput) (*TheatreCase, error) {
	return m.write(CmdToggleChecklistItem, id, in)
}

func (m *mockCases) UpsertAnesthesiaRecord(_ context.Context, id string, in AnesthesiaRecordInput) (*TheatreCase, error) {
	return m.write(CmdUpsertAnesthesiaRecord, id, in)
}

func (m *mockCases) AddAnesthesiaObservation(_ context.Context, id string, in ObservationInput) (*TheatreCase, error) {
	return m.write(CmdAddAnesthesiaObservation, id, in)
}

func (m *mockCases) UpsertPostOpNote(_ context.Context, id string, in PostOpNoteInput) (*TheatreCase, error) {
	return m.write(CmdUpsertPostOpNote, id, in)
}

func (m *mockCases) AssignResource(_ context.Context, id string, in AssignResourceInput) (*TheatreCase, error) {
	return m.write(CmdAssignResource, id, in)
}

func (m *mockCases) ReleaseResource(_ context.Context, id string, in ReleaseResourceInput) (*TheatreCase, error) {
	return m.write(CmdReleaseResource, id, in)
}

func (m *mockCases) FinalizeRecord(_ context.Context, id string, in FinalizeInput) (*TheatreCase, error) {
	return m.write(CmdFinalizeRecord, id, in)
}

func (m *mockCases) ReopenRecord(_ context.Context, id string, in ReopenInput) (*TheatreCase, error) {
	return m.write(CmdReopenRecord, id, in)
}

func (m *mockCases) ResolveLegacyRoute(_ context.Context, _, _ string) (*LegacyRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.legacyCalls++
	if m.legacyErr != nil {
		return nil, m.legacyErr
	}
	return m.legacy, nil
}

func (m *mockCases) listCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lists)
}

func (m *mockCases) lastList() Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.lists) == 0 {
		return nil
	}
	return m.lists[len(m.lists)-1]
}

func (m *mockCases) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.gets)
}

func (m *mockCases) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

type mockReferences struct {
	mu     sync.Mutex
	calls  map[OptionKind]int
	params map[OptionKind]Params
	fail   map[OptionKind]error
}

func newMockReferences() *mockReferences {
	return &mockReferences{
		calls:  make(map[OptionKind]int),
		params: make(map[OptionKind]Params),
		fail:   make(map[OptionKind]error),
	}
}

func (m *mockReferences) record(kind OptionKind, params Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[kind]++
	m.params[kind] = params
	return m.fail[kind]
}

func (m *mockReferences) count(kind OptionKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[kind]
}

func (m *mockReferences) lastParams(kind OptionKind) Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params[kind]
}

func (m *mockReferences) ListRooms(_ context.Context, params Params) ([]Room, error) {
	if err := m.record(OptionRooms, params); err != nil {
		return nil, err
	}
	return []Room{{HumanFriendlyID: "RM-1", Name: "Theatre 1", Code: "T1"}}, nil
}

func (m *mockReferences) ListStaff(_ context.Context, params Params) ([]StaffProfile, error) {
	if err := m.record(OptionStaff, params); err != nil {
		return nil, err
	}
	return []StaffProfile{{HumanFriendlyID: "S1", FirstName: "Ada", LastName: "Okafor", PositionTitle: "Surgeon"}}, nil
}

func (m *mockReferences) ListEquipment(_ context.Context, params Params) ([]Equipment, error) {
	if err := m.record(OptionEquipment, params); err != nil {
		return nil, err
	}
	return []Equipment{{HumanFriendlyID: "EQ-1", Name: "Ventilator"}}, nil
}

func (m *mockReferences) ListEncounters(_ context.Context, params Params) ([]Encounter, error) {
	if err := m.record(OptionEncounters, params); err != nil {
		return nil, err
	}
	return []Encounter{{HumanFriendlyID: "ENC-1"}}, nil
}

type mockOracle struct {
	mu         sync.Mutex
	capability Capability
}

func (m *mockOracle) Capabilities(string) Capability {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capability
}

func (m *mockOracle) set(c Capability) {
	m.mu.Lock()
	m.capability = c
	m.mu.Unlock()
}

type mockBus struct {
	mu            sync.Mutex
	handlers      map[int]func(RealtimeEvent)
	next          int
	subscribes    int
	unsubscribes  int
	lastEventName string
}

func newMockBus() *mockBus {
	return &mockBus{handlers: make(map[int]func(RealtimeEvent))}
}

func (m *mockBus) Subscribe(event string, handler func(RealtimeEvent)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := m.next
	m.handlers[id] = handler
	m.subscribes++
	m.lastEventName = event
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.handlers[id]; ok {
			delete(m.handlers, id)
			m.unsubscribes++
		}
	}, nil
}

func (m *mockBus) emit(ev RealtimeEvent) {
	m.mu.Lock()
	var hs []func(RealtimeEvent)
	for _, h := range m.handlers {
		hs = append(hs, h)
	}
	m.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (m *mockBus) active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

// replaceRouter only supports full navigation.
type replaceRouter struct {
	mu    sync.Mutex
	paths []string
}

func (r *replaceRouter) Replace(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *replaceRouter) Params() RouteState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.paths) == 0 {
		return RouteState{}
	}
	return ParseRoute(r.paths[len(r.paths)-1])
}

func (r *replaceRouter) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.paths) == 0 {
		return ""
	}
	return r.paths[len(r.paths)-1]
}

// -- Fixtures --

var testEpoch = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func fullAccess() Capability {
	return Capability{CanRead: true, CanWrite: true, TenantID: "T1", FacilityID: "F1", IsResolved: true}
}

func sampleCases() []TheatreCase {
	return []TheatreCase{
		{ID: "5b7f3c1e-8f1a-4d8e-9c51-1f2a3b4c5d6e", PublicID: "TC-1", Stage: StagePreOp, Status: StatusScheduled},
		{ID: "0c9e2d4a-1b3c-4d5e-8f70-a1b2c3d4e5f6", PublicID: "TC-2", Stage: StageSignIn, Status: StatusScheduled},
	}
}

type harness struct {
	w      *Workflow
	cases  *mockCases
	refs   *mockReferences
	oracle *mockOracle
	bus    *mockBus
	router *MemoryRouter
	clock  *timing.ManualClock
}

func newHarness(t *testing.T, path string) *harness {
	t.Helper()
	h := &harness{
		cases:  newMockCases(sampleCases()...),
		refs:   newMockReferences(),
		oracle: &mockOracle{capability: fullAccess()},
		bus:    newMockBus(),
		router: NewMemoryRouter(path),
		clock:  timing.NewManualClock(testEpoch),
	}
	h.w = New(Dependencies{
		Cases:      h.cases,
		References: h.refs,
		Oracle:     h.oracle,
		Bus:        h.bus,
		Router:     h.router,
		Clock:      h.clock,
		Logger:     zerolog.Nop(),
	}, Options{})
	t.Cleanup(h.w.Close)
	return h
}

func (h *harness) mount(t *testing.T) {
	t.Helper()
	if err := h.w.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
}
