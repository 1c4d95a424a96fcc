package theatre

import (
	"net/url"
	"strings"
)

// BasePath is the bare case-list route.
const BasePath = "/theatre-flow"

// Panel is a detail section of the case view.
type Panel string

const (
	PanelSnapshot   Panel = "snapshot"
	PanelChecklist  Panel = "checklist"
	PanelAnesthesia Panel = "anesthesia"
	PanelResources  Panel = "resources"
	PanelPostOp     Panel = "post-op"
	PanelTimeline   Panel = "timeline"
)

var panels = []Panel{PanelSnapshot, PanelChecklist, PanelAnesthesia, PanelResources, PanelPostOp, PanelTimeline}

// ParsePanel returns the panel named by s, or "" when s is not a panel.
func ParsePanel(s string) Panel {
	s = strings.ToLower(Sanitize(s))
	for _, p := range panels {
		if string(p) == s {
			return p
		}
	}
	return ""
}

// RouteState is everything this workflow persists: the route query.
type RouteState struct {
	ID       string `json:"id,omitempty"`
	Panel    Panel  `json:"panel,omitempty"`
	Action   string `json:"action,omitempty"`
	Resource string `json:"resource,omitempty"`
	LegacyID string `json:"legacyId,omitempty"`
}

// ParseRoute reads a route path such as /theatre-flow?id=TC-1&panel=checklist.
func ParseRoute(path string) RouteState {
	u, err := url.Parse(path)
	if err != nil {
		return RouteState{}
	}
	return routeFromQuery(u.Query())
}

func routeFromQuery(q url.Values) RouteState {
	return RouteState{
		ID:       ToPublicID(q.Get("id")),
		Panel:    ParsePanel(q.Get("panel")),
		Action:   Sanitize(q.Get("action")),
		Resource: Sanitize(q.Get("resource")),
		LegacyID: Sanitize(q.Get("legacyId")),
	}
}

// Query encodes the state as query parameters, omitting empty fields.
func (r RouteState) Query() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v = Sanitize(v); v != "" {
			q.Set(k, v)
		}
	}
	set("id", r.ID)
	set("panel", string(r.Panel))
	set("action", r.Action)
	set("resource", r.Resource)
	set("legacyId", r.LegacyID)
	return q
}

// Path renders the state as a route path under BasePath.
func (r RouteState) Path() string {
	q := r.Query()
	if len(q) == 0 {
		return BasePath
	}
	return BasePath + "?" + q.Encode()
}

// Apply merges a partial parameter update; an empty value clears the key.
func (r RouteState) Apply(partial map[string]string) RouteState {
	q := r.Query()
	for k, v := range partial {
		if v = Sanitize(v); v == "" {
			q.Del(k)
		} else {
			q.Set(k, v)
		}
	}
	return routeFromQuery(q)
}

// publishCaseID writes the selected case identifier to the route: in place
// when the router supports it, otherwise with a full replace. An empty id
// sends the viewer to the bare list route.
func publishCaseID(router Router, id string) {
	if router == nil {
		return
	}
	id = ToPublicID(id)
	if id == "" {
		router.Replace(BasePath)
		return
	}
	if setter, ok := router.(ParamSetter); ok {
		setter.SetParams(map[string]string{"id": id})
		return
	}
	current := router.Params()
	current.ID = id
	router.Replace(current.Path())
}
