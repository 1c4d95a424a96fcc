package theatre

import "strings"

// Room is a theatre room row.
type Room struct {
	ID              string `json:"id"`
	HumanFriendlyID string `json:"human_friendly_id"`
	Name            string `json:"name"`
	Code            string `json:"code,omitempty"`
}

func (r Room) PublicID() string { return ToPublicID(r.HumanFriendlyID) }

func (r Room) Label() string {
	name := Sanitize(r.Name)
	code := Sanitize(r.Code)
	switch {
	case name != "" && code != "":
		return name + " (" + code + ")"
	case name != "":
		return name
	case code != "":
		return code
	}
	return r.PublicID()
}

// StaffProfile is a clinician row.
type StaffProfile struct {
	ID              string `json:"id"`
	HumanFriendlyID string `json:"human_friendly_id"`
	DisplayName     string `json:"display_name,omitempty"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	PositionTitle   string `json:"position_title,omitempty"`
}

func (s StaffProfile) PublicID() string { return ToPublicID(s.HumanFriendlyID) }

func (s StaffProfile) Label() string {
	name := Sanitize(s.DisplayName)
	if name == "" {
		name = strings.TrimSpace(Sanitize(s.FirstName) + " " + Sanitize(s.LastName))
	}
	if name == "" {
		return s.PublicID()
	}
	if title := Sanitize(s.PositionTitle); title != "" {
		return name + " - " + title
	}
	return name
}

// Equipment is an equipment registry row.
type Equipment struct {
	ID              string `json:"id"`
	HumanFriendlyID string `json:"human_friendly_id"`
	Name            string `json:"name"`
	SerialNumber    string `json:"serial_number,omitempty"`
}

func (e Equipment) PublicID() string { return ToPublicID(e.HumanFriendlyID) }

func (e Equipment) Label() string {
	name := Sanitize(e.Name)
	serial := Sanitize(e.SerialNumber)
	switch {
	case name != "" && serial != "":
		return name + " #" + serial
	case name != "":
		return name
	}
	return e.PublicID()
}

// Encounter is a source encounter a case can be started from.
type Encounter struct {
	ID                 string `json:"id"`
	HumanFriendlyID    string `json:"human_friendly_id"`
	PatientDisplayName string `json:"patient_display_name,omitempty"`
	EncounterType      string `json:"encounter_type,omitempty"`
}

func (e Encounter) PublicID() string { return ToPublicID(e.HumanFriendlyID) }

func (e Encounter) Label() string {
	id := e.PublicID()
	patient := Sanitize(e.PatientDisplayName)
	kind := Sanitize(e.EncounterType)
	parts := make([]string, 0, 3)
	for _, p := range []string{id, patient, kind} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " · ")
}
