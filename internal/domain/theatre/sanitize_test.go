package theatre

import "testing"

func TestSanitize(t *testing.T) {
	s := "  TC-1 "
	var nilStr *string
	tests := []struct {
		in   any
		want string
	}{
		{"  hello ", "hello"},
		{&s, "TC-1"},
		{nilStr, ""},
		{42, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToPublicID(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"TC-000123", "TC-000123"},
		{"  tc-9  ", "tc-9"},
		{"5b7f3c1e-8f1a-4d8e-9c51-1f2a3b4c5d6e", ""},
		{"5B7F3C1E-8F1A-4D8E-9C51-1F2A3B4C5D6E", ""},
		{"", ""},
		{12, ""},
	}
	for _, tt := range tests {
		if got := ToPublicID(tt.in); got != tt.want {
			t.Errorf("ToPublicID(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsUUIDLike(t *testing.T) {
	if !IsUUIDLike(" 0c9e2d4a-1b3c-4d5e-8f70-a1b2c3d4e5f6 ") {
		t.Error("expected padded UUID to match")
	}
	if IsUUIDLike("0c9e2d4a1b3c4d5e8f70a1b2c3d4e5f6") {
		t.Error("expected undashed hex not to match")
	}
	if IsUUIDLike("TC-1") {
		t.Error("expected public id not to match")
	}
}

func TestToISO(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-03-01", "2024-03-01T00:00:00.000Z", true},
		{"2024-03-01T10:15:00+02:00", "2024-03-01T08:15:00.000Z", true},
		{"2024-03-01T10:15:30.250Z", "2024-03-01T10:15:30.250Z", true},
		{"not a date", "", false},
		{"   ", "", false},
	}
	for _, tt := range tests {
		got, ok := ToISO(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ToISO(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestToISO_LocalTimeIsConverted(t *testing.T) {
	got, ok := ToISO("2024-03-01T10:15")
	if !ok {
		t.Fatal("expected local time to parse")
	}
	want, _ := ParseInstant("2024-03-01T10:15")
	if got != want.UTC().Format(ISOLayout) {
		t.Errorf("expected %q, got %q", want.UTC().Format(ISOLayout), got)
	}
}
