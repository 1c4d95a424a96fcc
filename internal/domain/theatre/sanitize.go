package theatre

import (
	"regexp"
	"strings"
	"time"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Sanitize trims strings and turns anything else into "".
func Sanitize(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case *string:
		if s == nil {
			return ""
		}
		return strings.TrimSpace(*s)
	default:
		return ""
	}
}

// IsUUIDLike reports whether v has the canonical 8-4-4-4-12 UUID shape.
func IsUUIDLike(v any) bool {
	return uuidPattern.MatchString(Sanitize(v))
}

// ToPublicID returns the sanitized identifier unless it is UUID-shaped, in
// which case it returns "". Only human-friendly identifiers reach the route.
func ToPublicID(v any) string {
	s := Sanitize(v)
	if s == "" || uuidPattern.MatchString(s) {
		return ""
	}
	return s
}

// ISOLayout is the canonical instant format sent to the backend.
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"01/02/2006 15:04",
	"01/02/2006",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// ParseInstant parses a free-form date or date-time. Date-only ISO values are
// taken as UTC midnight, other zone-less values as local time.
func ParseInstant(v string) (time.Time, bool) {
	s := Sanitize(v)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ToISO converts a free-form date/time into a canonical UTC instant. The
// second result is false when the input cannot be parsed.
func ToISO(v string) (string, bool) {
	t, ok := ParseInstant(v)
	if !ok {
		return "", false
	}
	return t.UTC().Format(ISOLayout), true
}
