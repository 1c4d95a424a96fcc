package pagination

import (
	"strconv"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds page-based pagination for list requests against the case
// backend.
type Params struct {
	Page  int
	Limit int
}

// Normalize clamps the page to >= 1 and the limit into (0, max]. A max of
// zero or less falls back to MaxLimit.
func (p Params) Normalize(max int) Params {
	if max <= 0 {
		max = MaxLimit
	}
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > max {
		p.Limit = max
	}
	return p
}

// Apply writes the page and limit into a query parameter map.
func (p Params) Apply(q map[string]string) {
	q["page"] = strconv.Itoa(p.Page)
	q["limit"] = strconv.Itoa(p.Limit)
}

// Offset returns the zero-based offset of the first row on the page.
func (p Params) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Meta is the pagination block returned alongside list results.
type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// HasNext returns true if there are more pages after this one.
func (m Meta) HasNext() bool {
	if m.TotalPages > 0 {
		return m.Page < m.TotalPages
	}
	return m.Limit > 0 && m.Page*m.Limit < m.Total
}

// HasPrevious returns true if this is not the first page.
func (m Meta) HasPrevious() bool {
	return m.Page > 1
}
