package listview

import (
	"maps"
	"sort"
	"strings"
)

// Dimension is one independently settable filter.
type Dimension string

const (
	JobType      Dimension = "job_type"
	Location     Dimension = "location"
	Organization Dimension = "organization"
	Query        Dimension = "q"
	Language     Dimension = "lang"
	Section      Dimension = "section"
)

// JobDimensions are the filters offered on the jobs list.
var JobDimensions = []Dimension{JobType, Location, Organization, Query, Language}

// ArticleDimensions are the filters offered on the article list.
var ArticleDimensions = []Dimension{Section, Query, Language}

// Filters is an immutable filter state. Unset and empty dimensions are
// the same thing.
type Filters struct {
	values map[Dimension]string
}

// NewFilters builds a filter state from a plain map.
func NewFilters(m map[string]string) Filters {
	f := Filters{values: make(map[Dimension]string, len(m))}
	for k, v := range m {
		if v = strings.TrimSpace(v); v != "" {
			f.values[Dimension(k)] = v
		}
	}
	return f
}

// Get returns the value of d, or "".
func (f Filters) Get(d Dimension) string {
	return f.values[d]
}

// With returns a copy of f with d set to value; an empty value clears d.
// Other dimensions are untouched.
func (f Filters) With(d Dimension, value string) Filters {
	out := Filters{values: maps.Clone(f.values)}
	if out.values == nil {
		out.values = make(map[Dimension]string)
	}
	if value = strings.TrimSpace(value); value == "" {
		delete(out.values, d)
	} else {
		out.values[d] = value
	}
	return out
}

// Cleared returns the empty filter state.
func (f Filters) Cleared() Filters {
	return Filters{}
}

// IsEmpty reports whether no dimension is set.
func (f Filters) IsEmpty() bool {
	return len(f.values) == 0
}

// Equal reports whether both states set the same dimensions to the same
// values.
func (f Filters) Equal(other Filters) bool {
	return maps.Equal(f.values, other.values)
}

// Map returns the filters as query parameters.
func (f Filters) Map() map[string]string {
	out := make(map[string]string, len(f.values))
	for d, v := range f.values {
		out[string(d)] = v
	}
	return out
}

// String renders the active filters, e.g. "job_type=GOVT q=clerk".
func (f Filters) String() string {
	parts := make([]string, 0, len(f.values))
	for d, v := range f.values {
		parts = append(parts, string(d)+"="+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
