package querycache

import (
	"net/url"
	"strings"
)

// Key addresses a cached query result. Filters take part in equality
// regardless of the order they were added in; empty filter values are
// dropped so "unset" and "cleared" address the same entry.
type Key struct {
	Resource string
	Scope    []string
	Filters  map[string]string
}

// NewKey returns a key for resource with the given scope path.
func NewKey(resource string, scope ...string) Key {
	return Key{Resource: resource, Scope: scope}
}

// WithFilters returns a copy of k carrying filters.
func (k Key) WithFilters(filters map[string]string) Key {
	out := Key{Resource: k.Resource, Scope: append([]string(nil), k.Scope...)}
	if len(filters) > 0 {
		out.Filters = make(map[string]string, len(filters))
		for name, v := range filters {
			if v != "" {
				out.Filters[name] = v
			}
		}
	}
	return out
}

// String returns the canonical form of the key, e.g.
// "jobs/list/public?job_type=GOVT&q=clerk".
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(url.PathEscape(k.Resource))
	for _, s := range k.Scope {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}

	vals := url.Values{}
	for name, v := range k.Filters {
		if v != "" {
			vals.Set(name, v)
		}
	}
	if len(vals) > 0 {
		b.WriteByte('?')
		// Encode sorts by parameter name.
		b.WriteString(vals.Encode())
	}
	return b.String()
}

// Equal reports whether two keys address the same entry.
func (k Key) Equal(other Key) bool {
	return k.String() == other.String()
}

// HasPrefix reports whether k belongs to the family rooted at prefix:
// same resource and a scope starting with prefix's scope. Filters on
// prefix are ignored.
func (k Key) HasPrefix(prefix Key) bool {
	if k.Resource != prefix.Resource || len(k.Scope) < len(prefix.Scope) {
		return false
	}
	for i, s := range prefix.Scope {
		if k.Scope[i] != s {
			return false
		}
	}
	return true
}

// Predicate selects keys for invalidation.
type Predicate func(Key) bool

// Exact matches only k.
func Exact(k Key) Predicate {
	s := k.String()
	return func(other Key) bool { return other.String() == s }
}

// Prefix matches every key in the family rooted at k.
func Prefix(k Key) Predicate {
	return func(other Key) bool { return other.HasPrefix(k) }
}

// Resource matches every key of one resource type.
func Resource(resource string) Predicate {
	return Prefix(NewKey(resource))
}

// Any matches keys selected by at least one of preds.
func Any(preds ...Predicate) Predicate {
	return func(k Key) bool {
		for _, p := range preds {
			if p(k) {
				return true
			}
		}
		return false
	}
}
