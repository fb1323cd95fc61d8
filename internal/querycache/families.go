package querycache

// Family builds the keys of one resource type. Every list variant lives
// under the "list" scope so a mutation can drop all of them at once.
type Family struct {
	Resource string
}

// Key families of the portal resources.
var (
	Articles      = Family{Resource: "articles"}
	Jobs          = Family{Resource: "jobs"}
	Notifications = Family{Resource: "notifications"}
)

// All is the root of the family.
func (f Family) All() Key { return NewKey(f.Resource) }

// Lists is the root of every list query.
func (f Family) Lists() Key { return NewKey(f.Resource, "list") }

// List is a filtered list.
func (f Family) List(filters map[string]string) Key {
	return f.Lists().WithFilters(filters)
}

// PublicList is a filtered public (cursor paginated) list.
func (f Family) PublicList(filters map[string]string) Key {
	return NewKey(f.Resource, "list", "public").WithFilters(filters)
}

// AdminList is a filtered CMS list.
func (f Family) AdminList(filters map[string]string) Key {
	return NewKey(f.Resource, "list", "admin").WithFilters(filters)
}

// Details is the root of every detail query.
func (f Family) Details() Key { return NewKey(f.Resource, "detail") }

// Detail addresses one record.
func (f Family) Detail(id string) Key { return NewKey(f.Resource, "detail", id) }

// Sub addresses an arbitrary scope under the family, such as
// Notifications.Sub("roles", "unseen").
func (f Family) Sub(scope ...string) Key { return NewKey(f.Resource, scope...) }

// MutationTargets returns the predicate a successful mutation of record
// id invalidates: the list family plus, when id is set, its detail entry.
func (f Family) MutationTargets(id string) Predicate {
	if id == "" {
		return Prefix(f.Lists())
	}
	return Any(Prefix(f.Lists()), Exact(f.Detail(id)))
}
