package listview

import "testing"

func TestFiltersWithIsCopyOnWrite(t *testing.T) {
	base := NewFilters(map[string]string{"q": "clerk"})
	next := base.With(Language, "en")

	if base.Get(Language) != "" {
		t.Error("With mutated the receiver")
	}
	if next.Get(Query) != "clerk" || next.Get(Language) != "en" {
		t.Errorf("next = %s", next)
	}
	if cleared := next.With(Query, "  "); cleared.Get(Query) != "" {
		t.Error("blank value did not clear the dimension")
	}
}

func TestFiltersEqualAndString(t *testing.T) {
	a := NewFilters(map[string]string{"q": "clerk", "lang": "en", "section": ""})
	b := Filters{}.With(Language, "en").With(Query, "clerk")
	if !a.Equal(b) {
		t.Errorf("%s != %s", a, b)
	}
	if a.String() != "lang=en q=clerk" {
		t.Errorf("String() = %q", a.String())
	}
	if !a.Cleared().IsEmpty() {
		t.Error("Cleared() not empty")
	}
}
