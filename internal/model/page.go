package model

// Page is one slice of a cursor-paginated list.
type Page[T any] struct {
	Results []T `json:"results"`

	// NextCursor is only valid for requesting the page that immediately
	// follows this one. It is nil on the last page.
	NextCursor *string `json:"next_cursor"`

	HasNext bool `json:"has_next"`
}

// Cursor returns the next cursor or the empty string.
func (p Page[T]) Cursor() string {
	if p.NextCursor == nil {
		return ""
	}
	return *p.NextCursor
}
