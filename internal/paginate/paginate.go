package paginate

import (
	"context"
	"errors"
	"sync"

	"github.com/nhle/content-portal/internal/model"
)

var (
	// ErrNoMore is returned by FetchNext after the last page.
	ErrNoMore = errors.New("paginate: no more pages")

	// ErrInFlight is returned when FetchNext is called while a previous
	// call is still waiting for its page.
	ErrInFlight = errors.New("paginate: fetch already in flight")

	// ErrSuperseded is returned when the accumulator was reset while the
	// page was in flight. The page is discarded.
	ErrSuperseded = errors.New("paginate: response superseded by reset")

	// ErrMissingCursor is returned when a page claims has_next but
	// carries no cursor.
	ErrMissingCursor = errors.New("paginate: page has_next without next_cursor")
)

// PageFetcher loads the page starting at cursor; nil requests the first.
type PageFetcher[T any] func(ctx context.Context, cursor *string) (model.Page[T], error)

// Accumulator collects the pages of one cursor-paginated list in fetch
// order. Each fetch uses the cursor of the page before it. Items are
// never de-duplicated, so an item that moved between pages while the
// list was being read shows up twice.
type Accumulator[T any] struct {
	mu       sync.Mutex
	fetch    PageFetcher[T]
	pages    []model.Page[T]
	gen      uint64
	fetching bool
}

// New returns an empty accumulator.
func New[T any](fetch PageFetcher[T]) *Accumulator[T] {
	return &Accumulator[T]{fetch: fetch}
}

// FetchNext fetches the page following the last one and appends it.
func (a *Accumulator[T]) FetchNext(ctx context.Context) (model.Page[T], error) {
	a.mu.Lock()
	if a.fetching {
		a.mu.Unlock()
		return model.Page[T]{}, ErrInFlight
	}

	var cursor *string
	if n := len(a.pages); n > 0 {
		last := a.pages[n-1]
		if !last.HasNext {
			a.mu.Unlock()
			return model.Page[T]{}, ErrNoMore
		}
		if last.NextCursor == nil {
			a.mu.Unlock()
			return model.Page[T]{}, ErrMissingCursor
		}
		c := *last.NextCursor
		cursor = &c
	}
	gen := a.gen
	a.fetching = true
	a.mu.Unlock()

	page, err := a.fetch(ctx, cursor)

	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		return model.Page[T]{}, ErrSuperseded
	}
	a.fetching = false
	if err != nil {
		return model.Page[T]{}, err
	}
	a.pages = append(a.pages, page)
	return page, nil
}

// Reset drops every page so the next fetch starts from a nil cursor. A
// fetch in flight at the time of the reset is discarded on arrival.
func (a *Accumulator[T]) Reset() {
	a.mu.Lock()
	a.pages = nil
	a.gen++
	a.fetching = false
	a.mu.Unlock()
}

// Items returns the concatenation of every page's results in fetch order.
func (a *Accumulator[T]) Items() []T {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, p := range a.pages {
		n += len(p.Results)
	}
	out := make([]T, 0, n)
	for _, p := range a.pages {
		out = append(out, p.Results...)
	}
	return out
}

// Pages returns a copy of the fetched pages.
func (a *Accumulator[T]) Pages() []model.Page[T] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.Page[T](nil), a.pages...)
}

// HasMore reports whether the last fetched page has a successor. It is
// false before the first fetch; use Loaded to tell the two apart.
func (a *Accumulator[T]) HasMore() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.pages)
	return n > 0 && a.pages[n-1].HasNext
}

// Loaded reports whether at least one page has been fetched.
func (a *Accumulator[T]) Loaded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pages) > 0
}

// Fetching reports whether a page is in flight.
func (a *Accumulator[T]) Fetching() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fetching
}
