package listview

import (
	"context"
	"errors"
	"sync"

	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/paginate"
	"github.com/nhle/content-portal/internal/querycache"
)

// PageSource loads one page of a filtered list.
type PageSource[T any] func(ctx context.Context, filters map[string]string, cursor *string) (model.Page[T], error)

// cursorFilter is the pseudo filter under which each page is cached.
const cursorFilter = "cursor"

// View is a cursor-paginated list driven by a filter state. Every page
// is cached under the family's public list key for the current filters
// plus its cursor, so invalidating the family's lists drops them all.
type View[T any] struct {
	cache  *querycache.Cache
	family querycache.Family
	source PageSource[T]

	mu           sync.Mutex
	filters      Filters
	acc          *paginate.Accumulator[T]
	cancel       context.CancelFunc
	onInvalidate func()
	unwatch      func()
}

// NewView creates a view starting from initial filters. Nothing is
// fetched until the first FetchNext or filter change.
func NewView[T any](cache *querycache.Cache, family querycache.Family, source PageSource[T], initial Filters) *View[T] {
	v := &View[T]{
		cache:   cache,
		family:  family,
		source:  source,
		filters: initial,
	}
	v.acc = v.newAccumulator(initial, false)
	v.unwatch = cache.Watch(v.handleEvent)
	return v
}

// Close stops following cache invalidations.
func (v *View[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel != nil {
		v.cancel()
	}
	if v.unwatch != nil {
		v.unwatch()
		v.unwatch = nil
	}
}

// OnInvalidate registers fn to be called when the current list is
// invalidated in the cache, so the owner can schedule a refetch.
func (v *View[T]) OnInvalidate(fn func()) {
	v.mu.Lock()
	v.onInvalidate = fn
	v.mu.Unlock()
}

// Filters returns the current filter state.
func (v *View[T]) Filters() Filters {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filters
}

// Key returns the cache key of the current list.
func (v *View[T]) Key() querycache.Key {
	return v.family.PublicList(v.Filters().Map())
}

func (v *View[T]) newAccumulator(filters Filters, force bool) *paginate.Accumulator[T] {
	params := filters.Map()
	return paginate.New(func(ctx context.Context, cursor *string) (model.Page[T], error) {
		keyFilters := filters.Map()
		if cursor != nil {
			keyFilters[cursorFilter] = *cursor
		}
		key := v.family.PublicList(keyFilters)
		load := func(ctx context.Context) (model.Page[T], error) {
			return v.source(ctx, params, cursor)
		}
		if force && cursor == nil {
			page, err := querycache.Refetch(ctx, v.cache, key, load)
			if !errors.Is(err, querycache.ErrSuperseded) {
				return page, err
			}
		}
		return querycache.Fetch(ctx, v.cache, key, load)
	})
}

// SetFilter changes one dimension, leaving the others intact, and
// fetches the first page of the new list.
func (v *View[T]) SetFilter(ctx context.Context, d Dimension, value string) error {
	return v.Update(ctx, func(f Filters) Filters { return f.With(d, value) })
}

// SetFilters replaces the whole filter state in one update.
func (v *View[T]) SetFilters(ctx context.Context, filters Filters) error {
	return v.Update(ctx, func(Filters) Filters { return filters })
}

// ClearAll resets every dimension in one update, issuing a single fetch.
func (v *View[T]) ClearAll(ctx context.Context) error {
	return v.Update(ctx, func(f Filters) Filters { return f.Cleared() })
}

// Update applies fn to the filter state. When the state changes the
// accumulated pages are dropped, the request in flight for the old
// filters is cancelled and discarded, and the first page of the new list
// is fetched. An unchanged state is a no-op once a page is loaded.
func (v *View[T]) Update(ctx context.Context, fn func(Filters) Filters) error {
	v.mu.Lock()
	next := fn(v.filters)
	if next.Equal(v.filters) && v.acc.Loaded() {
		v.mu.Unlock()
		return nil
	}
	v.filters = next
	acc, fetchCtx := v.restartLocked(ctx, next, false)
	v.mu.Unlock()

	_, err := acc.FetchNext(fetchCtx)
	return settle(err)
}

// Refresh drops the loaded pages and refetches the first page from the
// server, bypassing any cached copy.
func (v *View[T]) Refresh(ctx context.Context) error {
	v.mu.Lock()
	acc, fetchCtx := v.restartLocked(ctx, v.filters, true)
	v.mu.Unlock()

	_, err := acc.FetchNext(fetchCtx)
	return settle(err)
}

// restartLocked must be called with v.mu held.
func (v *View[T]) restartLocked(ctx context.Context, filters Filters, force bool) (*paginate.Accumulator[T], context.Context) {
	v.acc.Reset()
	if v.cancel != nil {
		v.cancel()
	}
	v.acc = v.newAccumulator(filters, force)

	fetchCtx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	return v.acc, fetchCtx
}

// FetchNext loads the next page of the current list. It returns
// paginate.ErrNoMore after the last page.
func (v *View[T]) FetchNext(ctx context.Context) error {
	v.mu.Lock()
	acc := v.acc
	v.mu.Unlock()

	_, err := acc.FetchNext(ctx)
	return settle(err)
}

// Items returns every loaded item in page order.
func (v *View[T]) Items() []T {
	v.mu.Lock()
	acc := v.acc
	v.mu.Unlock()
	return acc.Items()
}

// HasMore reports whether another page can be fetched.
func (v *View[T]) HasMore() bool {
	v.mu.Lock()
	acc := v.acc
	v.mu.Unlock()
	return acc.HasMore()
}

// Loaded reports whether the first page of the current list is in.
func (v *View[T]) Loaded() bool {
	v.mu.Lock()
	acc := v.acc
	v.mu.Unlock()
	return acc.Loaded()
}

// handleEvent resets the view when one of its pages is invalidated.
func (v *View[T]) handleEvent(ev querycache.Event) {
	if ev.Kind != querycache.EventInvalidated {
		return
	}
	filters := make(map[string]string, len(ev.Key.Filters))
	for k, val := range ev.Key.Filters {
		if k != cursorFilter {
			filters[k] = val
		}
	}
	page := querycache.Key{Resource: ev.Key.Resource, Scope: ev.Key.Scope}.WithFilters(filters)

	v.mu.Lock()
	if !page.Equal(v.family.PublicList(v.filters.Map())) || !v.acc.Loaded() {
		v.mu.Unlock()
		return
	}
	v.acc.Reset()
	notify := v.onInvalidate
	v.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// settle hides errors that only mean a newer request took over.
func settle(err error) error {
	if errors.Is(err, paginate.ErrSuperseded) {
		return nil
	}
	return err
}
