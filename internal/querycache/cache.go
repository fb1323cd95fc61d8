package querycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrLoadFailed wraps every fetcher error returned by the cache.
	ErrLoadFailed = errors.New("failed to load")

	// ErrSuperseded is returned by Refetch when the key was invalidated
	// while the request was in flight. The response is not current and
	// is dropped.
	ErrSuperseded = errors.New("querycache: response superseded by invalidation")
)

// Fetcher loads the value for one key.
type Fetcher func(ctx context.Context) (any, error)

// Entry is a snapshot of a cached value.
type Entry struct {
	Value     any
	UpdatedAt time.Time
	Stale     bool
}

type entry struct {
	key        Key
	value      any
	updatedAt  time.Time
	staleAfter time.Duration

	// seq is the sequence number of the request (or Set) that produced
	// value. A response with a lower seq never overwrites it.
	seq uint64
}

// call is one in-flight request shared by every caller of its key.
type call struct {
	key  Key
	seq  uint64
	done chan struct{}

	// superseded is set when the key was invalidated while the request
	// was in flight; its response is then not cached.
	superseded bool

	val any
	err error
}

// EventKind says what happened to a key.
type EventKind int

const (
	EventUpdated EventKind = iota
	EventInvalidated
)

// Event is delivered to Watch listeners.
type Event struct {
	Key  Key
	Kind EventKind
}

// Cache is a key-addressed cache of server resources. It de-duplicates
// concurrent requests per key, serves stale values while revalidating
// them in the background, and applies responses last-request-wins.
// The zero value is not usable; call New.
type Cache struct {
	mu        sync.Mutex
	entries   *lru.Cache[string, *entry]
	inflight  map[string]*call
	seq       uint64
	stats     Stats
	listeners map[int]func(Event)
	nextID    int

	staleAfter time.Duration
	now        func() time.Time
	logger     *log.Logger

	bg sync.WaitGroup
}

// Option configures a Cache.
type Option func(*Cache)

// WithStaleAfter sets the default freshness window.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Cache) { c.staleAfter = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger for background refresh failures.
func WithLogger(l *log.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates an empty cache holding at most maxEntries keys; the least
// recently used entry is evicted first.
func New(maxEntries int, opts ...Option) *Cache {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	entries, err := lru.New[string, *entry](maxEntries)
	if err != nil {
		// Only reachable with a non-positive size.
		panic(fmt.Sprintf("querycache: %v", err))
	}
	c := &Cache{
		entries:    entries,
		inflight:   make(map[string]*call),
		listeners:  make(map[int]func(Event)),
		staleAfter: 5 * time.Minute,
		now:        time.Now,
		logger:     log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchOption tunes a single Fetch.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	staleAfter time.Duration
}

// StaleAfter overrides the freshness window of the fetched entry.
func StaleAfter(d time.Duration) FetchOption {
	return func(o *fetchOptions) {
		o.staleAfter = d
	}
}

func (c *Cache) fetchOptions(opts []FetchOption) fetchOptions {
	o := fetchOptions{staleAfter: c.staleAfter}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (c *Cache) isStale(e *entry) bool {
	return c.now().Sub(e.updatedAt) >= e.staleAfter
}

// Get returns the entry for k without triggering a fetch.
func (c *Cache) Get(k Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(k.String())
	if !ok {
		return Entry{}, false
	}
	return Entry{Value: e.value, UpdatedAt: e.updatedAt, Stale: c.isStale(e)}, true
}

// Set stores value under k. It outranks every request issued before it.
func (c *Cache) Set(k Key, value any, staleAfter time.Duration) {
	c.mu.Lock()
	c.seq++
	c.store(k, value, staleAfter, c.seq)
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	notify(listeners, Event{Key: k, Kind: EventUpdated})
}

// store must be called with c.mu held.
func (c *Cache) store(k Key, value any, staleAfter time.Duration, seq uint64) {
	c.stats.Sets++
	evicted := c.entries.Add(k.String(), &entry{
		key:        k,
		value:      value,
		updatedAt:  c.now(),
		staleAfter: staleAfter,
		seq:        seq,
	})
	if evicted {
		c.stats.Evictions++
	}
}

// Invalidate removes every entry whose key matches pred and detaches the
// matching in-flight requests so their responses are not cached. It
// returns the number of entries removed.
func (c *Cache) Invalidate(pred Predicate) int {
	c.mu.Lock()
	var removed []Key
	for _, ks := range c.entries.Keys() {
		e, ok := c.entries.Peek(ks)
		if !ok || !pred(e.key) {
			continue
		}
		c.entries.Remove(ks)
		removed = append(removed, e.key)
	}
	for ks, cl := range c.inflight {
		if !pred(cl.key) {
			continue
		}
		cl.superseded = true
		delete(c.inflight, ks)
	}
	c.stats.Invalidations += uint64(len(removed))
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	for _, k := range removed {
		notify(listeners, Event{Key: k, Kind: EventInvalidated})
	}
	return len(removed)
}

// Clear invalidates every entry and detaches every in-flight request.
// Watchers get one EventInvalidated per removed key. Used on logout.
func (c *Cache) Clear() int {
	return c.Invalidate(func(Key) bool { return true })
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Fetch returns the value for k. A fresh entry is returned without
// calling fetch. A stale entry is returned immediately while a
// background request refreshes it. On a miss the caller waits for the
// key's single in-flight request, starting one if needed. A request
// detached by Invalidate while the caller waits is issued again.
func (c *Cache) Fetch(ctx context.Context, k Key, fetch Fetcher, opts ...FetchOption) (any, error) {
	o := c.fetchOptions(opts)
	for {
		v, err := c.fetchOnce(ctx, k, fetch, o)
		if !errors.Is(err, ErrSuperseded) {
			return v, err
		}
	}
}

func (c *Cache) fetchOnce(ctx context.Context, k Key, fetch Fetcher, o fetchOptions) (any, error) {
	ks := k.String()

	c.mu.Lock()
	if e, ok := c.entries.Get(ks); ok {
		c.stats.Hits++
		if c.isStale(e) {
			c.stats.StaleHits++
			if _, running := c.inflight[ks]; !running {
				c.start(context.WithoutCancel(ctx), k, ks, fetch, o)
			}
		}
		v := e.value
		c.mu.Unlock()
		return v, nil
	}

	c.stats.Misses++
	cl, ok := c.inflight[ks]
	if ok {
		c.stats.Deduped++
	} else {
		cl = c.start(context.WithoutCancel(ctx), k, ks, fetch, o)
	}
	c.mu.Unlock()

	return wait(ctx, cl)
}

// Refetch issues a new request for k even when one is already in flight,
// and waits for it. Whichever of the two was issued last wins. If k is
// invalidated before the response arrives, Refetch returns ErrSuperseded.
func (c *Cache) Refetch(ctx context.Context, k Key, fetch Fetcher, opts ...FetchOption) (any, error) {
	o := c.fetchOptions(opts)

	c.mu.Lock()
	cl := c.start(context.WithoutCancel(ctx), k, k.String(), fetch, o)
	c.mu.Unlock()

	return wait(ctx, cl)
}

func wait(ctx context.Context, cl *call) (any, error) {
	select {
	case <-cl.done:
		return cl.val, cl.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// start must be called with c.mu held.
func (c *Cache) start(ctx context.Context, k Key, ks string, fetch Fetcher, o fetchOptions) *call {
	c.seq++
	cl := &call{key: k, seq: c.seq, done: make(chan struct{})}
	c.inflight[ks] = cl

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		v, err := fetch(ctx)
		c.finish(k, ks, cl, v, err, o.staleAfter)
	}()
	return cl
}

func (c *Cache) finish(k Key, ks string, cl *call, v any, err error, staleAfter time.Duration) {
	c.mu.Lock()
	if c.inflight[ks] == cl {
		delete(c.inflight, ks)
	}

	applied := false
	switch {
	case err != nil:
		c.stats.Errors++
		cl.err = fmt.Errorf("%w: %s: %w", ErrLoadFailed, ks, err)
		if e, ok := c.entries.Peek(ks); ok {
			cl.val = e.value
		}
		c.logger.WithFields(log.Fields{"key": ks, "error": err}).Warn("query failed, keeping cached value")
	case cl.superseded:
		c.stats.Discarded++
		cl.err = ErrSuperseded
	default:
		if e, ok := c.entries.Peek(ks); ok && e.seq > cl.seq {
			cl.val = e.value
			c.stats.Discarded++
			break
		}
		c.store(k, v, staleAfter, cl.seq)
		cl.val = v
		applied = true
	}
	listeners := c.snapshotListeners()
	c.mu.Unlock()

	close(cl.done)
	if applied {
		notify(listeners, Event{Key: k, Kind: EventUpdated})
	}
}

// Wait blocks until every background request has finished.
func (c *Cache) Wait() {
	c.bg.Wait()
}

// Watch registers fn to be called after an entry is updated or
// invalidated. fn runs on the goroutine that caused the change and must
// not block. The returned func unregisters it.
func (c *Cache) Watch(fn func(Event)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Cache) snapshotListeners() []func(Event) {
	if len(c.listeners) == 0 {
		return nil
	}
	out := make([]func(Event), 0, len(c.listeners))
	for _, fn := range c.listeners {
		out = append(out, fn)
	}
	return out
}

func notify(listeners []func(Event), ev Event) {
	for _, fn := range listeners {
		fn(ev)
	}
}

// Fetch is the typed form of Cache.Fetch.
func Fetch[T any](ctx context.Context, c *Cache, k Key, fetch func(context.Context) (T, error), opts ...FetchOption) (T, error) {
	v, err := c.Fetch(ctx, k, func(ctx context.Context) (any, error) { return fetch(ctx) }, opts...)
	return typed[T](v, err)
}

// Refetch is the typed form of Cache.Refetch.
func Refetch[T any](ctx context.Context, c *Cache, k Key, fetch func(context.Context) (T, error), opts ...FetchOption) (T, error) {
	v, err := c.Refetch(ctx, k, func(ctx context.Context) (any, error) { return fetch(ctx) }, opts...)
	return typed[T](v, err)
}

func typed[T any](v any, err error) (T, error) {
	var zero T
	if v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("querycache: cached %T is not %T", v, zero)
	}
	return t, err
}
