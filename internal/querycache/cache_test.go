package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nhle/content-portal/internal/logging"
)

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, size int, opts ...Option) *Cache {
	t.Helper()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	c := New(size, opts...)
	t.Cleanup(c.Wait)
	return c
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestFetchFreshHitSkipsNetwork(t *testing.T) {
	c := newTestCache(t, 10)
	k := Jobs.Detail("1")
	c.Set(k, "cached", time.Minute)

	got, err := c.Fetch(context.Background(), k, func(context.Context) (any, error) {
		t.Fatal("fetcher called on fresh hit")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got != "cached" {
		t.Errorf("Fetch() = %v, want cached", got)
	}
	if s := c.Stats(); s.Hits != 1 || s.Misses != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestFetchDeduplicatesConcurrentMisses(t *testing.T) {
	c := newTestCache(t, 10)
	k := Articles.PublicList(map[string]string{"lang": "en"})

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "page", nil
	}

	const callers = 5
	var wg sync.WaitGroup
	results := make([]any, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Fetch(context.Background(), k, fetch)
			if err != nil {
				t.Errorf("Fetch: %v", err)
			}
			results[i] = v
		}(i)
	}

	waitFor(t, func() bool { return c.Stats().Misses == callers })
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("fetcher called %d times, want 1", calls.Load())
	}
	for i, v := range results {
		if v != "page" {
			t.Errorf("caller %d got %v", i, v)
		}
	}
	if s := c.Stats(); s.Deduped != callers-1 {
		t.Errorf("Deduped = %d, want %d", s.Deduped, callers-1)
	}
}

func TestFetchStaleWhileRevalidate(t *testing.T) {
	clk := newClock()
	c := newTestCache(t, 10, WithClock(clk.Now))
	k := Jobs.PublicList(nil)
	c.Set(k, "old", time.Minute)
	clk.Advance(2 * time.Minute)

	release := make(chan struct{})
	got, err := c.Fetch(context.Background(), k, func(context.Context) (any, error) {
		<-release
		return "new", nil
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got != "old" {
		t.Errorf("Fetch() = %v, want stale value returned immediately", got)
	}

	close(release)
	c.Wait()

	e, ok := c.Get(k)
	if !ok || e.Value != "new" || e.Stale {
		t.Errorf("after revalidation entry = %+v, ok = %v", e, ok)
	}
	if s := c.Stats(); s.StaleHits != 1 {
		t.Errorf("StaleHits = %d", s.StaleHits)
	}
}

func TestLastRequestWins(t *testing.T) {
	c := newTestCache(t, 10)
	k := Jobs.PublicList(map[string]string{"job_type": "GOVT"})

	started := make(chan struct{})
	releaseFirst := make(chan struct{})
	firstDone := make(chan any, 1)
	go func() {
		v, _ := c.Fetch(context.Background(), k, func(context.Context) (any, error) {
			close(started)
			<-releaseFirst
			return "first", nil
		})
		firstDone <- v
	}()
	<-started

	got, err := c.Refetch(context.Background(), k, func(context.Context) (any, error) {
		return "second", nil
	})
	if err != nil || got != "second" {
		t.Fatalf("Refetch() = %v, %v", got, err)
	}

	close(releaseFirst)
	if v := <-firstDone; v != "second" {
		t.Errorf("slow caller got %v, want the newer response", v)
	}
	c.Wait()

	e, _ := c.Get(k)
	if e.Value != "second" {
		t.Errorf("cached value = %v, want second", e.Value)
	}
	if s := c.Stats(); s.Discarded != 1 {
		t.Errorf("Discarded = %d, want 1", s.Discarded)
	}
}

func TestInvalidateListFamilyOnly(t *testing.T) {
	c := newTestCache(t, 10)
	c.Set(Jobs.PublicList(map[string]string{"job_type": "GOVT"}), 1, time.Minute)
	c.Set(Jobs.AdminList(nil), 2, time.Minute)
	c.Set(Jobs.Detail("9"), 3, time.Minute)
	c.Set(Articles.PublicList(nil), 4, time.Minute)

	var events []Event
	stop := c.Watch(func(ev Event) { events = append(events, ev) })
	defer stop()

	if n := c.Invalidate(Jobs.MutationTargets("")); n != 2 {
		t.Fatalf("Invalidate removed %d, want 2", n)
	}
	if _, ok := c.Get(Jobs.Detail("9")); !ok {
		t.Error("job detail dropped by list invalidation")
	}
	if _, ok := c.Get(Articles.PublicList(nil)); !ok {
		t.Error("articles dropped by jobs invalidation")
	}
	if len(events) != 2 || events[0].Kind != EventInvalidated {
		t.Errorf("events = %+v", events)
	}

	if n := c.Invalidate(Jobs.MutationTargets("9")); n != 1 {
		t.Errorf("detail invalidation removed %d, want 1", n)
	}
}

func TestInvalidateDetachesInFlightRequest(t *testing.T) {
	c := newTestCache(t, 10)
	k := Notifications.Sub("roles", "unseen")

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := c.Refetch(context.Background(), k, func(context.Context) (any, error) {
			close(started)
			<-release
			return "pre-mutation", nil
		})
		done <- err
	}()
	<-started

	c.Invalidate(Resource("notifications"))
	close(release)
	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("Refetch error = %v, want ErrSuperseded", err)
	}
	c.Wait()

	if _, ok := c.Get(k); ok {
		t.Error("response issued before invalidation was cached")
	}
	if s := c.Stats(); s.Discarded != 1 {
		t.Errorf("Discarded = %d, want 1", s.Discarded)
	}
}

func TestFetchReissuesSupersededRequest(t *testing.T) {
	c := newTestCache(t, 10)
	k := Notifications.Sub("roles", "unseen")

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	type result struct {
		v   any
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := c.Fetch(context.Background(), k, func(context.Context) (any, error) {
			if calls.Add(1) == 1 {
				close(started)
				<-release
				return "pre-mutation", nil
			}
			return "post-mutation", nil
		})
		done <- result{v, err}
	}()
	<-started

	c.Invalidate(Exact(k))
	close(release)
	got := <-done
	if got.err != nil {
		t.Fatalf("Fetch: %v", got.err)
	}
	if got.v != "post-mutation" {
		t.Errorf("Fetch = %v, want the value read after invalidation", got.v)
	}
	if calls.Load() != 2 {
		t.Errorf("fetcher calls = %d, want 2", calls.Load())
	}
	if e, ok := c.Get(k); !ok || e.Value != "post-mutation" {
		t.Errorf("cached entry = %+v, %v", e, ok)
	}
}

func TestFetchErrorKeepsCachedValue(t *testing.T) {
	c := newTestCache(t, 10)
	k := Articles.Detail("3")
	c.Set(k, "kept", time.Minute)

	boom := errors.New("connection reset")
	got, err := c.Refetch(context.Background(), k, func(context.Context) (any, error) {
		return nil, boom
	})
	if !errors.Is(err, ErrLoadFailed) || !errors.Is(err, boom) {
		t.Fatalf("error = %v", err)
	}
	if got != "kept" {
		t.Errorf("value on error = %v, want cached", got)
	}
	if e, ok := c.Get(k); !ok || e.Value != "kept" {
		t.Errorf("entry after error = %+v, %v", e, ok)
	}
}

func TestFetchMissErrorHasNoValue(t *testing.T) {
	c := newTestCache(t, 10)
	got, err := Fetch(context.Background(), c, Jobs.Detail("x"), func(context.Context) (string, error) {
		return "", errors.New("down")
	})
	if !errors.Is(err, ErrLoadFailed) {
		t.Fatalf("error = %v", err)
	}
	if got != "" {
		t.Errorf("value = %q", got)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after failed miss", c.Len())
	}
}

func TestLRUEviction(t *testing.T) {
	c := newTestCache(t, 2)
	a, b, d := Jobs.Detail("a"), Jobs.Detail("b"), Jobs.Detail("d")
	c.Set(a, 1, time.Minute)
	c.Set(b, 2, time.Minute)
	c.Get(a)
	c.Set(d, 3, time.Minute)

	if _, ok := c.Get(b); ok {
		t.Error("least recently used entry survived")
	}
	if _, ok := c.Get(a); !ok {
		t.Error("recently used entry evicted")
	}
	if s := c.Stats(); s.Evictions != 1 {
		t.Errorf("Evictions = %d", s.Evictions)
	}
}

func TestClearEmptiesCache(t *testing.T) {
	c := newTestCache(t, 10)
	c.Set(Jobs.Detail("1"), 1, time.Minute)
	c.Set(Articles.Detail("1"), 1, time.Minute)

	var invalidated []Key
	stop := c.Watch(func(ev Event) {
		if ev.Kind == EventInvalidated {
			invalidated = append(invalidated, ev.Key)
		}
	})
	defer stop()

	if n := c.Clear(); n != 2 {
		t.Errorf("Clear() = %d, want 2", n)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear", c.Len())
	}
	if len(invalidated) != 2 {
		t.Errorf("invalidation events = %v, want one per key", invalidated)
	}
	if s := c.Stats(); s.Invalidations != 2 {
		t.Errorf("Invalidations = %d", s.Invalidations)
	}
}

func TestClearDetachesInFlightRequest(t *testing.T) {
	c := newTestCache(t, 10)
	k := Articles.Detail("7")

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := c.Refetch(context.Background(), k, func(context.Context) (any, error) {
			close(started)
			<-release
			return "signed-in view", nil
		})
		done <- err
	}()
	<-started

	c.Clear()
	close(release)
	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("Refetch error = %v, want ErrSuperseded", err)
	}
	c.Wait()
	if c.Len() != 0 {
		t.Error("response issued before Clear was cached")
	}
}

func TestTypedFetchRejectsWrongType(t *testing.T) {
	c := newTestCache(t, 10)
	k := Jobs.Detail("1")
	c.Set(k, 42, time.Minute)

	_, err := Fetch(context.Background(), c, k, func(context.Context) (string, error) { return "x", nil })
	if err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestCollectorReportsStats(t *testing.T) {
	c := newTestCache(t, 10)
	c.Set(Jobs.Detail("1"), 1, time.Minute)
	c.Get(Jobs.Detail("1"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(c.Collector())
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	found := map[string]float64{}
	for _, mf := range mfs {
		m := mf.GetMetric()[0]
		if m.GetCounter() != nil {
			found[mf.GetName()] = m.GetCounter().GetValue()
		} else if m.GetGauge() != nil {
			found[mf.GetName()] = m.GetGauge().GetValue()
		}
	}
	if found["portal_querycache_sets_total"] != 1 {
		t.Errorf("sets_total = %v", found["portal_querycache_sets_total"])
	}
	if found["portal_querycache_entries"] != 1 {
		t.Errorf("entries = %v", found["portal_querycache_entries"])
	}
}
