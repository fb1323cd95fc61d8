package querycache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Stats counts cache activity since the cache was created.
type Stats struct {
	Hits          uint64
	StaleHits     uint64
	Misses        uint64
	Deduped       uint64
	Sets          uint64
	Evictions     uint64
	Invalidations uint64
	Errors        uint64

	// Discarded counts responses dropped because a newer request for
	// the same key had already been applied or the key was invalidated
	// while they were in flight.
	Discarded uint64
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// collector exposes Stats as Prometheus metrics.
type collector struct {
	cache *Cache

	requests      *prometheus.Desc
	sets          *prometheus.Desc
	evictions     *prometheus.Desc
	invalidations *prometheus.Desc
	errors        *prometheus.Desc
	discarded     *prometheus.Desc
	entries       *prometheus.Desc
}

// Collector returns a prometheus.Collector reporting this cache's
// counters under the portal_querycache_ prefix.
func (c *Cache) Collector() prometheus.Collector {
	name := func(n string) string { return prometheus.BuildFQName("portal", "querycache", n) }
	return &collector{
		cache:         c,
		requests:      prometheus.NewDesc(name("requests_total"), "Cache lookups by result.", []string{"result"}, nil),
		sets:          prometheus.NewDesc(name("sets_total"), "Entries written.", nil, nil),
		evictions:     prometheus.NewDesc(name("evictions_total"), "Entries evicted by the LRU bound.", nil, nil),
		invalidations: prometheus.NewDesc(name("invalidations_total"), "Entries removed by invalidation.", nil, nil),
		errors:        prometheus.NewDesc(name("fetch_errors_total"), "Failed fetches.", nil, nil),
		discarded:     prometheus.NewDesc(name("discarded_responses_total"), "Out-of-order responses dropped.", nil, nil),
		entries:       prometheus.NewDesc(name("entries"), "Entries currently cached.", nil, nil),
	}
}

func (m *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.requests
	ch <- m.sets
	ch <- m.evictions
	ch <- m.invalidations
	ch <- m.errors
	ch <- m.discarded
	ch <- m.entries
}

func (m *collector) Collect(ch chan<- prometheus.Metric) {
	s := m.cache.Stats()
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	counter(m.requests, s.Hits-s.StaleHits, "hit")
	counter(m.requests, s.StaleHits, "stale")
	counter(m.requests, s.Misses, "miss")
	counter(m.sets, s.Sets)
	counter(m.evictions, s.Evictions)
	counter(m.invalidations, s.Invalidations)
	counter(m.errors, s.Errors)
	counter(m.discarded, s.Discarded)
	ch <- prometheus.MustNewConstMetric(m.entries, prometheus.GaugeValue, float64(m.cache.Len()))
}
