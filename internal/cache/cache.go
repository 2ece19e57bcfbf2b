package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quotedesk/internal/market"
	"quotedesk/internal/metrics"
)

// Fetcher is what the cache refreshes from (the tiered fetcher in
// production).
type Fetcher interface {
	Fetch(ctx context.Context, symbol string, tiers []market.Tier) (*market.TimeSeries, error)
}

type entry struct {
	series    *market.TimeSeries // nil records a fetch that found nothing
	fetchedAt time.Time
}

// SeriesCache memoizes tiered fetch results per (symbol, tier class) for
// the plan's TTL. Concurrent callers of an expired key share one in-flight
// refresh. Absence is cached like data; rate-limit failures are not cached
// at all.
type SeriesCache struct {
	F   Fetcher
	now func() time.Time

	mu    sync.RWMutex
	items map[string]entry
	sf    singleflight.Group
}

func New(f Fetcher) *SeriesCache {
	return &SeriesCache{F: f, now: time.Now, items: make(map[string]entry)}
}

// GetOrFetch serves the cached series while it is fresh, refreshing it
// otherwise. A nil series with nil error means the upstream had nothing
// usable for any tier.
func (c *SeriesCache) GetOrFetch(ctx context.Context, symbol string, plan market.TierPlan) (*market.TimeSeries, error) {
	key := symbol + "|" + plan.Class

	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.fetchedAt) < plan.TTL {
		metrics.CacheHits.WithLabelValues(plan.Class).Inc()
		return e.series, nil
	}
	metrics.CacheMisses.WithLabelValues(plan.Class).Inc()

	v, err, _ := c.sf.Do(key, func() (any, error) {
		// Another caller may have finished the refresh while we queued.
		c.mu.RLock()
		e, ok := c.items[key]
		c.mu.RUnlock()
		if ok && c.now().Sub(e.fetchedAt) < plan.TTL {
			return e.series, nil
		}

		s, err := c.F.Fetch(ctx, symbol, plan.Tiers)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.items[key] = entry{series: s, fetchedAt: c.now()}
		c.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	s, _ := v.(*market.TimeSeries)
	return s, nil
}

// Invalidate drops every entry. Used when configuration is swapped.
func (c *SeriesCache) Invalidate() {
	c.mu.Lock()
	c.items = make(map[string]entry)
	c.mu.Unlock()
}
