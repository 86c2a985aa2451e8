// Package cache is the in-process result cache for catalog query fragments,
// keyed by (query id, canonical params) with a TTL freshness bound. Eviction
// is lazy: expired entries die on read. A singleflight group collapses
// concurrent loads of the same key into one upstream fetch.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"insight-engine/internal/common/metrics"
	"insight-engine/internal/executor"
)

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Size   int    `json:"size"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// ResultCache caches executor fragments.
type ResultCache struct {
	store  *ttlcache.Cache[string, *executor.Fragment]
	group  singleflight.Group
	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a cache with the given TTL. The cache never runs a janitor
// goroutine; expiry is checked on read, which is enough at this size.
func New(ttl time.Duration) *ResultCache {
	store := ttlcache.New[string, *executor.Fragment](
		ttlcache.WithTTL[string, *executor.Fragment](ttl),
		ttlcache.WithDisableTouchOnHit[string, *executor.Fragment](),
	)
	return &ResultCache{store: store}
}

// Get returns the cached fragment for key, or nil on miss/expiry.
func (c *ResultCache) Get(key string) *executor.Fragment {
	item := c.store.Get(key)
	if item == nil {
		c.misses.Add(1)
		metrics.CacheEventsTotal.WithLabelValues("miss").Inc()
		return nil
	}
	c.hits.Add(1)
	metrics.CacheEventsTotal.WithLabelValues("hit").Inc()
	return item.Value()
}

// Set stores a fragment under key. Last writer wins.
func (c *ResultCache) Set(key string, frag *executor.Fragment) {
	c.store.Set(key, frag, ttlcache.DefaultTTL)
}

// GetOrLoad returns the cached fragment or runs load, storing a successful
// result. Concurrent callers with the same key share one load. The bool
// reports whether the value came from cache.
func (c *ResultCache) GetOrLoad(ctx context.Context, key string, load func(context.Context) (*executor.Fragment, error)) (*executor.Fragment, bool, error) {
	if frag := c.Get(key); frag != nil {
		return frag, true, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another flight may have populated the key while we queued.
		if item := c.store.Get(key); item != nil {
			return item.Value(), nil
		}
		frag, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, frag)
		return frag, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*executor.Fragment), false, nil
}

// Invalidate drops every entry. Manual operational hook; there is no
// fine-grained invalidation on purpose.
func (c *ResultCache) Invalidate() {
	c.store.DeleteAll()
	metrics.CacheEventsTotal.WithLabelValues("invalidate").Inc()
}

// Stats returns hit/miss counters and current size.
func (c *ResultCache) Stats() Stats {
	return Stats{
		Size:   c.store.Len(),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}
