package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hivelabs/hivemon/pkg/metrics"
)

// entry holds one cached value with its expiry and access bookkeeping.
// Entries are owned exclusively by the cache; stored values are
// snapshots, immutable once inserted.
type entry[V any] struct {
	data         V
	timestamp    time.Time
	ttl          time.Duration
	accessCount  int64
	lastAccessed time.Time
}

// expired reports whether the entry has outlived its TTL at now
func (e *entry[V]) expired(now time.Time) bool {
	return now.Sub(e.timestamp) > e.ttl
}

// Cache is a TTL and capacity bounded in-memory store keyed by query
// signature. Concurrent callers computing the same key coalesce onto a
// single in-flight fetch.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[string]*entry[V]
	maxEntries int
	group      singleflight.Group

	stopCh   chan struct{}
	stopOnce sync.Once

	// now is replaceable in tests
	now func() time.Time
}

// New creates a cache holding at most maxEntries values. Insertion at
// capacity evicts the least recently accessed entry.
func New[V any](maxEntries int) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Cache[V]{
		entries:    make(map[string]*entry[V]),
		maxEntries: maxEntries,
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}
}

// GetOrCompute returns the live cached value for key, or invokes fetch
// and stores the result with the given TTL. A hit updates access
// bookkeeping only; it never extends the TTL. Concurrent calls for the
// same key share one fetch invocation and its result.
//
// The shared fetch runs detached from any single caller's context:
// one caller cancelling must not fail the flight for the callers
// coalesced onto it. The fetch is bounded by whatever timeout the
// fetcher itself carries, not by caller lifetimes.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, fetch func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another coalesced caller may have stored the value between
		// our miss and this flight starting.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		metrics.CacheMissesTotal.Inc()
		data, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.store(key, ttl, data)
		return data, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Get returns the live cached value for key without computing
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.lookup(key)
}

// Invalidate drops the entry for key, if any
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.group.Forget(key)
}

// Len returns the number of stored entries, including any not yet
// swept expired ones
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartSweeper launches the periodic sweep that removes expired
// entries regardless of access pattern, so idle keys do not linger
// past their TTL
func (c *Cache[V]) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Sweep()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the sweeper
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

// Sweep removes all expired entries now
func (c *Cache[V]) Sweep() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			metrics.CacheEvictionsTotal.WithLabelValues("ttl").Inc()
		}
	}
}

// lookup returns the live value for key and updates its access
// bookkeeping. Expired entries are dropped lazily here.
func (c *Cache[V]) lookup(key string) (V, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if e.expired(now) {
		delete(c.entries, key)
		metrics.CacheEvictionsTotal.WithLabelValues("ttl").Inc()
		var zero V
		return zero, false
	}

	e.accessCount++
	e.lastAccessed = now
	metrics.CacheHitsTotal.Inc()
	return e.data, true
}

// store inserts a freshly computed value, evicting the least recently
// accessed entry when the cache is at capacity
func (c *Cache[V]) store(key string, ttl time.Duration, data V) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}

	c.entries[key] = &entry[V]{
		data:         data,
		timestamp:    now,
		ttl:          ttl,
		accessCount:  0,
		lastAccessed: now,
	}
}

// evictOldestLocked removes the entry with the smallest lastAccessed.
// Ties are broken arbitrarily. Caller holds the lock.
func (c *Cache[V]) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	first := true

	for key, e := range c.entries {
		if first || e.lastAccessed.Before(oldest) {
			oldestKey = key
			oldest = e.lastAccessed
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		metrics.CacheEvictionsTotal.WithLabelValues("lru").Inc()
	}
}
