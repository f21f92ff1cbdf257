// Package lookupcache provides a bounded in-memory TTL cache for
// directory resolution results. Inbound mail tends to arrive in bursts
// that hit the same sites, groups and people over and over; the cache
// keeps those lookups off the database.
package lookupcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/leolive/onebody/logger"
	"github.com/leolive/onebody/pkg/metrics"
)

// Entry is one cached lookup result. A negative entry records that the
// key resolved to nothing; Value is nil then and Err carries the
// original not-found error.
type Entry struct {
	Value     any
	Err       error // set on negative entries
	Negative  bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Cache is a bounded TTL map with singleflight fetch coalescing.
// Negative results get their own, typically much shorter, TTL so that a
// newly created group or person becomes routable quickly.
type Cache struct {
	mu              sync.RWMutex
	entries         map[string]*Entry
	positiveTTL     time.Duration
	negativeTTL     time.Duration
	maxSize         int
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupStopped  chan struct{}
	stopped         bool

	sfGroup singleflight.Group

	hits   uint64
	misses uint64
}

// New creates a cache and starts its background cleanup goroutine.
func New(positiveTTL, negativeTTL time.Duration, maxSize int, cleanupInterval time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}

	c := &Cache{
		entries:         make(map[string]*Entry),
		positiveTTL:     positiveTTL,
		negativeTTL:     negativeTTL,
		maxSize:         maxSize,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupStopped:  make(chan struct{}),
	}
	go c.cleanupLoop()

	logger.Info("lookup cache initialized",
		"positive_ttl", positiveTTL, "negative_ttl", negativeTTL,
		"max_size", maxSize, "cleanup_interval", cleanupInterval)
	return c
}

// Key builds a cache key from a lookup kind and its arguments.
func Key(kind string, args ...any) string {
	key := kind
	for _, a := range args {
		key += fmt.Sprintf("\x00%v", a)
	}
	return key
}

// GetOrFetch returns the cached entry for key, or runs fetch and caches
// its result. Concurrent callers for the same key share one fetch.
//
// fetch reports a negative result by returning (nil, notFoundErr, true);
// the error is cached with the negative TTL and returned to every
// caller during that window. A fetch error with negative == false is
// not cached at all.
func (c *Cache) GetOrFetch(key string, fetch func() (any, error, bool)) (any, error) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if exists && !time.Now().After(entry.ExpiresAt) {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		metrics.DirectoryCacheHitsTotal.Inc()
		if entry.Negative {
			return nil, entry.Err
		}
		return entry.Value, nil
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	metrics.DirectoryCacheMissesTotal.Inc()

	result, err, shared := c.sfGroup.Do(key, func() (any, error) {
		value, fetchErr, negative := fetch()
		if fetchErr != nil && !negative {
			return nil, fetchErr
		}

		now := time.Now()
		entry := &Entry{
			Value:     value,
			Err:       fetchErr,
			Negative:  negative,
			CreatedAt: now,
		}
		if negative {
			entry.ExpiresAt = now.Add(c.negativeTTL)
		} else {
			entry.ExpiresAt = now.Add(c.positiveTTL)
		}

		c.mu.Lock()
		if len(c.entries) >= c.maxSize {
			c.evictOldest()
		}
		c.entries[key] = entry
		metrics.DirectoryCacheEntries.Set(float64(len(c.entries)))
		c.mu.Unlock()

		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		metrics.DirectoryCacheSharedFetchesTotal.Inc()
	}

	entry = result.(*Entry)
	if entry.Negative {
		return nil, entry.Err
	}
	return entry.Value, nil
}

// Invalidate removes one entry, for example after a directory change.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	metrics.DirectoryCacheEntries.Set(float64(len(c.entries)))
}

// Clear removes all entries and resets the hit counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
	c.hits = 0
	c.misses = 0
	metrics.DirectoryCacheEntries.Set(0)
}

// Stats returns hit and miss counts and the current size.
func (c *Cache) Stats() (hits, misses uint64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, len(c.entries)
}

// evictOldest removes the entry closest to expiry. Caller must hold the
// write lock.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for key, entry := range c.entries {
		if first || entry.ExpiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.ExpiresAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *Cache) cleanupLoop() {
	defer close(c.cleanupStopped)

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *Cache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		logger.Debug("lookup cache cleanup", "removed", removed, "remaining", len(c.entries))
		metrics.DirectoryCacheEntries.Set(float64(len(c.entries)))
	}
}

// Stop shuts the cleanup goroutine down, waiting up to the context
// deadline.
func (c *Cache) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	close(c.stopCleanup)

	select {
	case <-c.cleanupStopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
