/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

// RemovalCause describes why an entry left the cache.
type RemovalCause int

// Removal causes.
const (
	// RemovalCauseExplicit means the entry was removed by Remove.
	RemovalCauseExplicit RemovalCause = iota
	// RemovalCauseReplaced means the entry value was overwritten by Add/AddWithTTL.
	RemovalCauseReplaced
	// RemovalCauseExpired means the entry TTL lapsed (observed on access or during cleanup).
	RemovalCauseExpired
	// RemovalCauseCapacity means the entry was evicted to respect maxEntries (including Resize).
	RemovalCauseCapacity
	// RemovalCausePurged means the entry was dropped by Purge.
	RemovalCausePurged
)

// String returns a human-readable name of the cause.
func (c RemovalCause) String() string {
	switch c {
	case RemovalCauseExplicit:
		return "explicit"
	case RemovalCauseReplaced:
		return "replaced"
	case RemovalCauseExpired:
		return "expired"
	case RemovalCauseCapacity:
		return "capacity"
	case RemovalCausePurged:
		return "purged"
	}
	return fmt.Sprintf("unknown(%d)", int(c))
}

// RemovalListener is called for every entry leaving the cache.
// It's always invoked after the internal lock is released, so it may safely call the cache back.
type RemovalListener[K comparable, V any] func(key K, value V, cause RemovalCause)

// Entry is a key-value pair returned by Entries.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

type cacheEntry[K comparable, V any] struct {
	key       K
	value     V
	ttl       time.Duration
	expiresAt time.Time
}

func (e *cacheEntry[K, V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && e.expiresAt.Before(now)
}

type removal[K comparable, V any] struct {
	key   K
	value V
	cause RemovalCause
}

// LRUCache represents an LRU cache with eviction mechanism and Prometheus metrics.
type LRUCache[K comparable, V any] struct {
	maxEntries int

	defaultTTL        time.Duration
	expireAfterAccess bool
	onRemoval         RemovalListener[K, V]

	mu      sync.RWMutex
	lruList *list.List
	cache   map[K]*list.Element // map of cache entries, value is a lruList element

	metricsCollector MetricsCollector

	now func() time.Time
}

// Options represents options for the cache.
type Options[K comparable, V any] struct {
	// DefaultTTL is the default TTL for the cache entries.
	// Please note that expired entries are not removed immediately,
	// but only when they are accessed or during periodic cleanup (see RunPeriodicCleanup).
	DefaultTTL time.Duration

	// ExpireAfterAccess makes every successful Get/GetOrAdd push the entry expiration forward by its TTL,
	// so only entries that are not accessed for the whole TTL expire.
	ExpireAfterAccess bool

	// OnRemoval is notified about every removed entry with the cause of the removal.
	OnRemoval RemovalListener[K, V]

	// Clock returns the current time used for expiration. time.Now is used if it's nil.
	Clock func() time.Time
}

// New creates a new LRUCache with the provided maximum number of entries and metrics collector.
func New[K comparable, V any](maxEntries int, metricsCollector MetricsCollector) (*LRUCache[K, V], error) {
	return NewWithOpts[K, V](maxEntries, metricsCollector, Options[K, V]{})
}

// NewWithOpts creates a new LRUCache with the provided maximum number of entries, metrics collector, and options.
// Metrics collector is used to collect statistics about cache usage.
// It can be nil, in this case, metrics will be disabled.
func NewWithOpts[K comparable, V any](maxEntries int, metricsCollector MetricsCollector, opts Options[K, V]) (*LRUCache[K, V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be greater than 0")
	}
	if opts.DefaultTTL < 0 {
		return nil, fmt.Errorf("defaultTTL must be greater or equal to 0 (no expiration)")
	}
	if opts.ExpireAfterAccess && opts.DefaultTTL == 0 {
		return nil, fmt.Errorf("expireAfterAccess requires positive defaultTTL")
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetricsCollector
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &LRUCache[K, V]{
		maxEntries:        maxEntries,
		lruList:           list.New(),
		cache:             make(map[K]*list.Element),
		metricsCollector:  metricsCollector,
		defaultTTL:        opts.DefaultTTL,
		expireAfterAccess: opts.ExpireAfterAccess,
		onRemoval:         opts.OnRemoval,
		now:               opts.Clock,
	}, nil
}

// Get returns a value from the cache by the provided key.
func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	var removed []removal[K, V]
	c.mu.Lock()
	value, ok, removed = c.get(key, removed)
	c.mu.Unlock()
	c.notify(removed)
	return value, ok
}

// Peek returns a value without updating its LRU position or expiration.
// Expired entries are reported as missing but are left for the cleanup.
func (c *LRUCache[K, V]) Peek(key K) (value V, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	elem, hit := c.cache[key]
	if !hit {
		return value, false
	}
	entry := elem.Value.(*cacheEntry[K, V])
	if entry.expired(c.now()) {
		return value, false
	}
	return entry.value, true
}

// Add adds a value to the cache with the provided key.
// If the cache is full, the oldest entry will be removed.
func (c *LRUCache[K, V]) Add(key K, value V) {
	c.AddWithTTL(key, value, c.defaultTTL)
}

// AddWithTTL adds a value to the cache with the provided key and TTL.
// If the cache is full, the oldest entry will be removed.
// Please note that expired entries are not removed immediately,
// but only when they are accessed or during periodic cleanup (see RunPeriodicCleanup).
func (c *LRUCache[K, V]) AddWithTTL(key K, value V, ttl time.Duration) {
	var removed []removal[K, V]

	c.mu.Lock()
	if elem, ok := c.cache[key]; ok {
		c.lruList.MoveToFront(elem)
		prev := elem.Value.(*cacheEntry[K, V])
		removed = append(removed, removal[K, V]{prev.key, prev.value, RemovalCauseReplaced})
		elem.Value = c.newEntry(key, value, ttl)
		c.metricsCollector.AddRemovals(RemovalCauseReplaced, 1)
	} else {
		removed = c.addNew(key, value, ttl, removed)
	}
	c.mu.Unlock()

	c.notify(removed)
}

// GetOrAdd returns a value from the cache by the provided key.
// If the key does not exist, it adds a new value to the cache.
func (c *LRUCache[K, V]) GetOrAdd(key K, valueProvider func() V) (value V, exists bool) {
	return c.GetOrAddWithTTL(key, valueProvider, c.defaultTTL)
}

// GetOrAddWithTTL returns a value from the cache by the provided key.
// If the key does not exist (or has expired), it adds a new value to the cache with the provided TTL.
// The check and the insertion are done atomically.
func (c *LRUCache[K, V]) GetOrAddWithTTL(key K, valueProvider func() V, ttl time.Duration) (value V, exists bool) {
	var removed []removal[K, V]

	c.mu.Lock()
	value, exists, removed = c.get(key, removed)
	if !exists {
		value = valueProvider()
		removed = c.addNew(key, value, ttl, removed)
	}
	c.mu.Unlock()

	c.notify(removed)
	return value, exists
}

// Remove removes a value from the cache by the provided key.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	elem, ok := c.cache[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	entry := c.removeElement(elem)
	c.metricsCollector.SetAmount(len(c.cache))
	c.metricsCollector.AddRemovals(RemovalCauseExplicit, 1)
	c.mu.Unlock()

	c.notify([]removal[K, V]{{entry.key, entry.value, RemovalCauseExplicit}})
	return true
}

// Purge clears the cache.
// Keep in mind that this method does not reset the cache size.
// Removed entries are reported with RemovalCausePurged.
func (c *LRUCache[K, V]) Purge() {
	var removed []removal[K, V]

	c.mu.Lock()
	if c.onRemoval != nil {
		for elem := c.lruList.Back(); elem != nil; elem = elem.Prev() {
			entry := elem.Value.(*cacheEntry[K, V])
			removed = append(removed, removal[K, V]{entry.key, entry.value, RemovalCausePurged})
		}
	}
	c.metricsCollector.SetAmount(0)
	c.metricsCollector.AddRemovals(RemovalCausePurged, len(c.cache))
	c.cache = make(map[K]*list.Element)
	c.lruList.Init()
	c.mu.Unlock()

	c.notify(removed)
}

// Resize changes the cache size and returns the number of evicted entries.
// Evicted entries whose TTL has already elapsed are reported with RemovalCauseExpired.
func (c *LRUCache[K, V]) Resize(size int) (evicted int) {
	if size <= 0 {
		return 0
	}

	c.mu.Lock()
	c.maxEntries = size
	removed := c.evictOverflow(nil)
	c.mu.Unlock()

	c.notify(removed)
	return len(removed)
}

// Len returns the number of items in the cache.
// Expired but not yet cleaned up entries are counted too.
func (c *LRUCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Entries returns a point-in-time snapshot of all not expired entries, from the most to the least recently used.
// It doesn't affect the LRU order and expiration of entries.
func (c *LRUCache[K, V]) Entries() []Entry[K, V] {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	entries := make([]Entry[K, V], 0, len(c.cache))
	for elem := c.lruList.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*cacheEntry[K, V])
		if entry.expired(now) {
			continue
		}
		entries = append(entries, Entry[K, V]{Key: entry.key, Value: entry.value})
	}
	return entries
}

// CleanupExpired removes all expired entries and returns their number.
// Entries without expiration time are not affected.
func (c *LRUCache[K, V]) CleanupExpired() int {
	var removed []removal[K, V]

	c.mu.Lock()
	now := c.now()
	for _, elem := range c.cache {
		entry := elem.Value.(*cacheEntry[K, V])
		if entry.expired(now) {
			c.removeElement(elem)
			removed = append(removed, removal[K, V]{entry.key, entry.value, RemovalCauseExpired})
		}
	}
	c.metricsCollector.SetAmount(len(c.cache))
	c.metricsCollector.AddRemovals(RemovalCauseExpired, len(removed))
	c.mu.Unlock()

	c.notify(removed)
	return len(removed)
}

// RunPeriodicCleanup runs a cycle of periodic cleanup of expired entries.
// Entries without expiration time are not affected.
// It's supposed to be run in a separate goroutine.
func (c *LRUCache[K, V]) RunPeriodicCleanup(ctx context.Context, cleanupInterval time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CleanupExpired()
		}
	}
}

func (c *LRUCache[K, V]) get(key K, removed []removal[K, V]) (value V, ok bool, _ []removal[K, V]) {
	elem, hit := c.cache[key]
	if !hit {
		c.metricsCollector.IncMisses()
		return value, false, removed
	}
	entry := elem.Value.(*cacheEntry[K, V])
	now := c.now()
	if entry.expired(now) {
		c.removeElement(elem)
		c.metricsCollector.SetAmount(len(c.cache))
		c.metricsCollector.AddRemovals(RemovalCauseExpired, 1)
		c.metricsCollector.IncMisses()
		return value, false, append(removed, removal[K, V]{entry.key, entry.value, RemovalCauseExpired})
	}
	if c.expireAfterAccess && entry.ttl > 0 {
		entry.expiresAt = now.Add(entry.ttl)
	}
	c.lruList.MoveToFront(elem)
	c.metricsCollector.IncHits()
	return entry.value, true, removed
}

func (c *LRUCache[K, V]) newEntry(key K, value V, ttl time.Duration) *cacheEntry[K, V] {
	entry := &cacheEntry[K, V]{key: key, value: value, ttl: ttl}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	return entry
}

func (c *LRUCache[K, V]) addNew(key K, value V, ttl time.Duration, removed []removal[K, V]) []removal[K, V] {
	c.cache[key] = c.lruList.PushFront(c.newEntry(key, value, ttl))
	return c.evictOverflow(removed)
}

// evictOverflow removes least recently used entries until the cache fits maxEntries.
// An entry that has already expired is reported as expired, not as evicted by capacity.
func (c *LRUCache[K, V]) evictOverflow(removed []removal[K, V]) []removal[K, V] {
	now := c.now()
	for len(c.cache) > c.maxEntries {
		entry := c.removeOldest()
		if entry == nil {
			break
		}
		cause := RemovalCauseCapacity
		if entry.expired(now) {
			cause = RemovalCauseExpired
		}
		c.metricsCollector.AddRemovals(cause, 1)
		removed = append(removed, removal[K, V]{entry.key, entry.value, cause})
	}
	c.metricsCollector.SetAmount(len(c.cache))
	return removed
}

func (c *LRUCache[K, V]) removeOldest() *cacheEntry[K, V] {
	elem := c.lruList.Back()
	if elem == nil {
		return nil
	}
	return c.removeElement(elem)
}

func (c *LRUCache[K, V]) removeElement(elem *list.Element) *cacheEntry[K, V] {
	c.lruList.Remove(elem)
	entry := elem.Value.(*cacheEntry[K, V])
	delete(c.cache, entry.key)
	return entry
}

func (c *LRUCache[K, V]) notify(removed []removal[K, V]) {
	if c.onRemoval == nil {
		return
	}
	for _, r := range removed {
		c.onRemoval(r.key, r.value, r.cause)
	}
}
