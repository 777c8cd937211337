// Package cache provides caching implementations for moim.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Stats reports in-process cache usage.
type Stats struct {
	Size     int   `json:"size"`
	Capacity int   `json:"capacity"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
}

// LRUCache is an in-process cache keyed by tenant.
// Values and counters share one recency list, so both are bounded by maxSize.
// It is the community cache and the L1 of TwoPhaseCache.
type LRUCache struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]*list.Element
	recency *list.List
	hits    int64
	misses  int64
	now     func() time.Time
}

type lruEntry struct {
	key       string
	value     []byte
	count     int64
	expiresAt time.Time
}

func (e *lruEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewLRUCache creates an LRU cache holding at most maxSize entries.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		recency: list.New(),
		now:     time.Now,
	}
}

// Get returns the value stored under key, or nil on a miss.
func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.lookup(scopedKey(tenantID, "v:"+key))
	if e == nil {
		c.misses++
		return nil, nil
	}
	c.hits++
	return e.value, nil
}

// Set stores value under key. A non-positive ttl keeps it until evicted.
func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return ErrTenantRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.upsert(scopedKey(tenantID, "v:"+key))
	e.value = value
	e.expiresAt = c.deadline(ttl)
	return nil
}

// Delete removes key.
func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[scopedKey(tenantID, "v:"+key)]; ok {
		c.remove(elem)
	}
	return nil
}

// IncrementCounter counts calls within a fixed window that starts on the first call.
func (c *LRUCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, ErrTenantRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fullKey := scopedKey(tenantID, "n:"+key)
	if e := c.lookup(fullKey); e != nil {
		e.count++
		return e.count, nil
	}

	e := c.upsert(fullKey)
	e.count = 1
	e.expiresAt = c.deadline(window)
	return 1, nil
}

// Ping always succeeds.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops every entry.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.recency.Init()
	return nil
}

// Stats returns the current size and hit counts.
func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:     c.recency.Len(),
		Capacity: c.maxSize,
		Hits:     c.hits,
		Misses:   c.misses,
	}
}

// lookup returns the live entry for fullKey and marks it recently used.
func (c *LRUCache) lookup(fullKey string) *lruEntry {
	elem, ok := c.entries[fullKey]
	if !ok {
		return nil
	}
	e := elem.Value.(*lruEntry)
	if e.expired(c.now()) {
		c.remove(elem)
		return nil
	}
	c.recency.MoveToFront(elem)
	return e
}

// upsert returns the entry for fullKey, creating it and evicting the
// least recently used entries when needed.
func (c *LRUCache) upsert(fullKey string) *lruEntry {
	if elem, ok := c.entries[fullKey]; ok {
		c.recency.MoveToFront(elem)
		return elem.Value.(*lruEntry)
	}

	e := &lruEntry{key: fullKey}
	c.entries[fullKey] = c.recency.PushFront(e)
	for c.recency.Len() > c.maxSize {
		c.remove(c.recency.Back())
	}
	return e
}

func (c *LRUCache) remove(elem *list.Element) {
	c.recency.Remove(elem)
	delete(c.entries, elem.Value.(*lruEntry).key)
}

func (c *LRUCache) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func scopedKey(tenantID, key string) string {
	return tenantID + ":" + key
}
