package challenge

import (
	"context"
	"sync"
	"time"
)

// sweepThreshold is the map size above which writes drop expired entries.
const sweepThreshold = 1024

type memoryEntry struct {
	value    string
	issuedAt time.Time
}

// MemoryCache is an in-process Cache. Outstanding tokens are lost on restart,
// which only forces clients to start the flow again.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) { c.now = now }
}

// NewMemoryCache creates a MemoryCache whose entries live for ttl.
func NewMemoryCache(ttl time.Duration, opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issue implements Cache.
func (c *MemoryCache) Issue(ctx context.Context, key string) (string, error) {
	token := NewToken()
	if err := c.Put(ctx, key, token); err != nil {
		return "", err
	}
	return token, nil
}

// Put implements Cache.
func (c *MemoryCache) Put(_ context.Context, key, value string) error {
	key = NormalizeKey(key)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{value: value, issuedAt: now}
	if len(c.entries) > sweepThreshold {
		c.sweepLocked(now)
	}
	return nil
}

// Consume implements Cache. The entry is removed even when it has expired.
func (c *MemoryCache) Consume(_ context.Context, key string) (string, error) {
	key = NormalizeKey(key)
	now := c.now()

	c.mu.Lock()
	e, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()

	if !ok || c.expired(e, now) {
		return "", ErrNotFound
	}
	return e.value, nil
}

// PeekExpire implements Cache.
func (c *MemoryCache) PeekExpire(_ context.Context, key string) (time.Time, error) {
	key = NormalizeKey(key)
	now := c.now()

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()

	if !ok || c.expired(e, now) {
		return time.Time{}, ErrNotFound
	}
	return e.issuedAt.Add(c.ttl), nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) expired(e memoryEntry, now time.Time) bool {
	return now.Sub(e.issuedAt) > c.ttl
}

func (c *MemoryCache) sweepLocked(now time.Time) {
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
		}
	}
}
