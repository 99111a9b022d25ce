// Package negcache remembers object ids the remote recently reported as
// absent so repeated requests for them do not hit the network.
package negcache

import (
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long an absence record stays valid.
const DefaultTTL = 30 * time.Second

// Cache maps object ids to the time they were last reported absent.
// Expired entries are dropped lazily by Lookup. Ids are compared case
// insensitively. Cache is safe for concurrent use.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithClock sets the time source. This is mainly useful for testing.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		ttl:     DefaultTTL,
		now:     time.Now,
		entries: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup reports whether id has a live absence record. An expired record is
// removed and reported as absent so the caller may try again.
func (c *Cache) Lookup(id string) bool {
	key := strings.ToLower(id)

	c.mu.Lock()
	defer c.mu.Unlock()

	recorded, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.now().Sub(recorded) >= c.ttl {
		delete(c.entries, key)
		return false
	}
	return true
}

// Record stamps id as absent as of now.
func (c *Cache) Record(id string) {
	key := strings.ToLower(id)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = c.now()
}

// Invalidate drops any record for id.
func (c *Cache) Invalidate(id string) {
	key := strings.ToLower(id)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of records, including expired ones not yet evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
