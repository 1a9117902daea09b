package resolver

import (
	"sync"
	"time"
)

// ttlCache is a tiny expiring map for resolver results. Entries are checked
// lazily on read, so no background sweeper is needed.
type ttlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	res     Result
	expires time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *ttlCache) get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return Result{}, false
	}
	return e.res, true
}

func (c *ttlCache) set(key string, res Result) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{res: res, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
