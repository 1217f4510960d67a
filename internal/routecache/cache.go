// Package routecache caches the (player/message) -> ServiceInstance
// routing decisions the message router (internal/router) makes, so that
// a hot player doesn't re-walk the consistent hash ring on every frame.
// Grounded on the original gateway's RouteCache (max_size 10000, ttl
// 300s, LRU eviction), built on hashicorp/golang-lru/v2 wrapped with
// cache-aside TTL logic of its own.
package routecache

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
)

const (
	DefaultMaxSize = 10000
	DefaultTTL     = 300 * time.Second
)

type entry struct {
	instance  *model.ServiceInstance
	expiresAt time.Time
}

// Cache is a bounded, TTL-aware LRU cache of routing decisions.
type Cache struct {
	lru *lru.Cache[string, entry]
	ttl time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

func New(maxSize int, ttl time.Duration) (*Cache, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c, err := lru.New[string, entry](maxSize)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c, ttl: ttl}, nil
}

// Get returns the cached instance for key, promoting it as most-recently
// used, unless the entry has expired (in which case it is evicted and a
// miss is reported).
func (c *Cache) Get(key string) (*model.ServiceInstance, bool) {
	e, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.lru.Remove(key)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.instance, true
}

func (c *Cache) Put(key string, instance *model.ServiceInstance) {
	c.lru.Add(key, entry{instance: instance, expiresAt: time.Now().Add(c.ttl)})
}

func (c *Cache) Invalidate(key string) { c.lru.Remove(key) }

func (c *Cache) Clear() { c.lru.Purge() }

// ClearExpired walks every entry and evicts those past their TTL. Safe to
// run periodically from a background sweeper.
func (c *Cache) ClearExpired() int {
	now := time.Now()
	removed := 0
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if now.After(e.expiresAt) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

type Stats struct {
	Size   int
	Hits   int64
	Misses int64
}

func (c *Cache) Stats() Stats {
	return Stats{
		Size:   c.lru.Len(),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}
