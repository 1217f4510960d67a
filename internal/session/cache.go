package session

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
)

const (
	DefaultLocalCacheSize     = 5000
	DefaultHotSessionThreshold = 10
)

// Cache is the gateway's local hot-session cache, grounded on the
// original gateway's SessionCache: a bounded LRU plus per-entry hit
// counters so HotSessions can report which sessions are busy enough to
// warrant keeping their renewal local instead of round-tripping to the
// shared store.
type Cache struct {
	lru          *lru.Cache[string, *model.Session]
	hotThreshold int64

	mu   sync.Mutex
	hits map[string]*atomic.Int64
}

func NewCache(size int, hotThreshold int64) (*Cache, error) {
	if size <= 0 {
		size = DefaultLocalCacheSize
	}
	if hotThreshold <= 0 {
		hotThreshold = DefaultHotSessionThreshold
	}
	l, err := lru.New[string, *model.Session](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l, hotThreshold: hotThreshold, hits: make(map[string]*atomic.Int64)}, nil
}

func (c *Cache) Get(sessionID string) (*model.Session, bool) {
	s, ok := c.lru.Get(sessionID)
	if ok {
		c.hitCounter(sessionID).Add(1)
	}
	return s, ok
}

func (c *Cache) Put(sessionID string, s *model.Session) {
	c.lru.Add(sessionID, s)
}

func (c *Cache) Remove(sessionID string) {
	c.lru.Remove(sessionID)
	c.mu.Lock()
	delete(c.hits, sessionID)
	c.mu.Unlock()
}

func (c *Cache) hitCounter(sessionID string) *atomic.Int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctr, ok := c.hits[sessionID]
	if !ok {
		ctr = &atomic.Int64{}
		c.hits[sessionID] = ctr
	}
	return ctr
}

// HotSessions returns every cached session whose access count has crossed
// hotThreshold, candidates for proactive auto-renewal.
func (c *Cache) HotSessions() []*model.Session {
	var out []*model.Session
	for _, key := range c.lru.Keys() {
		s, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if c.hitCounter(key).Load() >= c.hotThreshold {
			out = append(out, s)
		}
	}
	return out
}

func (c *Cache) Len() int { return c.lru.Len() }
