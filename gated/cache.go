package main

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"
)

// profileCache is a thread-safe LRU cache for identity-directory
// lookups. Only definite outcomes (premium, not-premium) are cached;
// lookup failures are always retried.
type profileCache struct {
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List
	mu       sync.Mutex
}

type profileEntry struct {
	key     string
	id      uuid.UUID
	outcome ResolveOutcome
	expires time.Time
}

func newProfileCache(capacity int, ttl time.Duration) *profileCache {
	return &profileCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *profileCache) get(name string) (uuid.UUID, ResolveOutcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[cacheKey(name)]
	if !ok {
		return uuid.Nil, ResolveFailed, false
	}

	entry := elem.Value.(*profileEntry)
	if time.Now().After(entry.expires) {
		c.order.Remove(elem)
		delete(c.items, entry.key)
		return uuid.Nil, ResolveFailed, false
	}

	c.order.MoveToFront(elem)
	return entry.id, entry.outcome, true
}

func (c *profileCache) put(name string, id uuid.UUID, outcome ResolveOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(name)
	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*profileEntry)
		entry.id = id
		entry.outcome = outcome
		entry.expires = time.Now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*profileEntry).key)
		}
	}

	c.items[key] = c.order.PushFront(&profileEntry{
		key:     key,
		id:      id,
		outcome: outcome,
		expires: time.Now().Add(c.ttl),
	})
}

func (c *profileCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
