// ABOUTME: Thread-safe TTL cache of claimed idempotency keys.
// ABOUTME: Size-bounded with oldest-first eviction and periodic expiry.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Defaults used when New is given non-positive values.
const (
	DefaultTTL        = 10 * time.Minute
	DefaultMaxEntries = 10000
)

// claim stores when a key was claimed and its position in the order list.
type claim struct {
	at      time.Time
	element *list.Element
}

// Cache tracks claimed keys. The zero value is not usable; call New.
type Cache struct {
	mu         sync.Mutex
	claims     map[string]*claim
	order      *list.List // keys, oldest claim at front
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	done       chan struct{}
	closed     bool
}

// New creates a cache and starts its background expiry loop.
func New(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c := &Cache{
		claims:     make(map[string]*claim),
		order:      list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	go c.expireLoop(min(ttl, time.Minute))
	return c
}

// Claim records key and reports whether it was free. A key whose claim is
// older than the TTL is free again.
func (c *Cache) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if existing, ok := c.claims[key]; ok {
		if now.Sub(existing.at) < c.ttl {
			return false
		}
		existing.at = now
		c.order.MoveToBack(existing.element)
		return true
	}

	if len(c.claims) >= c.maxEntries {
		c.evictOldest()
	}
	c.claims[key] = &claim{at: now, element: c.order.PushBack(key)}
	return true
}

// Release forgets a key so it can be claimed again.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.claims[key]; ok {
		c.order.Remove(existing.element)
		delete(c.claims, key)
	}
}

// Len returns the number of remembered keys, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claims)
}

// evictOldest drops the oldest claim. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.claims, key)
}

func (c *Cache) expireLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.expire()
		case <-c.done:
			return
		}
	}
}

// expire removes claims older than the TTL. Claims are ordered by time, so
// it stops at the first live one.
func (c *Cache) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for e := c.order.Front(); e != nil; {
		key, _ := e.Value.(string)
		if now.Sub(c.claims[key].at) < c.ttl {
			return
		}
		next := e.Next()
		c.order.Remove(e)
		delete(c.claims, key)
		e = next
	}
}

// Close stops the expiry loop. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
