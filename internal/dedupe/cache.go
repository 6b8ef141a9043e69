// ABOUTME: TTL cache of send idempotency keys
// ABOUTME: Suppresses a repeated submission of the same user intent within a time window

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// claim records when a key was claimed and its position in claim order.
type claim struct {
	at      time.Time
	element *list.Element
}

// Cache remembers recently claimed keys for ttl, holding at most maxSize of
// them. The oldest claim is evicted first when full.
type Cache struct {
	mu      sync.Mutex
	claims  map[string]*claim
	order   *list.List // keys, oldest claim at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache and starts its sweeper. Call Close to stop it.
func New(ttl time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache{
		claims:  make(map[string]*claim),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweep(sweepInterval(ttl))
	return c
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > time.Minute {
		return time.Minute
	}
	return ttl
}

// Claim marks key as in use. It returns false when key was already claimed
// within the ttl, in which case nothing changes.
func (c *Cache) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if cl, ok := c.claims[key]; ok {
		if now.Sub(cl.at) < c.ttl {
			return false
		}
		c.removeLocked(key, cl)
	}

	if len(c.claims) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.removeLocked(oldest, c.claims[oldest])
		}
	}

	c.claims[key] = &claim{at: now, element: c.order.PushBack(key)}
	return true
}

// Release forgets key so it can be claimed again. Used when the claimed
// action was rejected before it took effect.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.claims[key]; ok {
		c.removeLocked(key, cl)
	}
}

// Seen reports whether key is currently claimed.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cl, ok := c.claims[key]
	return ok && c.now().Sub(cl.at) < c.ttl
}

// Len returns the number of stored claims, expired ones included until swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claims)
}

// removeLocked deletes a claim. Must be called with mu held.
func (c *Cache) removeLocked(key string, cl *claim) {
	if cl == nil {
		return
	}
	c.order.Remove(cl.element)
	delete(c.claims, key)
}

func (c *Cache) sweep(every time.Duration) {
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

// expire drops claims older than ttl. Claims are in time order, so it stops
// at the first live one.
func (c *Cache) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for e := c.order.Front(); e != nil; {
		key, _ := e.Value.(string)
		cl := c.claims[key]
		if cl != nil && now.Sub(cl.at) < c.ttl {
			return
		}
		next := e.Next()
		c.order.Remove(e)
		delete(c.claims, key)
		e = next
	}
}

// Close stops the sweeper. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
