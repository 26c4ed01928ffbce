package executor

import (
	"sync"
	"time"
)

// Cooldown keeps a route from being retried for ttl after it failed. It is
// safe for concurrent use.
type Cooldown struct {
	until map[string]time.Time // route -> retry allowed after
	ttl   time.Duration
	now   func() time.Time
	mu    sync.Mutex
}

// NewCooldown creates a Cooldown. A zero ttl disables it.
func NewCooldown(ttl time.Duration) *Cooldown {
	return &Cooldown{
		until: make(map[string]time.Time),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Block starts the cooldown for route.
func (c *Cooldown) Block(route string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until[route] = c.now().Add(c.ttl)
}

// Blocked reports whether route is cooling down. Expired entries are dropped.
func (c *Cooldown) Blocked(route string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.until[route]
	if !ok {
		return false
	}
	if c.now().Before(t) {
		return true
	}
	delete(c.until, route)
	return false
}
