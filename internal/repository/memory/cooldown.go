package memory

import (
	"context"
	"sync"
	"time"
)

// Cooldown is a process-local SETNX-with-TTL.
type Cooldown struct {
	mu    sync.Mutex
	now   func() time.Time
	locks map[string]time.Time
}

func NewCooldown(now func() time.Time) *Cooldown {
	if now == nil {
		now = time.Now
	}
	return &Cooldown{now: now, locks: make(map[string]time.Time)}
}

func (c *Cooldown) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if until, ok := c.locks[key]; ok && now.Before(until) {
		return false, nil
	}
	c.locks[key] = now.Add(ttl)
	return true, nil
}

func (c *Cooldown) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.locks, key)
	return nil
}
