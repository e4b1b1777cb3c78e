// Package cache is a small process-local TTL cache. It backs best-effort,
// rebuildable state (cached AI-generated explanations) and is never part of
// interview correctness.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// TTL caches string values with a fixed time-to-live.
type TTL struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
}

func NewTTL(ttl time.Duration) *TTL {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &TTL{ttl: ttl, entries: make(map[string]entry)}
}

func (c *TTL) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

func (c *TTL) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(c.ttl)}
}

// StartJanitor evicts expired entries periodically until ctx is done.
func (c *TTL) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.evictExpired()
			}
		}
	}()
}

func (c *TTL) evictExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// Len reports the number of live entries.
func (c *TTL) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	now := time.Now()
	for _, e := range c.entries {
		if !now.After(e.expiresAt) {
			n++
		}
	}
	return n
}
