package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemory builds an in-process Cache backed by a mutex-guarded map.
// Expired entries are evicted lazily on lookup.
func NewMemory() Cache {
	return &memoryCache{entries: make(map[string]entry)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: cp, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (c *memoryCache) Close(context.Context) error { return nil }
