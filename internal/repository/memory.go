package repository

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	revision  int64
	payload   []byte
	expiresAt time.Time
}

// MemoryGridCache holds at most one entry per week: the newest revision seen.
type MemoryGridCache struct {
	mu      sync.Mutex
	entries map[int64]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryGridCache(ttl time.Duration) *MemoryGridCache {
	return &MemoryGridCache{
		entries: make(map[int64]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryGridCache) GetWeek(_ context.Context, weekStart time.Time, revision int64) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[weekStart.Unix()]
	if !ok || e.revision != revision {
		return nil, false, nil
	}
	if c.ttl > 0 && c.now().After(e.expiresAt) {
		delete(c.entries, weekStart.Unix())
		return nil, false, nil
	}
	return e.payload, true, nil
}

func (c *MemoryGridCache) SetWeek(_ context.Context, weekStart time.Time, revision int64, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[weekStart.Unix()]; ok && e.revision > revision {
		return nil
	}
	c.entries[weekStart.Unix()] = memoryEntry{
		revision:  revision,
		payload:   append([]byte(nil), payload...),
		expiresAt: c.now().Add(c.ttl),
	}
	return nil
}

// Len reports how many weeks are cached.
func (c *MemoryGridCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
