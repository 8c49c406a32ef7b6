// Package imagecache holds photos that are waiting for their follow-up
// question. Entries are keyed by user ID and expire after a fixed TTL, so an
// abandoned upload never pins memory indefinitely.
package imagecache

import (
	"sync"
	"time"

	"github.com/wenqt/florabot/config"
)

type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
}

type entry struct {
	data     []byte
	storedAt time.Time
}

func NewCache(cfg *config.Config) *Cache {
	return New(cfg.ImageTTL())
}

func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
	}
}

// Put stashes a pending image for the user, replacing any earlier one.
func (c *Cache) Put(userID string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = entry{data: data, storedAt: time.Now()}
}

// Take removes and returns the user's pending image. Expired entries are
// treated as absent. Each image is consumed by at most one question.
func (c *Cache) Take(userID string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[userID]
	if !ok {
		return nil, false
	}
	delete(c.entries, userID)

	if time.Since(e.storedAt) > c.ttl {
		return nil, false
	}
	return e.data, true
}

// Len counts live (unexpired) entries, sweeping dead ones as it goes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for userID, e := range c.entries {
		if time.Since(e.storedAt) > c.ttl {
			delete(c.entries, userID)
			continue
		}
		n++
	}
	return n
}
