// Package memory implements an in-process response cache.
package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/JakeFAU/buzzcrawl/internal/crawler"
)

const shardCount = 16

type entry struct {
	value   []byte
	expires time.Time
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// Cache is a sharded TTL map. Expired entries are evicted lazily on Get and in
// bulk by Cleanup.
type Cache struct {
	shards [shardCount]*shard
	ttl    time.Duration
	clock  crawler.Clock
}

// New constructs a Cache whose entries live for ttl.
func New(ttl time.Duration, clock crawler.Clock) *Cache {
	c := &Cache{ttl: ttl, clock: clock}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]entry)}
	}
	return c
}

func (c *Cache) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%shardCount]
}

// Get returns a copy of the stored value if it has not expired.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	s := c.shardFor(key)
	now := c.clock.Now()

	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !now.Before(e.expires) {
		s.mu.Lock()
		if cur, still := s.entries[key]; still && !now.Before(cur.expires) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Set stores a copy of value, replacing any previous entry.
func (c *Cache) Set(_ context.Context, key string, value []byte) error {
	s := c.shardFor(key)
	e := entry{
		value:   append([]byte(nil), value...),
		expires: c.clock.Now().Add(c.ttl),
	}
	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

// Clear drops every entry.
func (c *Cache) Clear(context.Context) error {
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[string]entry)
		s.mu.Unlock()
	}
	return nil
}

// Cleanup removes expired entries.
func (c *Cache) Cleanup(context.Context) (int, error) {
	now := c.clock.Now()
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.entries {
			if !now.Before(e.expires) {
				delete(s.entries, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed, nil
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
