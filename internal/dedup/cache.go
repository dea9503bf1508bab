package dedup

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

const (
	DefaultTTL        = 24 * time.Hour
	DefaultMaxEntries = 10000
)

var errEventIDRequired = errors.New("event id is required")

// Store records processed webhook events. TryAcquire returns false when the
// event was already seen inside the retention window.
type Store interface {
	TryAcquire(ctx context.Context, eventID, eventType string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type record struct {
	eventType   string
	processedAt time.Time
}

type CacheOptions struct {
	TTL        time.Duration
	MaxEntries int
	Now        func() time.Time
}

// Cache is the process-local Store. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]record
	ttl     time.Duration
	max     int
	now     func() time.Time
}

func NewCache(opts CacheOptions) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		entries: make(map[string]record),
		ttl:     opts.TTL,
		max:     opts.MaxEntries,
		now:     opts.Now,
	}
}

func (c *Cache) TryAcquire(_ context.Context, eventID, eventType string) (bool, error) {
	if eventID == "" {
		return false, errEventIDRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if rec, ok := c.entries[eventID]; ok {
		if now.Sub(rec.processedAt) < c.ttl {
			return false, nil
		}
		delete(c.entries, eventID)
	}

	if len(c.entries) >= c.max {
		c.purgeLocked(now)
	}
	if len(c.entries) >= c.max {
		c.evictOldestLocked()
	}

	c.entries[eventID] = record{eventType: eventType, processedAt: now}
	return true, nil
}

func (c *Cache) Release(_ context.Context, eventID string) error {
	if eventID == "" {
		return errEventIDRequired
	}
	c.mu.Lock()
	delete(c.entries, eventID)
	c.mu.Unlock()
	return nil
}

// Purge drops expired records and returns how many were removed.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked(c.now())
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) purgeLocked(now time.Time) int {
	removed := 0
	for id, rec := range c.entries {
		if now.Sub(rec.processedAt) >= c.ttl {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// evictOldestLocked removes ceil(10%) of capacity, oldest first.
func (c *Cache) evictOldestLocked() {
	n := (c.max + 9) / 10
	if n < 1 {
		n = 1
	}

	type aged struct {
		id string
		at time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for id, rec := range c.entries {
		all = append(all, aged{id: id, at: rec.processedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })

	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(c.entries, a.id)
	}
}
