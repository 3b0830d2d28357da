package telegram

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type cachedEntity struct {
	entity  Entity
	expires time.Time
}

// EntityCache memoizes ResolvePeer results for a fixed TTL. Concurrent
// lookups of the same reference share one call to the client.
type EntityCache struct {
	client Client
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]cachedEntity
	group   singleflight.Group
}

// NewEntityCache returns a cache in front of client. A ttl <= 0 defaults to
// ten minutes.
func NewEntityCache(client Client, ttl time.Duration) *EntityCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &EntityCache{
		client:  client,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cachedEntity),
	}
}

// Resolve returns the entity for ref, from cache when fresh. A stale entry
// is dropped on lookup.
func (c *EntityCache) Resolve(ctx context.Context, ref string) (Entity, error) {
	c.mu.Lock()
	if e, ok := c.entries[ref]; ok {
		if c.now().Before(e.expires) {
			c.mu.Unlock()
			return e.entity, nil
		}
		delete(c.entries, ref)
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(ref, func() (any, error) {
		ent, err := c.client.ResolvePeer(ctx, ref)
		if err != nil {
			return Entity{}, err
		}
		c.mu.Lock()
		now := c.now()
		c.sweep(now)
		c.entries[ref] = cachedEntity{entity: ent, expires: now.Add(c.ttl)}
		c.mu.Unlock()
		return ent, nil
	})
	if err != nil {
		return Entity{}, err
	}
	return v.(Entity), nil
}

// sweep drops expired entries. c.mu must be held.
func (c *EntityCache) sweep(now time.Time) {
	for ref, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, ref)
		}
	}
}

// ResolveID resolves ref and returns only the canonical id.
func (c *EntityCache) ResolveID(ctx context.Context, ref string) (int64, error) {
	ent, err := c.Resolve(ctx, ref)
	if err != nil {
		return 0, err
	}
	return ent.ID, nil
}

// Invalidate drops a single entry.
func (c *EntityCache) Invalidate(ref string) {
	c.mu.Lock()
	delete(c.entries, ref)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *EntityCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cachedEntity)
	c.mu.Unlock()
}

// Len reports the number of cached entries. Expired entries count until the
// next insert sweeps them.
func (c *EntityCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
