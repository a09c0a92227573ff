// Package cache is the process-wide read cache with tag-based invalidation.
//
// Every cached value is stored under a key and labelled with one or more tags.
// Writers never delete keys directly; after a successful commit they call
// Invalidate with the tags their write affects, and every entry carrying one
// of those tags is dropped.
//
// STALE LOADS:
// A read that started before an invalidation may finish after it, holding
// data from before the write. Each tag has a generation counter that
// Invalidate bumps; Remember records the generations before loading and
// refuses to store the result if any of them moved. Generations only matter
// while a load is in flight, so the counters are dropped whenever the cache
// goes idle and the map never outgrows the set of concurrently loaded tags.
//
// The tag index (tag → keys) follows the LRU: a key that is evicted, expired
// or removed is unlinked from every tag it carried.
package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Tags shared by the services that read and write tools and votes.
const (
	TagToolsList   = "tools-list"
	TagToolDetails = "tool-details"
	TagUserVotes   = "user-votes"
)

// UserVotesTag scopes vote-status entries to one user.
func UserVotesTag(userID string) string {
	return "user-" + userID + "-votes"
}

// Invalidator is what writers depend on. *Cache implements it; a nil *Cache
// is a valid no-op Invalidator.
type Invalidator interface {
	Invalidate(tags ...string)
}

type entry struct {
	value     any
	expiresAt time.Time
	tags      []string
}

// Cache is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	lru      *expirable.LRU[string, entry]
	tags     map[string]map[string]struct{} // tag → keys
	gens     map[string]uint64              // tag → generation, only while loads are in flight
	inflight int
	now      func() time.Time
}

// New returns a cache holding at most size entries. Expiry is per entry (see
// Remember), so the LRU itself is created without a TTL.
func New(size int) *Cache {
	if size <= 0 {
		size = 1024
	}
	c := &Cache{
		tags: make(map[string]map[string]struct{}),
		gens: make(map[string]uint64),
		now:  time.Now,
	}
	// Without a TTL the LRU runs no expiry goroutine, so the callback only
	// fires inside Add and Remove, which are always called with c.mu held.
	c.lru = expirable.NewLRU[string, entry](size, c.unlink, 0)
	return c
}

// unlink removes key from the tag index. Caller holds c.mu.
func (c *Cache) unlink(key string, e entry) {
	for _, tag := range e.tags {
		keys := c.tags[tag]
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.tags, tag)
		}
	}
}

// Invalidate drops every entry labelled with any of tags.
func (c *Cache) Invalidate(tags ...string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, tag := range tags {
		if c.inflight > 0 {
			c.gens[tag]++
		}
		for key := range c.tags[tag] {
			c.lru.Remove(key)
		}
		delete(c.tags, tag)
	}
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		c.lru.Remove(key)
		return nil, false
	}
	return e.value, true
}

// acquire records the generations of tags and marks a load as in flight.
// Every acquire must be paired with a release.
func (c *Cache) acquire(tags []string) []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inflight++
	out := make([]uint64, len(tags))
	for i, tag := range tags {
		out[i] = c.gens[tag]
	}
	return out
}

func (c *Cache) release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inflight--
	if c.inflight == 0 {
		clear(c.gens)
	}
}

// store saves value unless one of its tags was invalidated since gens was taken.
func (c *Cache) store(key string, value any, ttl time.Duration, tags []string, gens []uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, tag := range tags {
		if c.gens[tag] != gens[i] {
			return false
		}
	}

	c.lru.Add(key, entry{value: value, expiresAt: c.now().Add(ttl), tags: append([]string(nil), tags...)})
	for _, tag := range tags {
		keys, ok := c.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			c.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}
	return true
}

// Remember returns the cached value for key, or calls load and caches its
// result for ttl under tags.
//
// load reports whether its result may be cached. Fail-open reads return
// (empty, false, nil) so a transient storage error is not remembered for the
// full TTL. Errors are never cached.
//
// Cached values are shared between callers and must be treated as read-only.
func Remember[T any](c *Cache, key string, ttl time.Duration, tags []string, load func() (T, bool, error)) (T, error) {
	if c == nil {
		v, _, err := load()
		return v, err
	}

	if v, ok := c.get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	gens := c.acquire(tags)
	defer c.release()

	v, cacheable, err := load()
	if err != nil {
		return v, err
	}
	if cacheable && ttl > 0 {
		c.store(key, v, ttl, tags, gens)
	}
	return v, nil
}
