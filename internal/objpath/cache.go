package objpath

import (
	"reflect"
	"sync"

	"github.com/roach88/bindform/internal/ir"
)

type cacheKey struct {
	root uintptr
	path string
}

type cacheEntry struct {
	value ir.Value
	found bool
}

// Cache memoizes Get per (root identity, path). It belongs to one binding
// session; callers must Invalidate after every successful write.
//
// Thread-safety: safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
	hits    int
	misses  int
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]cacheEntry)}
}

// Get is objpath.Get with memoization.
func (c *Cache) Get(root ir.Object, path string) (ir.Value, bool) {
	if root == nil {
		return nil, false
	}
	key := cacheKey{root: reflect.ValueOf(root).Pointer(), path: path}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.hits++
		return e.value, e.found
	}
	c.misses++
	v, found := Get(root, path)
	c.entries[key] = cacheEntry{value: v, found: found}
	return v, found
}

// Invalidate drops every entry.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Len returns the number of memoized lookups.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit and miss counts since creation.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
