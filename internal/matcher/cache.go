package matcher

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of compiled patterns kept in memory.
const DefaultCacheSize = 4096

type cacheKey struct {
	kind    Kind
	pattern string
}

// Cache holds compiled patterns keyed by kind and source. Safe for
// concurrent use. Compilation failures are not cached.
type Cache struct {
	entries *lru.Cache[cacheKey, *Pattern]
}

var defaultCache = NewCache(DefaultCacheSize)

// NewCache creates a cache holding at most size patterns.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, _ := lru.New[cacheKey, *Pattern](size)
	return &Cache{entries: entries}
}

// Default returns the process-wide cache shared by Matches and the engine.
func Default() *Cache { return defaultCache }

// Get returns the compiled pattern, compiling it on first use.
func (c *Cache) Get(kind Kind, pattern string) (*Pattern, error) {
	key := cacheKey{kind: kind, pattern: pattern}
	if p, ok := c.entries.Get(key); ok {
		return p, nil
	}
	p, err := Compile(kind, pattern)
	if err != nil {
		return nil, err
	}
	c.entries.Add(key, p)
	return p, nil
}

// Len returns the number of cached patterns.
func (c *Cache) Len() int { return c.entries.Len() }

// Purge drops every cached pattern.
func (c *Cache) Purge() { c.entries.Purge() }
