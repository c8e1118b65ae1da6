package mosaic

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// PageCache maps derived page keys to fully rendered markup. A hit lets the
// Builder skip all component processing for a page. Same contract as
// FileCache otherwise: wholesale replacement, manual eviction, no TTL.
//
// It can safely be used by multiple goroutines.
type PageCache struct {
	mu      sync.RWMutex
	enabled bool
	entries map[string]cacheEntry
}

// NewPageCache returns a PageCache, enabled or not.
func NewPageCache(enabled bool) *PageCache {
	return &PageCache{
		enabled: enabled,
		entries: map[string]cacheEntry{},
	}
}

// Get returns the cached markup for key. A disabled cache always misses.
func (c *PageCache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.enabled {
		return "", false
	}
	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	return entry.content, true
}

// Set stores markup under key, replacing any prior entry. Setting on a
// disabled cache is a no-op.
func (c *PageCache) Set(key, markup string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	c.entries[key] = cacheEntry{content: markup, created: time.Now()}
}

// lookup reads an entry regardless of the enabled flag. The Builder uses it
// when a page-level override turns caching on for a page even though the
// cache itself is disabled.
func (c *PageCache) lookup(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	return entry.content, true
}

// store writes an entry regardless of the enabled flag; the Builder's
// counterpart to lookup.
func (c *PageCache) store(key, markup string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{content: markup, created: time.Now()}
}

// Clear drops every entry.
func (c *PageCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]cacheEntry{}
}

// Enable turns the cache on for subsequent Gets and Sets.
func (c *PageCache) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
}

// Disable turns the cache off. Entries are kept, but Gets miss and Sets
// no-op until Enable.
func (c *PageCache) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
}

// Enabled reports whether the cache is on.
func (c *PageCache) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// PageKey derives the cache key for a page definition rendered into a
// target. It's a pure function of its inputs: the definition is serialized
// deterministically (map keys sorted) and hashed together with the target
// reference, so the same definition aimed at the same target always yields
// the same key, with no hidden fallback order. An explicit Key on the
// definition takes precedence over this derivation; see Builder.Build.
//
// Condition predicates are excluded from the serialization, since function
// values have no stable textual form; two definitions differing only in
// their predicates share a key.
func PageKey(def *PageDef, target string) string {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(def); err != nil {
		// functions and channels can't be serialized; everything
		// serializable still contributes through the error text
		buf.Reset()
		buf.WriteString(err.Error())
	}
	buf.WriteString(target)
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}
