package mosaic

import (
	"sync"
	"time"
)

type cacheEntry struct {
	content string
	created time.Time
}

// FileCache maps resource paths to raw fetched text, gating network fetches:
// the Loader consults it before asking the Fetcher for anything. Entries are
// immutable once set and replaced wholesale; eviction is manual through
// Clear. There is no TTL and no size bound.
//
// It can safely be used by multiple goroutines.
type FileCache struct {
	mu      sync.RWMutex
	enabled bool
	entries map[string]cacheEntry
}

// NewFileCache returns a FileCache, enabled or not.
func NewFileCache(enabled bool) *FileCache {
	return &FileCache{
		enabled: enabled,
		entries: map[string]cacheEntry{},
	}
}

// Get returns the cached content for path. A disabled cache always misses.
func (c *FileCache) Get(path string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.enabled {
		return "", false
	}
	entry, ok := c.entries[path]
	if !ok {
		return "", false
	}
	return entry.content, true
}

// Set stores content under path, replacing any prior entry. Setting on a
// disabled cache is a no-op.
func (c *FileCache) Set(path, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	c.entries[path] = cacheEntry{content: content, created: time.Now()}
}

// Clear drops every entry.
func (c *FileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]cacheEntry{}
}

// Enable turns the cache on for subsequent Gets and Sets.
func (c *FileCache) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
}

// Disable turns the cache off. Entries are kept, but Gets miss and Sets
// no-op until Enable.
func (c *FileCache) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
}

// Enabled reports whether the cache is on.
func (c *FileCache) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}
