package cache

import (
	"strings"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
)

// HandleCache caches directory handles resolved by segment-wise traversal.
// Keys are canonical VFS paths ("/a/b"). Supports fine-grained invalidation by path.
//
// Thread-safe: Uses RWMutex for concurrent access.
type HandleCache struct {
	mu      sync.RWMutex
	entries map[string]*handleEntry
	ttl     time.Duration
	maxSize int
}

type handleEntry struct {
	fs      billy.Filesystem
	expires time.Time
}

// NewHandleCache creates a new handle cache.
// ttl: Time-to-live for cached entries (use 0 for no expiration)
// maxSize: Maximum number of entries (use 0 for unlimited)
func NewHandleCache(ttl time.Duration, maxSize int) *HandleCache {
	return &HandleCache{
		entries: make(map[string]*handleEntry, 64),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get retrieves the cached handle for a directory path.
// Returns nil if not found, expired, or caching is disabled (KERNELFS_CACHE=0).
func (c *HandleCache) Get(path string) billy.Filesystem {
	if Disabled {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[path]
	if !ok {
		return nil
	}

	if c.ttl > 0 && time.Now().After(entry.expires) {
		return nil
	}

	return entry.fs
}

// Set stores the handle for a directory path.
// No-op if caching is disabled (KERNELFS_CACHE=0).
func (c *HandleCache) Set(path string, fs billy.Filesystem) {
	if Disabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		// Don't add new entries when at capacity
		if _, exists := c.entries[path]; !exists {
			return
		}
	}

	expires := time.Time{}
	if c.ttl > 0 {
		expires = time.Now().Add(c.ttl)
	}

	c.entries[path] = &handleEntry{fs: fs, expires: expires}
}

// Invalidate clears all entries from the cache.
func (c *HandleCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) > 0 {
		c.entries = make(map[string]*handleEntry, 64)
	}
}

// InvalidatePath removes a specific path from the cache.
func (c *HandleCache) InvalidatePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, path)
}

// InvalidateTree removes path and every cached path beneath it.
// Used when a directory is removed.
func (c *HandleCache) InvalidateTree(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, path)
	prefix := path
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	for p := range c.entries {
		if strings.HasPrefix(p, prefix) {
			delete(c.entries, p)
		}
	}
}

// Size returns the current number of entries in the cache.
func (c *HandleCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// HandleCacheStats reports cache sizing.
type HandleCacheStats struct {
	Size    int
	MaxSize int
	TTL     time.Duration
}

// Stats returns current cache statistics.
func (c *HandleCache) Stats() HandleCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return HandleCacheStats{
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		TTL:     c.ttl,
	}
}

var _ Invalidator = (*HandleCache)(nil)
