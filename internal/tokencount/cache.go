package tokencount

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

const (
	defaultCacheSize = 2000
	defaultCacheTTL  = time.Hour
)

// Cache is an LRU-with-TTL cache of text -> estimated token count, keyed by
// a content hash so long prompts don't bloat the map's key storage.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	maxSize int
	ttl     time.Duration
}

type cacheEntry struct {
	count      int
	expiresAt  time.Time
	lastAccess time.Time
}

// CacheConfig configures a Cache. Zero values take the defaults.
type CacheConfig struct {
	MaxSize int
	TTL     time.Duration
}

// NewCache returns a Cache with the given configuration.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaultCacheSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		maxSize: cfg.MaxSize,
		ttl:     cfg.TTL,
	}
}

// Get returns the cached count for text, if present and unexpired.
func (c *Cache) Get(text string) (int, bool) {
	key := hashText(text)
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return 0, false
	}
	entry.lastAccess = time.Now()
	c.entries[key] = entry
	return entry.count, true
}

// Set stores count for text, evicting the least recently used entry if the
// cache is at capacity.
func (c *Cache) Set(text string, count int) {
	key := hashText(text)
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	now := time.Now()
	c.entries[key] = cacheEntry{count: count, expiresAt: now.Add(c.ttl), lastAccess: now}
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, e := range c.entries {
		if first || e.lastAccess.Before(oldestTime) {
			oldestKey, oldestTime, first = k, e.lastAccess, false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func hashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:16])
}
