package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/use-agent/renderd/models"
)

// entry holds a cached fetch result with its creation timestamp.
type entry struct {
	result    *models.FetchResult
	createdAt time.Time
}

// Cache is a simple in-memory cache for fetch results.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
}

// New creates a new Cache with the given maximum number of entries.
// A background goroutine runs every 5 minutes to evict entries older
// than 1 hour.
func New(maxEntries int) *Cache {
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
	}

	go c.cleanupLoop()
	return c
}

// Key derives a cache key from the URL and every fetch parameter that can
// change the result, including the full header map: a page rendered under
// one Authorization or Accept-Language must never be served to a request
// carrying another.
func Key(req *models.PerURLRequest) string {
	h := sha256.New()
	h.Write([]byte(req.URL))
	h.Write([]byte("|"))
	h.Write([]byte(req.FetchMode))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatInt(int64(req.WaitAfterLoad), 10)))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatInt(int64(req.Timeout), 10)))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatBool(req.Stealth)))

	// Headers hashed in sorted name order so equal maps always produce
	// equal keys regardless of map iteration order.
	names := make([]string, 0, len(req.Headers))
	for name := range req.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.Write([]byte("|"))
		h.Write([]byte(name))
		h.Write([]byte("="))
		h.Write([]byte(req.Headers[name]))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a cached result if it exists and is younger than maxAge.
// maxAge is in milliseconds; if maxAge <= 0, no lookup is performed.
// The returned result is a copy, safe for the caller to annotate.
func (c *Cache) Get(key string, maxAgeMs int) (*models.FetchResult, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	maxAge := time.Duration(maxAgeMs) * time.Millisecond
	if time.Since(e.createdAt) > maxAge {
		return nil, false
	}

	result := *e.result
	return &result, true
}

// Set stores a result in the cache. If the cache is at capacity,
// a random entry is evicted to make room.
func (c *Cache) Set(key string, result *models.FetchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict one random entry if at capacity (map iteration is random in Go).
	if len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		result:    result,
		createdAt: time.Now(),
	}
}

// cleanupLoop evicts entries older than 1 hour every 5 minutes.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-1 * time.Hour)
		c.mu.Lock()
		for k, e := range c.store {
			if e.createdAt.Before(cutoff) {
				delete(c.store, k)
			}
		}
		c.mu.Unlock()
	}
}
