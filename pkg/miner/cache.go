package miner

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/logflow/processlens/pkg/detect"
)

// Key identifies a mining request: the input snapshot, the column roles and
// the parameters that change the outcome.
type Key struct {
	Fingerprint string
	Columns     detect.Columns
	Resolution  float64
	DayFirst    bool
}

func (k Key) hash() string {
	h := sha256.New()
	for _, s := range []string{
		k.Fingerprint,
		k.Columns.CaseID,
		k.Columns.Activity,
		k.Columns.Timestamp,
		strconv.FormatFloat(k.Resolution, 'g', -1, 64),
		strconv.FormatBool(k.DayFirst),
	} {
		h.Write([]byte(strconv.Itoa(len(s))))
		h.Write([]byte{':'})
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Cache holds recent mining results. A changed input, column selection or
// resolution is a different key, so stale results are never served; the
// oldest entry is evicted when full.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	maxSize int
	maxAge  time.Duration
	hits    int64
	misses  int64
}

type entry struct {
	result    *Result
	createdAt time.Time
	hits      int64
}

// NewCache creates a cache of at most maxSize results. maxAge <= 0 means
// entries never expire.
func NewCache(maxSize int, maxAge time.Duration) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache{
		entries: make(map[string]*entry),
		maxSize: maxSize,
		maxAge:  maxAge,
	}
}

// Get returns the cached result for k.
func (c *Cache) Get(k Key) (*Result, bool) {
	key := k.hash()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && c.maxAge > 0 && time.Since(e.createdAt) > c.maxAge {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		c.misses++
		return nil, false
	}
	e.hits++
	c.hits++
	return e.result, true
}

// Put stores r under k.
func (c *Cache) Put(k Key, r *Result) {
	key := k.hash()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = &entry{result: r, createdAt: time.Now()}
}

// Invalidate removes the entry for k.
func (c *Cache) Invalidate(k Key) {
	c.mu.Lock()
	delete(c.entries, k.hash())
	c.mu.Unlock()
}

// InvalidateAll clears the cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
}

// Stats returns cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func (c *Cache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, e := range c.entries {
		if oldestKey == "" || e.createdAt.Before(oldest) {
			oldest = e.createdAt
			oldestKey = key
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// CacheStats contains cache statistics.
type CacheStats struct {
	Entries int     `json:"entries"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}
