package storage

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/vjranagit/editmetrics/pkg/types"
)

// ResultKey identifies one assembled axis run
type ResultKey struct {
	Axis          string   `json:"axis"`
	Variant       string   `json:"variant"`
	Dir           string   `json:"dir"`
	Metrics       []string `json:"metrics"`
	SkipMalformed bool     `json:"skip_malformed"`
}

// ResultCache implements an LRU cache with TTL for axis results
type ResultCache struct {
	capacity int
	ttl      time.Duration
	mu       sync.Mutex
	cache    map[string]*cacheEntry
	lru      *list.List
	hits     uint64
	misses   uint64
	now      func() time.Time
}

// cacheEntry represents a cached axis result
type cacheEntry struct {
	key       string
	result    *types.AxisResult
	timestamp time.Time
	element   *list.Element
}

// NewResultCache creates a new result cache
func NewResultCache(capacity int, ttl time.Duration) *ResultCache {
	if capacity < 1 {
		capacity = 1
	}
	return &ResultCache{
		capacity: capacity,
		ttl:      ttl,
		cache:    make(map[string]*cacheEntry),
		lru:      list.New(),
		now:      time.Now,
	}
}

// Get retrieves a cached axis result
func (rc *ResultCache) Get(k ResultKey) (*types.AxisResult, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	key := generateKey(k)
	entry, exists := rc.cache[key]
	if !exists {
		rc.misses++
		return nil, false
	}

	if rc.expired(entry) {
		rc.removeLocked(key)
		rc.misses++
		return nil, false
	}

	rc.lru.MoveToFront(entry.element)
	rc.hits++
	return entry.result, true
}

// Put stores an axis result in the cache
func (rc *ResultCache) Put(k ResultKey, result *types.AxisResult) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	key := generateKey(k)

	if entry, exists := rc.cache[key]; exists {
		entry.result = result
		entry.timestamp = rc.now()
		rc.lru.MoveToFront(entry.element)
		return
	}

	entry := &cacheEntry{
		key:       key,
		result:    result,
		timestamp: rc.now(),
	}
	entry.element = rc.lru.PushFront(entry)
	rc.cache[key] = entry

	if rc.lru.Len() > rc.capacity {
		if oldest := rc.lru.Back(); oldest != nil {
			rc.removeLocked(oldest.Value.(*cacheEntry).key)
		}
	}
}

func (rc *ResultCache) expired(e *cacheEntry) bool {
	return rc.ttl > 0 && rc.now().Sub(e.timestamp) > rc.ttl
}

// removeLocked removes an entry from the cache (must hold lock)
func (rc *ResultCache) removeLocked(key string) {
	if entry, exists := rc.cache[key]; exists {
		rc.lru.Remove(entry.element)
		delete(rc.cache, key)
	}
}

// CacheStats contains cache statistics
type CacheStats struct {
	Size     int     `json:"size"`
	Capacity int     `json:"capacity"`
	Expired  int     `json:"expired"`
	Hits     uint64  `json:"hits"`
	Misses   uint64  `json:"misses"`
	HitRate  float64 `json:"hit_rate"`
}

// Stats returns cache statistics
func (rc *ResultCache) Stats() CacheStats {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	expired := 0
	for _, entry := range rc.cache {
		if rc.expired(entry) {
			expired++
		}
	}

	rate := 0.0
	if total := rc.hits + rc.misses; total > 0 {
		rate = float64(rc.hits) / float64(total) * 100.0
	}

	return CacheStats{
		Size:     len(rc.cache),
		Capacity: rc.capacity,
		Expired:  expired,
		Hits:     rc.hits,
		Misses:   rc.misses,
		HitRate:  rate,
	}
}

// generateKey derives a deterministic cache key
func generateKey(k ResultKey) string {
	data, _ := json.Marshal(k)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
