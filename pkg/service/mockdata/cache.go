package mockdata

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.keploy.io/testengine/pkg/models"
	"go.keploy.io/testengine/utils"
)

// maxCacheEntries only bounds the recency list; bytes are the real limit.
const maxCacheEntries = 1 << 20

type cacheEntry struct {
	ds       *models.MockDataSet
	size     int64
	storedAt time.Time
}

type CacheStats struct {
	Entries   int    `json:"entries"`
	Bytes     int64  `json:"bytes"`
	MaxBytes  int64  `json:"maxBytes"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Cache holds data sets bounded by total byte size and entry age. Entries are
// ordered by when they were last stored; the oldest are evicted first.
// A maxBytes or maxAge of zero disables that bound.
type Cache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, cacheEntry]
	maxBytes int64
	maxAge   time.Duration
	clock    utils.Clock

	bytes     int64
	hits      uint64
	misses    uint64
	evictions uint64
}

func NewCache(maxBytes int64, maxAge time.Duration, clock utils.Clock) *Cache {
	if clock == nil {
		clock = utils.RealClock{}
	}
	c := &Cache{maxBytes: maxBytes, maxAge: maxAge, clock: clock}
	// onEvict also fires on Remove and Purge.
	lru, _ := simplelru.NewLRU[string, cacheEntry](maxCacheEntries, func(_ string, e cacheEntry) {
		c.bytes -= e.size
	})
	c.lru = lru
	return c
}

// Get returns a copy of a fresh entry. An entry past max age or past its own
// expiry is dropped and reported as a miss.
func (c *Cache) Get(id string) (*models.MockDataSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Peek(id)
	if !ok {
		c.misses++
		return nil, false
	}
	now := c.clock.Now()
	if c.stale(e, now) || e.ds.IsExpired(now) {
		c.lru.Remove(id)
		c.misses++
		return nil, false
	}
	c.hits++
	return e.ds.Clone(), true
}

// Put stores ds as the most recently updated entry. Expired entries are
// dropped before anything valid is evicted for space.
func (c *Cache) Put(ds *models.MockDataSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(ds.ID)
	size := ds.Size
	if c.maxBytes > 0 && size > c.maxBytes {
		return
	}
	now := c.clock.Now()
	if c.maxBytes > 0 && c.bytes+size > c.maxBytes {
		c.dropStale(now)
	}
	for c.maxBytes > 0 && c.bytes+size > c.maxBytes && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
		c.evictions++
	}
	c.lru.Add(ds.ID, cacheEntry{ds: ds.Clone(), size: size, storedAt: now})
	c.bytes += size
}

func (c *Cache) Remove(id string) {
	c.mu.Lock()
	c.lru.Remove(id)
	c.mu.Unlock()
}

func (c *Cache) Purge() {
	c.mu.Lock()
	c.lru.Purge()
	c.mu.Unlock()
}

// Keys returns cached ids from least to most recently updated.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:   c.lru.Len(),
		Bytes:     c.bytes,
		MaxBytes:  c.maxBytes,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *Cache) stale(e cacheEntry, now time.Time) bool {
	return c.maxAge > 0 && now.Sub(e.storedAt) > c.maxAge
}

func (c *Cache) dropStale(now time.Time) {
	for _, id := range c.lru.Keys() {
		e, ok := c.lru.Peek(id)
		if ok && (c.stale(e, now) || e.ds.IsExpired(now)) {
			c.lru.Remove(id)
		}
	}
}
