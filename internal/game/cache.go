package game

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/terra-clan/mot-engine/internal/models"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = 5 * time.Second
)

type boardEntry struct {
	entries  []models.LeaderboardEntry
	storedAt time.Time
}

// boardCache holds recent leaderboard reads. Any new score purges it, so the
// TTL only bounds staleness for scores written by other instances.
type boardCache struct {
	cache *lru.Cache[string, boardEntry]
	ttl   time.Duration
}

func newBoardCache(size int, ttl time.Duration) *boardCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	// lru.New only fails on a non-positive size
	cache, _ := lru.New[string, boardEntry](size)
	return &boardCache{cache: cache, ttl: ttl}
}

func (c *boardCache) get(key string) ([]models.LeaderboardEntry, bool) {
	e, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	if time.Since(e.storedAt) > c.ttl {
		c.cache.Remove(key)
		return nil, false
	}
	return e.entries, true
}

func (c *boardCache) put(key string, entries []models.LeaderboardEntry) {
	c.cache.Add(key, boardEntry{entries: entries, storedAt: time.Now()})
}

func (c *boardCache) purge() {
	c.cache.Purge()
}

func (c *boardCache) len() int {
	return c.cache.Len()
}
