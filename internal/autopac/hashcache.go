package autopac

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/golang/groupcache/lru"
)

// DefaultHashEntries bounds the per-path hash LRU the daemon runs with.
const DefaultHashEntries = 200

// HashCache remembers the content hash last processed per file path so a
// re-dropped identical CSV is a no-op. Bounded LRU; the oldest paths fall
// out first.
type HashCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func NewHashCache(maxEntries int) *HashCache {
	return &HashCache{cache: lru.New(maxEntries)}
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Seen reports whether hash was already recorded for path, recording it
// otherwise.
func (c *HashCache) Seen(path, hash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.cache.Get(lru.Key(path)); ok && prev.(string) == hash {
		return true
	}
	c.cache.Add(lru.Key(path), hash)
	return false
}

// Drain empties the cache. Called on shutdown.
func (c *HashCache) Drain() {
	c.mu.Lock()
	c.cache.Clear()
	c.mu.Unlock()
}
