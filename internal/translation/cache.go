package translation

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// resultCache is the TTL-bounded partial/final translation cache of
// spec.md §4.C step 6, keyed by "src:tgt:text". It is promoted from an
// indirect transitive dependency in the teacher's go.mod to a directly
// wired component here: a segment re-sent within its TTL (retry,
// duplicate listener attach) skips the remote round trip entirely.
type resultCache struct {
	cache *ristretto.Cache[string, string]
	ttl   time.Duration
}

// newResultCache builds a cache holding up to maxItems entries, each
// expiring after ttl.
func newResultCache(maxItems int, ttl time.Duration) (*resultCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: int64(maxItems) * 10,
		MaxCost:     int64(maxItems),
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &resultCache{cache: c, ttl: ttl}, nil
}

// Get returns the cached translation for key, if present and not
// expired.
func (c *resultCache) Get(key string) (string, bool) {
	v, ok := c.cache.Get(key)
	return v, ok
}

// Set stores value under key with this cache's configured TTL.
func (c *resultCache) Set(key, value string) {
	c.cache.SetWithTTL(key, value, 1, c.ttl)
}

// Close releases the cache's background goroutines.
func (c *resultCache) Close() {
	c.cache.Close()
}
