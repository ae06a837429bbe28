package render

import (
	"time"

	cache "github.com/go-pkgz/expirable-cache/v3"

	"github.com/amsterdam/dso-gateway/internal/store"
)

// PrefetchCache is a bounded LRU keyed by (relationLookup, targetID)
// so that a chunk of rows sharing a common parent (e.g. many containers
// in the same cluster) re-fetches it once instead of once per row.
type PrefetchCache struct {
	c cache.Cache[string, *store.Row]
}

// NewPrefetchCache builds an LRU cache bounded to maxEntries, each entry
// expiring ttl after it was stored (protects a long-lived streaming
// response from serving an arbitrarily stale parent row forever).
func NewPrefetchCache(maxEntries int, ttl time.Duration) *PrefetchCache {
	return &PrefetchCache{
		c: cache.NewCache[string, *store.Row]().WithMaxKeys(maxEntries).WithLRU().WithTTL(ttl),
	}
}

func cacheKey(lookupPath, targetID string) string {
	return lookupPath + "\x00" + targetID
}

func (p *PrefetchCache) Get(lookupPath, targetID string) (*store.Row, bool) {
	return p.c.Get(cacheKey(lookupPath, targetID))
}

func (p *PrefetchCache) Set(lookupPath, targetID string, row *store.Row) {
	p.c.Set(cacheKey(lookupPath, targetID), row, 0)
}
