package research

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"kite-agent-bridge/internal/types"
)

const maxCachedQueries = 128

// resultCache keeps research results for a short time so a compound request
// that repeats a query does not scrape twice. Market data is never cached.
// A zero ttl disables it.
type resultCache struct {
	lru *expirable.LRU[string, types.ResearchResult]
}

func newResultCache(ttl time.Duration) *resultCache {
	if ttl <= 0 {
		return &resultCache{}
	}
	return &resultCache{lru: expirable.NewLRU[string, types.ResearchResult](maxCachedQueries, nil, ttl)}
}

func cacheKey(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

func (c *resultCache) get(query string) (types.ResearchResult, bool) {
	if c.lru == nil {
		return types.ResearchResult{}, false
	}
	return c.lru.Get(cacheKey(query))
}

func (c *resultCache) set(query string, result types.ResearchResult) {
	if c.lru == nil {
		return
	}
	c.lru.Add(cacheKey(query), result)
}

func (c *resultCache) clear() {
	if c.lru != nil {
		c.lru.Purge()
	}
}
