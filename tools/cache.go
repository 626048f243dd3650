package tools

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/docsearch/docsearch-mcp/internal/matcher"
)

// DefaultCacheSize is the number of distinct (query, limit) pairs kept per store
const DefaultCacheSize = 256

// cachingSearcher memoizes results of an underlying Searcher.
// One cache belongs to one loaded store, so a reload starts empty.
type cachingSearcher struct {
	next  Searcher
	cache *lru.Cache[string, []matcher.Result]
}

// NewCachingSearcher wraps next with an LRU cache of size entries.
// size <= 0 disables caching and returns next unchanged.
func NewCachingSearcher(next Searcher, size int) Searcher {
	if size <= 0 {
		return next
	}
	cache, err := lru.New[string, []matcher.Result](size)
	if err != nil {
		return next
	}
	return &cachingSearcher{next: next, cache: cache}
}

func (c *cachingSearcher) Search(q string, limit int) ([]matcher.Result, error) {
	key := fmt.Sprintf("%d\x00%s", limit, q)
	if results, ok := c.cache.Get(key); ok {
		return results, nil
	}

	results, err := c.next.Search(q, limit)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, results)
	return results, nil
}

func (c *cachingSearcher) DocCount() (uint64, error) {
	return c.next.DocCount()
}

func (c *cachingSearcher) Close() error {
	c.cache.Purge()
	return c.next.Close()
}
