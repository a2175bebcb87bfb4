package gateway

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// responseCache memoizes token counts, which are pure functions of
// (model, text) and expensive to recompute for large prompts.
type responseCache struct {
	tokenCounts *lru.Cache[string, int]
}

func newResponseCache(size int) *responseCache {
	c, _ := lru.New[string, int](size)
	return &responseCache{tokenCounts: c}
}

func tokenCacheKey(model, text string) string {
	h := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(h[:])
}

func (c *responseCache) getTokenCount(model, text string) (int, bool) {
	return c.tokenCounts.Get(tokenCacheKey(model, text))
}

func (c *responseCache) putTokenCount(model, text string, n int) {
	c.tokenCounts.Add(tokenCacheKey(model, text), n)
}
