package llm

import (
	"fmt"
	"hash/fnv"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

// responseCache memoizes completed generations keyed by the full call
// shape. Identical prompts at a different temperature or token cap are
// distinct entries.
type responseCache struct {
	lru *lru.Cache[string, Response]
}

func newResponseCache(size int) (*responseCache, error) {
	if size <= 0 {
		size = 512
	}
	c, err := lru.New[string, Response](size)
	if err != nil {
		return nil, fmt.Errorf("init llm cache: %w", err)
	}
	return &responseCache{lru: c}, nil
}

func cacheKey(model string, req Request) string {
	h := fnv.New64a()
	for _, part := range []string{
		model,
		strconv.FormatFloat(req.Temperature, 'f', -1, 64),
		strconv.Itoa(req.MaxTokens),
		req.System,
		req.Prompt,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func (c *responseCache) Get(model string, req Request) (Response, bool) {
	return c.lru.Get(cacheKey(model, req))
}

func (c *responseCache) Put(model string, req Request, resp Response) {
	resp.Cached = true
	c.lru.Add(cacheKey(model, req), resp)
}

func (c *responseCache) Len() int { return c.lru.Len() }
