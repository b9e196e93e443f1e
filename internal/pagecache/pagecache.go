package pagecache

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/lawgraph-backend/internal/fusion"
)

// Entry is the fused result set retained after a search response so
// load-more can page deeper without rerunning the pipeline.
type Entry struct {
	Query     string             `json:"query"`
	Articles  []fusion.RankedDoc `json:"articles"`
	Cases     []fusion.RankedDoc `json:"cases"`
	CreatedAt time.Time          `json:"created_at"`
}

// Cache stores entries keyed by normalized query for a bounded TTL.
type Cache interface {
	Put(ctx context.Context, key string, e Entry) error
	Get(ctx context.Context, key string) (Entry, bool, error)
}

type memoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]Entry
	clock   func() time.Time
}

// NewMemory is the single-replica backend. Expired entries are evicted
// lazily on read and swept on write.
func NewMemory(ttl time.Duration) Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &memoryCache{
		ttl:     ttl,
		entries: map[string]Entry{},
		clock:   time.Now,
	}
}

func (c *memoryCache) Put(_ context.Context, key string, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.clock()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, old := range c.entries {
		if c.clock().Sub(old.CreatedAt) > c.ttl {
			delete(c.entries, id)
		}
	}
	c.entries[key] = e
	return nil
}

func (c *memoryCache) Get(_ context.Context, key string) (Entry, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}
	if c.clock().Sub(e.CreatedAt) > c.ttl {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return Entry{}, false, nil
	}
	return e, true, nil
}
