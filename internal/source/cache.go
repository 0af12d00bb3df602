package source

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/rootio/internal/config"
	"github.com/danmuck/rootio/internal/observability"
	"github.com/danmuck/rootio/internal/protocol/cursor"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Cache is a fetcher decorator holding recently fetched ranges, bounded by
// entry count and total bytes. Ranges are keyed by offset and size; a
// request for a sub-range of a cached range is a miss. Concurrent misses
// for the same range share one fetch.
type Cache struct {
	next     cursor.Fetcher
	entries  *lru.Cache[string, []byte]
	maxBytes int64
	bytes    atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64
	shared   atomic.Int64
	group    singleflight.Group
	mu       sync.Mutex
}

type CacheStats struct {
	Hits     int64
	Misses   int64
	Shared   int64
	Entries  int
	Bytes    int64
	MaxBytes int64
}

func NewCache(next cursor.Fetcher, cfg config.CacheConfig) (*Cache, error) {
	if err := config.ValidateCache(cfg); err != nil {
		return nil, err
	}
	if cfg.MaxBytes == 0 {
		return nil, fmt.Errorf("cache disabled: max_bytes is 0")
	}
	c := &Cache{next: next, maxBytes: cfg.MaxBytes}
	entries, err := lru.NewWithEvict(cfg.MaxEntries, func(_ string, value []byte) {
		c.bytes.Add(-int64(len(value)))
	})
	if err != nil {
		return nil, fmt.Errorf("create LRU cache: %w", err)
	}
	c.entries = entries
	return c, nil
}

func cacheKey(offset, size uint64) string {
	return fmt.Sprintf("%d:%d", offset, size)
}

// Fetch returns a copy of the cached range, or fetches and caches it.
// The shared fetch runs detached from any one caller's cancellation; each
// caller stops waiting when its own ctx is done.
func (c *Cache) Fetch(ctx context.Context, offset, size uint64) ([]byte, error) {
	key := cacheKey(offset, size)
	if data, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		observability.RecordCacheLookup(observability.CacheHit)
		return clone(data), nil
	}

	fetched := false
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		fetched = true
		c.misses.Add(1)
		observability.RecordCacheLookup(observability.CacheMiss)
		data, err := c.next.Fetch(detached, offset, size)
		if err != nil {
			return nil, err
		}
		if uint64(len(data)) == size {
			c.put(key, clone(data))
		}
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if !fetched {
			c.shared.Add(1)
			observability.RecordCacheLookup(observability.CacheShared)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]byte)), nil
	}
}

func (c *Cache) put(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := int64(len(data))
	if size > c.maxBytes {
		return
	}
	if old, ok := c.entries.Peek(key); ok {
		c.bytes.Add(size - int64(len(old)))
		c.entries.Add(key, data)
		return
	}
	for c.bytes.Load()+size > c.maxBytes {
		if _, _, ok := c.entries.RemoveOldest(); !ok {
			break
		}
	}
	c.bytes.Add(size)
	c.entries.Add(key, data)
}

func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Shared:   c.shared.Load(),
		Entries:  c.entries.Len(),
		Bytes:    c.bytes.Load(),
		MaxBytes: c.maxBytes,
	}
}

func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
