package transcript

import (
	"context"
	"sync"
)

// Cache is a process-wide store of ingested videos keyed by video id.
// Writes happen only during ingest requests and reads during Q&A, so a
// single RWMutex guarding a plain map is sufficient; there is no need for
// per-key locking or an eviction policy.
type Cache struct {
	mu     sync.RWMutex
	videos map[string]Video
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{videos: map[string]Video{}}
}

// Put stores or replaces a video under its own metadata id.
func (c *Cache) Put(v Video) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videos[v.Metadata.VideoID] = v
}

// Get returns the cached video for id, or false if absent.
func (c *Cache) Get(id string) (Video, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.videos[id]
	return v, ok
}

// GetAll returns the videos for the given ids, skipping any id not
// present in the cache rather than failing the whole lookup.
func (c *Cache) GetAll(ids []string) []Video {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Video, 0, len(ids))
	for _, id := range ids {
		if v, ok := c.videos[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Len returns the number of cached videos.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.videos)
}

// Ingest runs ing against url, stores the result under its video id, and
// returns it. Ingestion itself happens outside any lock so a slow fetch
// never blocks concurrent reads of already-cached videos.
func (c *Cache) Ingest(ctx context.Context, ing Ingester, url string) (Video, error) {
	v, err := ing.Ingest(ctx, url)
	if err != nil {
		return Video{}, err
	}
	c.Put(v)
	return v, nil
}
