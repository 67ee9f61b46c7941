package indexer

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// indexCache holds published snapshots, bounded by count and age. Eviction only drops
// memory; the store on disk stays the source of truth.
type indexCache struct {
	mu  sync.Mutex // orders publishes; lookups go straight to the LRU
	lru *expirable.LRU[string, *snapshot]
	// verified is when each cached snapshot was last known to match the disk.
	verified map[string]time.Time
}

func newIndexCache(maxProjects int, ttl time.Duration, logger *zap.Logger) *indexCache {
	onEvict := func(project string, snap *snapshot) {
		logger.Debug("indexer cache evicted project",
			zap.String("project", project),
			zap.Uint64("revision", snap.manifest.Revision))
	}
	return &indexCache{
		lru:      expirable.NewLRU[string, *snapshot](maxProjects, onEvict, ttl),
		verified: make(map[string]time.Time),
	}
}

func (c *indexCache) get(project string) (*snapshot, bool) {
	return c.lru.Get(project)
}

func (c *indexCache) put(project string, snap *snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(project, snap)
	c.verified[project] = time.Now()
}

// putIfNewer publishes a snapshot read by a reader unless a writer already published a
// later revision.
func (c *indexCache) putIfNewer(project string, snap *snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.lru.Peek(project); ok && cur.manifest.Revision > snap.manifest.Revision {
		return
	}
	c.lru.Add(project, snap)
	c.verified[project] = time.Now()
}

// fresh returns the cached snapshot if it was verified against the disk within window.
func (c *indexCache) fresh(project string, window time.Duration) (*snapshot, bool) {
	if window <= 0 {
		return nil, false
	}
	c.mu.Lock()
	at, ok := c.verified[project]
	c.mu.Unlock()
	if !ok || time.Since(at) > window {
		return nil, false
	}
	return c.lru.Get(project)
}

// markVerified records that the cached snapshot still matches the disk.
func (c *indexCache) markVerified(project string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lru.Peek(project); ok {
		c.verified[project] = time.Now()
	}
}

func (c *indexCache) remove(project string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(project)
	delete(c.verified, project)
}

func (c *indexCache) len() int {
	return c.lru.Len()
}

func (c *indexCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	clear(c.verified)
}
