// Package ragcontext extracts and caches the retrieval context shared by all
// insights of a category, so parallel generations reason over one identical
// chunk snapshot and retrieval is never repeated per insight.
package ragcontext

import (
	"context"
	"sync"
	"time"

	"github.com/chatlens-ai/insight-platform/internal/model"
)

// ContextMap maps a group key (currently the insight type ID) to that
// group's ranked chunks.
type ContextMap map[string][]model.RankedChunk

// Cache stores extracted context keyed by (chat, category) with a TTL.
// Implementations must round-trip every RankedChunk field losslessly.
type Cache interface {
	Get(ctx context.Context, chatID, categoryID string) (ContextMap, bool, error)
	Set(ctx context.Context, chatID, categoryID string, m ContextMap, ttl time.Duration) error
	Delete(ctx context.Context, chatID, categoryID string) error
}

// MemoryCache is an in-process Cache with TTL expiry, for tests and
// single-process deployments. Multi-worker deployments use the Redis cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
}

type memoryCacheEntry struct {
	value     ContextMap
	expiresAt time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryCacheEntry)}
}

func (c *MemoryCache) Get(ctx context.Context, chatID, categoryID string) (ContextMap, bool, error) {
	key := cacheKey(chatID, categoryID)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		// Evict on expired read so long-lived processes don't accumulate
		// dead entries.
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.expiresAt.Equal(entry.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}

	out := make(ContextMap, len(entry.value))
	for k, chunks := range entry.value {
		out[k] = append([]model.RankedChunk(nil), chunks...)
	}
	return out, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, chatID, categoryID string, m ContextMap, ttl time.Duration) error {
	stored := make(ContextMap, len(m))
	for k, chunks := range m {
		stored[k] = append([]model.RankedChunk(nil), chunks...)
	}

	c.mu.Lock()
	c.entries[cacheKey(chatID, categoryID)] = memoryCacheEntry{
		value:     stored,
		expiresAt: time.Now().Add(ttl),
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, chatID, categoryID string) error {
	c.mu.Lock()
	delete(c.entries, cacheKey(chatID, categoryID))
	c.mu.Unlock()
	return nil
}

func cacheKey(chatID, categoryID string) string {
	return "ragctx:" + chatID + ":" + categoryID
}
