package avatar

import (
	"context"
	"sync"

	"maskid/internal/domain"
)

// MemoryCache keeps avatars in process memory.
type MemoryCache struct {
	mu      sync.RWMutex
	avatars map[domain.ProfileIdentifier]string
}

// NewMemoryCache returns an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{avatars: make(map[domain.ProfileIdentifier]string)}
}

// QueryAvatar returns the cached data URL for id.
func (c *MemoryCache) QueryAvatar(ctx context.Context, id domain.ProfileIdentifier) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.avatars[id]
	return v, ok, nil
}

// StoreAvatar caches dataURL for id.
func (c *MemoryCache) StoreAvatar(ctx context.Context, id domain.ProfileIdentifier, dataURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.avatars[id] = dataURL
	return nil
}

var _ domain.AvatarCache = (*MemoryCache)(nil)
