package avatar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"maskid/internal/domain"
)

// keyPrefix namespaces avatar entries in a shared Redis database.
const keyPrefix = "avatar:"

// DefaultTTL applies when RedisCache is built with a non-positive TTL.
const DefaultTTL = 24 * time.Hour

// RedisClient is the subset of *redis.Client the cache uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisCache stores avatars as Redis strings that expire after a TTL.
type RedisCache struct {
	client RedisClient
	ttl    time.Duration
}

// NewRedisCache wraps client.
func NewRedisCache(client RedisClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Dial parses a redis:// URL, connects and pings the server.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func cacheKey(id domain.ProfileIdentifier) string { return keyPrefix + id.String() }

// QueryAvatar returns the cached data URL for id.
func (c *RedisCache) QueryAvatar(ctx context.Context, id domain.ProfileIdentifier) (string, bool, error) {
	v, err := c.client.Get(ctx, cacheKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, domain.StoreFailure("query avatar", err)
	}
	return v, true, nil
}

// StoreAvatar caches dataURL for id until the TTL elapses.
func (c *RedisCache) StoreAvatar(ctx context.Context, id domain.ProfileIdentifier, dataURL string) error {
	if err := c.client.Set(ctx, cacheKey(id), dataURL, c.ttl).Err(); err != nil {
		return domain.StoreFailure("store avatar", err)
	}
	return nil
}

var _ domain.AvatarCache = (*RedisCache)(nil)
