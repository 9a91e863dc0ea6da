// Package redis implements the settlement cache on Redis.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/ArowuTest/lottery-settlement/internal/repositories"
	goredis "github.com/go-redis/redis/v8"
	"golang.org/x/exp/slog"
)

const keyPrefix = "lottery:"

// Client is the subset of *goredis.Client used by Cache
type Client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// Cache implements repositories.Cache with Redis key expiry
type Cache struct {
	client Client
}

// NewCache creates a Cache on client
func NewCache(client Client) *Cache {
	return &Cache{client: client}
}

// GetOrSet returns the value for key or loads it and stores it with ttl.
// Redis failures fall back to load.
func (c *Cache) GetOrSet(ctx context.Context, key string, ttl time.Duration, load repositories.Loader) ([]byte, error) {
	value, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, goredis.Nil) {
		slog.Warn("Redis read failed, loading directly", "key", key, "error", err)
	}

	value, err = load(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		slog.Warn("Redis write failed", "key", key, "error", err)
	}
	return value, nil
}

// Delete removes key
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, keyPrefix+key).Err()
}
