package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atlasxyz/vaultrunner/internal/domain"
)

// ChainCache implements domain.ChainCache using plain Redis string keys
// with a per-entry TTL, backing the Chain Reader's read-through cache for
// on-chain view calls (TVL, share price, total supply).
type ChainCache struct {
	rdb *redis.Client
}

// NewChainCache creates a ChainCache backed by the given Client.
func NewChainCache(c *Client) *ChainCache {
	return &ChainCache{rdb: c.Underlying()}
}

func chainCacheKey(key string) string {
	return "chain:" + key
}

// Get returns the cached value for key, or ("", false, nil) on a miss.
func (cc *ChainCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := cc.rdb.Get(ctx, chainCacheKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis: get chain cache %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores value for key with the given TTL. A zero TTL means the caller
// has already decided not to cache (see domain.ChainCache), so Set is a
// no-op in that case rather than writing a key that never expires.
func (cc *ChainCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := cc.rdb.Set(ctx, chainCacheKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set chain cache %s: %w", key, err)
	}
	return nil
}

// Purge deletes a cached entry. The Chain Reader's retry loop calls it after
// each failed attempt so the next attempt re-reads the chain.
func (cc *ChainCache) Purge(ctx context.Context, key string) error {
	if err := cc.rdb.Del(ctx, chainCacheKey(key)).Err(); err != nil {
		return fmt.Errorf("redis: purge chain cache %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ChainCache = (*ChainCache)(nil)
