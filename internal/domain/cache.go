package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest known price per asset,
// backing the Market Data Feed's ring-buffer fallback path.
type PriceCache interface {
	SetPrice(ctx context.Context, asset string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, asset string) (float64, time.Time, error)
	GetPrices(ctx context.Context, assets []string) (map[string]float64, error)
}

// ChainCache is a TTL-keyed cache for on-chain view-call results, keyed
// "<address>:<field>". A TTL of 0 means callers should always re-read.
type ChainCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Purge(ctx context.Context, key string) error
}

// RateLimiter provides distributed sliding-window rate limiting, used to
// throttle outbound chain RPC calls.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking, used as an advisory
// single-active-instance guard for the scheduler.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
