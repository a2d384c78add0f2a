package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter is a fixed-window per-key request limiter backed by Redis.
// With Redis disabled it allows everything, so the API stays usable in
// single-node deployments without a cache.
type RateLimiter struct {
	client *Client
	prefix string
	limit  int
	window time.Duration
}

// NewRateLimiter creates a limiter allowing limit requests per window.
func NewRateLimiter(client *Client, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow reports whether the key may proceed, consuming one slot.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if !rl.client.Enabled() {
		return true, nil
	}

	bucket := fmt.Sprintf("%s:%s:%d", rl.prefix, key, time.Now().Unix()/int64(rl.window.Seconds()))

	count, err := rl.client.Redis().Incr(ctx, bucket).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		// First hit opens the window; expiry is best-effort.
		rl.client.Redis().Expire(ctx, bucket, rl.window)
	}
	return count <= int64(rl.limit), nil
}
