// Copyright (c) 2026 Keyra. All rights reserved.

package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// activeKeyPrefix namespaces cache entries in Redis.
const activeKeyPrefix = "iam:actor_active:"

// ActiveCache is a short-TTL Redis cache over the "may this actor still
// authenticate" lookback performed on every validated access token.
//
// # Correctness over Latency
//
// The TTL is kept short (seconds, from config) and deactivation paths
// invalidate eagerly, so a revoked actor's tokens die within one TTL at
// worst. Cache failures are treated as misses — never as a verdict.
type ActiveCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewActiveCache creates a Redis-backed active-actor cache.
func NewActiveCache(client *redis.Client, ttl time.Duration) *ActiveCache {
	return &ActiveCache{client: client, ttl: ttl}
}

/*
Get retrieves the cached activity verdict for an actor.

Parameters:
  - ctx: context.Context
  - actorID: string

Returns:
  - active: Cached verdict (only meaningful when found)
  - found: Whether a cache entry existed
  - error: Connectivity errors (callers treat as a miss)
*/
func (cache *ActiveCache) Get(ctx context.Context, actorID string) (active bool, found bool, err error) {
	value, err := cache.client.Get(ctx, activeKeyPrefix+actorID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("actor_cache_get_failed: %w", err)
	}
	return value == "1", true, nil
}

/*
Set stores the activity verdict for an actor with the configured TTL.

Parameters:
  - ctx: context.Context
  - actorID: string
  - active: bool

Returns:
  - error: Connectivity errors (callers log and continue)
*/
func (cache *ActiveCache) Set(ctx context.Context, actorID string, active bool) error {
	value := "0"
	if active {
		value = "1"
	}
	if err := cache.client.Set(ctx, activeKeyPrefix+actorID, value, cache.ttl).Err(); err != nil {
		return fmt.Errorf("actor_cache_set_failed: %w", err)
	}
	return nil
}

/*
Invalidate drops the cached verdict, forcing the next lookback to hit the store.

Parameters:
  - ctx: context.Context
  - actorID: string

Returns:
  - error: Connectivity errors
*/
func (cache *ActiveCache) Invalidate(ctx context.Context, actorID string) error {
	if err := cache.client.Del(ctx, activeKeyPrefix+actorID).Err(); err != nil {
		return fmt.Errorf("actor_cache_invalidate_failed: %w", err)
	}
	return nil
}
