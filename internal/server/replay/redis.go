// Package replay implements the TOTP replay guards: a redis one for
// multi-instance deployments and one over the identity store.
package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "sitekeeper:totp:used:"

// RedisGuard records pairs with SET NX and a TTL, so expiry is left to redis.
type RedisGuard struct {
	client redis.Cmdable
}

func NewRedisGuard(client redis.Cmdable) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) Consume(ctx context.Context, key string, counter int64, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, fmt.Sprintf("%s%s:%d", redisKeyPrefix, key, counter), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return ok, nil
}
