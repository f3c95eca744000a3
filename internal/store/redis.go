package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore holds the Redis client used for rate-limit counters. Chat
// messages never touch Redis: the relay is a non-durable broadcast layer
// and keeps no history anywhere.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// rateLimitKey returns the key for a caller's rate limit counter.
func rateLimitKey(callerKey string) string {
	return fmt.Sprintf("ratelimit:%s", callerKey)
}

// IncrRateLimit atomically bumps the caller's counter and returns the
// new count, so check and increment are a single round trip and two
// concurrent requests at the window edge cannot both slip under the
// limit. The expiry is only set when the key is created (fixed window,
// not sliding).
func (s *RedisStore) IncrRateLimit(ctx context.Context, callerKey string, window time.Duration) (int64, error) {
	key := rateLimitKey(callerKey)

	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
