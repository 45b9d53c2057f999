package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisCache keeps JSON-encoded entries in Redis, so forecasts survive a bot
// restart and are shared between replicas. Keys are stored under prefix.
type RedisCache[T any] struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRedisCache[T any](
	rdb *redis.Client,
	prefix string,
	ttl time.Duration,
	logger zerolog.Logger,
) *RedisCache[T] {
	logger = logger.With().
		Str("component", "RedisCache").
		Str("prefix", prefix).
		Logger()
	return &RedisCache[T]{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *RedisCache[T]) key(key string) string {
	return c.prefix + key
}

func (c *RedisCache[T]) Set(ctx context.Context, key string, value T) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached %s: %w", key, err)
	}

	if err := c.rdb.Set(ctx, c.key(key), payload, c.ttl).Err(); err != nil {
		c.logger.Error().Ctx(ctx).Err(err).
			Str("key", key).
			Msg("store cached forecast")
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	c.logger.Debug().Ctx(ctx).
		Str("key", key).
		Int("bytes", len(payload)).
		Dur("ttl", c.ttl).
		Msg("forecast cached")
	return nil
}

// Get returns ErrCacheMiss for absent keys. An entry that no longer decodes is
// evicted and reported as a miss as well.
//
//nolint:ireturn
func (c *RedisCache[T]) Get(ctx context.Context, key string) (T, error) {
	var value T

	payload, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return value, ErrCacheMiss
	case err != nil:
		return value, fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(payload, &value); err != nil {
		c.logger.Warn().Ctx(ctx).Err(err).
			Str("key", key).
			Msg("evicting undecodable cache entry")
		if delErr := c.rdb.Del(ctx, c.key(key)).Err(); delErr != nil {
			c.logger.Error().Ctx(ctx).Err(delErr).Str("key", key).Msg("evict failed")
		}
		var zero T
		return zero, fmt.Errorf("%w: %s held an undecodable entry", ErrCacheMiss, key)
	}
	return value, nil
}

func (c *RedisCache[T]) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
