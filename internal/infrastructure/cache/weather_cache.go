// Package cache wraps Redis for the two things the core caches: verbatim
// weather payloads and request-scoped rate-limit buckets. Every failure
// degrades to a miss; the cache never fails a caller.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// Config holds Redis connection configuration.
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RedisCache is the shared Redis client wrapper.
type RedisCache struct {
	client redis.Cmdable
	hits   func()
	misses func()
}

// NewRedisCache opens a client and verifies connectivity.
func NewRedisCache(cfg Config) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisCache{client: rdb}, nil
}

// NewWithClient wraps an existing client. Test hook (redismock).
func NewWithClient(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

// WithMeters registers hit/miss callbacks. Either may be nil.
func (r *RedisCache) WithMeters(hit, miss func()) *RedisCache {
	r.hits, r.misses = hit, miss
	return r
}

// Get returns the cached payload. Any Redis error reads as a miss.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debug().Err(err).Str("key", key).Msg("cache get degraded to miss")
		}
		if r.misses != nil {
			r.misses()
		}
		return nil, false
	}
	if r.hits != nil {
		r.hits()
	}
	return val, true
}

// Set stores a payload with TTL. Write failures are swallowed: the next
// reader pays one upstream call.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("cache set swallowed")
	}
}

// Allow implements a fixed-window rate-limit bucket: the first hit in a
// window creates the counter with the window TTL, and requests beyond limit
// are refused. Redis errors fail open; rate limiting is protection, not a
// correctness gate.
func (r *RedisCache) Allow(ctx context.Context, bucket string, limit int64, window time.Duration) bool {
	n, err := r.client.Incr(ctx, bucket).Result()
	if err != nil {
		log.Debug().Err(err).Str("bucket", bucket).Msg("rate-limit bucket degraded open")
		return true
	}
	if n == 1 {
		if err := r.client.Expire(ctx, bucket, window).Err(); err != nil {
			log.Debug().Err(err).Str("bucket", bucket).Msg("rate-limit expire swallowed")
		}
	}
	return n <= limit
}
