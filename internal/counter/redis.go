package counter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultOpTimeout bounds every backend round trip. A rate-limit or
// idempotency call that cannot complete within this window is treated as a
// backend failure, and the caller denies the request.
const DefaultOpTimeout = 500 * time.Millisecond

// RedisBackend implements Backend on a shared Redis instance.
type RedisBackend struct {
	client    *redis.Client
	opTimeout time.Duration
}

// NewRedisBackend creates a backend from a Redis URL
// (redis://[:password@]host:port/db) and verifies connectivity.
func NewRedisBackend(redisURL string, opTimeout time.Duration) (*RedisBackend, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("counter: parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("counter: connect to redis: %w", err)
	}

	return NewRedisBackendWithClient(client, opTimeout), nil
}

// NewRedisBackendWithClient wraps an existing client. Useful for tests and
// for sharing one connection pool across components.
func NewRedisBackendWithClient(client *redis.Client, opTimeout time.Duration) *RedisBackend {
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	return &RedisBackend{client: client, opTimeout: opTimeout}
}

// bound applies the per-operation timeout unless the caller's context
// already has an earlier deadline.
func (b *RedisBackend) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.opTimeout)
}

func (b *RedisBackend) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	n, err := b.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, wrap(err)
	}
	return n, nil
}

func (b *RedisBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	if err := b.client.Expire(ctx, key, ttl).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

func (b *RedisBackend) GetInt(ctx context.Context, key string) (int64, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	n, err := b.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, wrap(err)
	}
	return n, nil
}

func (b *RedisBackend) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	ok, err := b.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, wrap(err)
	}
	return ok, nil
}

func (b *RedisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	if err := b.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	val, err := b.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap(err)
	}
	return val, true, nil
}

func (b *RedisBackend) Del(ctx context.Context, key string) error {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

// Ping reports backend connectivity for health checks.
func (b *RedisBackend) Ping(ctx context.Context) error {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	if err := b.client.Ping(ctx).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

// wrap tags transport-level failures as ErrUnavailable so callers can fail
// closed without inspecting redis internals.
func wrap(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

var (
	_ Backend = (*RedisBackend)(nil)
	_ Pinger  = (*RedisBackend)(nil)
)
