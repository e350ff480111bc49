// Package counter provides the shared atomic counter and lock backend used
// for quota accounting and idempotency coordination.
//
// All cross-request coordination in the gateway goes through this backend;
// no component performs a read-then-write without an atomic primitive.
package counter

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the backend cannot be reached within the
// configured timeout. Callers must treat this as a deny (fail closed).
var ErrUnavailable = errors.New("counter: backend unavailable")

// Backend is the atomic key-value contract shared by the rate limiter and
// the idempotency coordinator.
type Backend interface {
	// Incr atomically increments the integer value at key and returns the
	// new count. A missing key counts from zero.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets the TTL on key. Returns nil even if the key is missing.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// GetInt returns the integer value at key, or 0 if the key is missing.
	GetInt(ctx context.Context, key string) (int64, error)

	// SetNX sets key to value with the given TTL only if the key does not
	// exist. Returns true if the key was set. This is the single atomic
	// primitive backing idempotency locks.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Set unconditionally sets key to value with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the string value at key. The bool is false if the key
	// is missing or expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Del removes key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error
}

// Pinger is implemented by backends that can report connectivity, for
// health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
