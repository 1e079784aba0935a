package kvstore

import (
	"context"
	"time"
)

// Store is a networked, TTL-capable key-value store. SetIfAbsent is the one
// atomic primitive; the wallet lock and circuit breaker persistence are built
// on top of it.
type Store interface {
	// Get returns the value for key. The second return value is false when the
	// key does not exist or has expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes key to value. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// SetIfAbsent atomically writes key only if it does not already exist and
	// reports whether the write happened.
	SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)

	Delete(ctx context.Context, key string) error
}
