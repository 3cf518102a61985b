package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the key is absent or its TTL has elapsed.
	ErrNotFound = errors.New("storage: key not found")
	// ErrNotConfigured indicates the backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
)

// UpdateFunc transforms the current value of a key. found is false when the
// key is absent or expired; returning ("", ErrSkipUpdate) leaves the key
// untouched.
type UpdateFunc func(current string, found bool) (string, error)

// ErrSkipUpdate aborts an Update without writing and without surfacing an error.
var ErrSkipUpdate = errors.New("storage: skip update")

// KV is the store contract every component persists through: plain reads,
// writes with TTL, an atomic read-modify-write, and prefix scans. Ordinary
// get/mutate/set sequences are not allowed for shared counters; use Update.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (string, error)
	Scan(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
