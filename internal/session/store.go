package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no value exists for a key.
var ErrNotFound = errors.New("session key not found")

// Store is injectable key-value storage for session identifiers. The
// durable backends (file, redis) survive restarts; the memory backend
// is the explicit degraded fallback.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
