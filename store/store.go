// Package store defines the shared key-value primitives the lock and queue
// packages coordinate through.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable wraps every backend failure returned by a Store.
var ErrUnavailable = errors.New("store unavailable")

// Store is a shared key-value store reachable from every service instance.
type Store interface {
	// SetNX sets key to value with the given expiry only if key does not exist.
	// Returns true if the value was set.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CompareAndDelete atomically deletes key if its current value equals
	// expected. Returns true if the key was deleted.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)

	// Push prepends item to the list stored at key and returns the new length.
	Push(ctx context.Context, key, item string) (int64, error)

	// BlockingPop removes and returns the last item of the list stored at key,
	// waiting up to timeout for one to arrive. ok is false on timeout.
	BlockingPop(ctx context.Context, key string, timeout time.Duration) (item string, ok bool, err error)

	// Len returns the length of the list stored at key.
	Len(ctx context.Context, key string) (int64, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// Unavailable wraps err with ErrUnavailable and the failed operation.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// IsUnavailable reports whether err came from a failing backend.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
