// Package lock serializes work on a logical resource across every instance
// sharing a store.Store.
package lock

import "context"

// Locker represents a distributed lock bound to one resource.
type Locker interface {
	// Lock acquires the lock, retrying until it's available, the configured
	// attempts are exhausted (ErrLockTimeout) or the context is cancelled.
	Lock(ctx context.Context) error

	// TryLock attempts to acquire the lock without waiting.
	// Returns true if the lock was acquired, false otherwise.
	TryLock(ctx context.Context) (bool, error)

	// Unlock releases the lock. Unlocking a lock that is not held is a no-op.
	Unlock(ctx context.Context) error
}

// Service provides methods to create distributed locks.
type Service interface {
	// NewLock creates a new lock for the given resource id.
	NewLock(resourceID string) Locker
}
