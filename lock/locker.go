package lock

import (
	"context"
	"sync"
)

type locker struct {
	manager    *Manager
	resourceID string

	mu    sync.Mutex
	scope *Scope
}

// Lock acquires the lock. Locking an already held locker returns immediately.
func (l *locker) Lock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.scope != nil && l.scope.IsLocked() {
		return nil
	}

	scope, err := l.manager.Lock(ctx, l.resourceID)
	if err != nil {
		return err
	}
	l.scope = scope
	return nil
}

// TryLock attempts to acquire the lock without waiting.
func (l *locker) TryLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.scope != nil && l.scope.IsLocked() {
		return true, nil
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	token, ok := l.manager.TryAcquire(ctx, l.resourceID)
	if !ok {
		return false, nil
	}
	l.scope = newScope(ctx, l.manager, l.resourceID, token)
	return true, nil
}

// Unlock releases the lock.
func (l *locker) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.scope == nil {
		return nil
	}
	l.scope.Release(ctx)
	l.scope = nil
	return nil
}
