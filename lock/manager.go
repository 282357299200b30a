package lock

import (
	"context"
	"sync"
	"time"

	"github.com/enverbisevac/coord/errors"
	"github.com/enverbisevac/coord/metrics"
	"github.com/enverbisevac/coord/store"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrLockTimeout is returned when Acquire runs out of attempts. The request
// could not be serialized and should be rejected or retried by the caller.
var ErrLockTimeout = errors.ResourceExhausted("lock acquisition timed out")

var tracer = otel.Tracer("github.com/enverbisevac/coord/lock")

var _ Service = (*Manager)(nil)

// Manager acquires and releases resource locks stored in a store.Store.
// Configuration may be changed at runtime.
type Manager struct {
	store store.Store

	mu     sync.RWMutex
	config Config
}

// New creates a new lock manager.
func New(s store.Store, options ...Option) *Manager {
	config := Config{
		Prefix:        DefaultPrefix,
		TTL:           DefaultTTL,
		RetryInterval: DefaultRetryInterval,
		MaxAttempts:   DefaultMaxAttempts,
	}
	for _, opt := range options {
		opt.Apply(&config)
	}
	return &Manager{
		store:  s,
		config: config,
	}
}

// Config returns a copy of the current configuration.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetTTL changes the expiry of locks acquired from now on.
func (m *Manager) SetTTL(ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	WithTTL(ttl).Apply(&m.config)
}

// SetRetryInterval changes the pause between acquisition attempts.
func (m *Manager) SetRetryInterval(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	WithRetryInterval(interval).Apply(&m.config)
}

// SetMaxAttempts changes how many attempts Acquire makes.
func (m *Manager) SetMaxAttempts(attempts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	WithMaxAttempts(attempts).Apply(&m.config)
}

// Key returns the store key guarding resourceID.
func (m *Manager) Key(resourceID string) string {
	return m.Config().Prefix + resourceID
}

// TryAcquire makes a single attempt to lock resourceID. It returns the
// ownership token on success. Contention and store failures both report
// ok == false.
func (m *Manager) TryAcquire(ctx context.Context, resourceID string) (token string, ok bool) {
	log := logr.FromContextOrDiscard(ctx)
	config := m.Config()

	token = uuid.NewString()
	ok, err := m.store.SetNX(ctx, config.Prefix+resourceID, token, config.TTL)
	if err != nil {
		log.Error(err, "lock: acquire failed", "resource", resourceID)
		metrics.LockStoreErrors.Inc()
		return "", false
	}
	if !ok {
		metrics.LockContended.Inc()
		return "", false
	}

	metrics.LockAcquired.Inc()
	log.V(1).Info("lock acquired", "resource", resourceID)
	return token, true
}

// Acquire calls TryAcquire up to MaxAttempts times, pausing RetryInterval
// after every failed attempt. It returns ErrLockTimeout once attempts run
// out.
func (m *Manager) Acquire(ctx context.Context, resourceID string) (string, error) {
	ctx, span := tracer.Start(ctx, "lock.Acquire")
	defer span.End()
	span.SetAttributes(attribute.String("lock.resource", resourceID))

	log := logr.FromContextOrDiscard(ctx)
	config := m.Config()

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if token, ok := m.TryAcquire(ctx, resourceID); ok {
			span.SetAttributes(attribute.Int("lock.attempts", attempt))
			return token, nil
		}

		if err := sleep(ctx, config.RetryInterval); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return "", errors.Aborted("lock %s: acquisition cancelled", resourceID).Source(err)
		}
	}

	metrics.LockTimeouts.Inc()
	span.SetStatus(codes.Error, "timeout")
	log.Info("lock: acquisition timed out", "resource", resourceID, "attempts", config.MaxAttempts)
	return "", ErrLockTimeout
}

// Release deletes the lock on resourceID if it is still held with token.
// It never deletes a lock acquired by someone else, including after the
// caller's own lock expired.
func (m *Manager) Release(ctx context.Context, resourceID, token string) bool {
	if token == "" {
		return false
	}
	log := logr.FromContextOrDiscard(ctx)

	deleted, err := m.store.CompareAndDelete(ctx, m.Key(resourceID), token)
	if err != nil {
		log.Error(err, "lock: release failed", "resource", resourceID)
		return false
	}
	if deleted {
		metrics.LockReleased.Inc()
		log.V(1).Info("lock released", "resource", resourceID)
	}
	return deleted
}

// Lock acquires resourceID and returns a scope owning the token. The scope
// must be released on every exit path.
func (m *Manager) Lock(ctx context.Context, resourceID string) (*Scope, error) {
	token, err := m.Acquire(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return newScope(ctx, m, resourceID, token), nil
}

// WithLock runs fn while holding the lock on resourceID and releases it
// afterwards, whatever fn returns.
func (m *Manager) WithLock(ctx context.Context, resourceID string, fn func(ctx context.Context) error) error {
	scope, err := m.Lock(ctx, resourceID)
	if err != nil {
		return err
	}
	defer scope.Release(context.WithoutCancel(ctx))

	return fn(ctx)
}

// NewLock returns a Locker bound to resourceID.
func (m *Manager) NewLock(resourceID string) Locker {
	return &locker{
		manager:    m,
		resourceID: resourceID,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
