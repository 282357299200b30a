package lock

import (
	"context"
	"runtime"
	"sync"

	"github.com/enverbisevac/coord/metrics"
	"github.com/go-logr/logr"
)

// Scope owns the token of one acquired lock. Release must be called on
// every exit path: a dropped scope is only reported, the lock itself stays
// held until its TTL expires.
type Scope struct {
	manager *Manager
	state   *scopeState
}

type scopeState struct {
	resourceID string
	log        logr.Logger

	mu    sync.Mutex
	token string
}

func (st *scopeState) take() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	token := st.token
	st.token = ""
	return token
}

func (st *scopeState) peek() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.token
}

func newScope(ctx context.Context, m *Manager, resourceID, token string) *Scope {
	s := &Scope{
		manager: m,
		state: &scopeState{
			resourceID: resourceID,
			log:        logr.FromContextOrDiscard(ctx),
			token:      token,
		},
	}
	runtime.AddCleanup(s, abandoned, s.state)
	return s
}

func abandoned(st *scopeState) {
	if st.peek() == "" {
		return
	}
	metrics.LockAbandoned.Inc()
	st.log.Info("lock scope abandoned without release", "resource", st.resourceID)
}

// ResourceID returns the locked resource id.
func (s *Scope) ResourceID() string {
	return s.state.resourceID
}

// Token returns the ownership token, empty once released or moved.
func (s *Scope) Token() string {
	return s.state.peek()
}

// IsLocked reports whether the scope still owns a token.
func (s *Scope) IsLocked() bool {
	return s.Token() != ""
}

// Release releases the lock and clears the token. Calling it again is a
// no-op that returns false.
func (s *Scope) Release(ctx context.Context) bool {
	token := s.state.take()
	if token == "" {
		return false
	}
	return s.manager.Release(ctx, s.state.resourceID, token)
}

// Unlock releases the lock and always returns nil.
func (s *Scope) Unlock(ctx context.Context) error {
	s.Release(ctx)
	return nil
}

// Move transfers ownership to a new scope. The receiver holds no token
// afterwards.
func (s *Scope) Move() *Scope {
	token := s.state.take()
	moved := &Scope{
		manager: s.manager,
		state: &scopeState{
			resourceID: s.state.resourceID,
			log:        s.state.log,
			token:      token,
		},
	}
	runtime.AddCleanup(moved, abandoned, moved.state)
	return moved
}
