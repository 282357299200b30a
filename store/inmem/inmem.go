// Package inmem implements store.Store in process memory. It gives a single
// instance the same semantics the redis store gives a fleet.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/enverbisevac/coord/store"
)

var _ store.Store = (*Store)(nil)

type value struct {
	data    string
	expires time.Time
}

// Store implements store.Store using maps guarded by a mutex.
type Store struct {
	mu     sync.Mutex
	now    func() time.Time
	values map[string]value
	lists  map[string][]string
	// signal is closed and replaced whenever an item is pushed to a list.
	signal map[string]chan struct{}
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		now:    time.Now,
		values: make(map[string]value),
		lists:  make(map[string][]string),
		signal: make(map[string]chan struct{}),
	}
}

func (s *Store) live(key string) (value, bool) {
	v, ok := s.values[key]
	if !ok {
		return value{}, false
	}
	if !v.expires.IsZero() && !s.now().Before(v.expires) {
		delete(s.values, key)
		return value{}, false
	}
	return v, true
}

// SetNX stores data under key unless a live value exists.
func (s *Store) SetNX(ctx context.Context, key, data string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, store.Unavailable("setnx "+key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live(key); ok {
		return false, nil
	}
	v := value{data: data}
	if ttl > 0 {
		v.expires = s.now().Add(ttl)
	}
	s.values[key] = v
	return true, nil
}

// CompareAndDelete deletes key if its live value equals expected.
func (s *Store) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, store.Unavailable("compare and delete "+key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.live(key)
	if !ok || v.data != expected {
		return false, nil
	}
	delete(s.values, key)
	return true, nil
}

// Push appends item to the list and wakes waiting pops.
func (s *Store) Push(ctx context.Context, key, item string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, store.Unavailable("push "+key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lists[key] = append(s.lists[key], item)
	if ch, ok := s.signal[key]; ok {
		close(ch)
		delete(s.signal, key)
	}
	return int64(len(s.lists[key])), nil
}

// pop takes the oldest item of the list, or returns a channel that is closed
// on the next push.
func (s *Store) pop(key string) (string, bool, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[key]
	if len(list) > 0 {
		item := list[0]
		list[0] = ""
		if len(list) == 1 {
			delete(s.lists, key)
		} else {
			s.lists[key] = list[1:]
		}
		return item, true, nil
	}

	ch, ok := s.signal[key]
	if !ok {
		ch = make(chan struct{})
		s.signal[key] = ch
	}
	return "", false, ch
}

// BlockingPop takes the oldest item, waiting up to timeout for one.
func (s *Store) BlockingPop(ctx context.Context, key string, timeout time.Duration) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return "", false, store.Unavailable("pop "+key, err)
		}
		item, ok, wait := s.pop(key)
		if ok {
			return item, true, nil
		}
		select {
		case <-wait:
		case <-timer.C:
			return "", false, nil
		case <-ctx.Done():
			return "", false, store.Unavailable("pop "+key, ctx.Err())
		}
	}
}

// Len returns the list length.
func (s *Store) Len(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, store.Unavailable("len "+key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.lists[key])), nil
}

// Ping only fails for a done context.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return store.Unavailable("ping", err)
	}
	return nil
}
