package queue

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/enverbisevac/coord/errors"
	"github.com/enverbisevac/coord/store"
	"github.com/enverbisevac/coord/store/inmem"
	storeredis "github.com/enverbisevac/coord/store/redis"
	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails Len, Push or BlockingPop while the matching flag is set.
type flakyStore struct {
	store.Store
	failLen  atomic.Bool
	failPush atomic.Bool
	failPops atomic.Int32
}

func (s *flakyStore) Len(ctx context.Context, key string) (int64, error) {
	if s.failLen.Load() {
		return 0, store.Unavailable("len", errors.New("connection refused"))
	}
	return s.Store.Len(ctx, key)
}

func (s *flakyStore) Push(ctx context.Context, key, item string) (int64, error) {
	if s.failPush.Load() {
		return 0, store.Unavailable("push", errors.New("connection refused"))
	}
	return s.Store.Push(ctx, key, item)
}

func (s *flakyStore) BlockingPop(ctx context.Context, key string, timeout time.Duration) (string, bool, error) {
	if s.failPops.Add(-1) >= 0 {
		return "", false, store.Unavailable("pop", errors.New("connection refused"))
	}
	return s.Store.BlockingPop(ctx, key, timeout)
}

func fastOptions(options ...Option) []Option {
	return append([]Option{
		WithPopTimeout(20 * time.Millisecond),
		WithRetryDelay(5 * time.Millisecond),
		WithErrorBackoff(5 * time.Millisecond),
	}, options...)
}

func newRedisQueue(t *testing.T, registry *Registry, options ...Option) (*Queue, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return New(storeredis.New(client), registry, options...), mr
}

func stop(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Shutdown(ctx))
}

func TestDefaultConfig(t *testing.T) {
	q := New(inmem.New(), nil)
	config := q.Config()

	assert.Equal(t, DefaultPrefix, config.Prefix)
	assert.Equal(t, 4, config.Consumers)
	assert.Equal(t, int64(10000), config.MaxSize)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, time.Second, config.PopTimeout)
	assert.Equal(t, 5*time.Second, config.RetryDelay)
	assert.Equal(t, time.Second, config.ErrorBackoff)
	assert.False(t, config.FailClosed)
	assert.NotNil(t, q.Registry())
}

func TestRuntimeConfig(t *testing.T) {
	q := New(inmem.New(), nil, WithPrefix("app:q:"))
	q.SetMaxSize(5)
	q.SetMaxRetries(0)

	assert.Equal(t, int64(5), q.Config().MaxSize)
	assert.Equal(t, 0, q.Config().MaxRetries)
	assert.Equal(t, "app:q:tasks", q.Key("tasks"))
}

func TestPublish(t *testing.T) {
	q, mr := newRedisQueue(t, nil)
	ctx := context.Background()

	msg, err := q.PublishType(ctx, "tasks", "email", map[string]string{"to": "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), q.Length(ctx, "tasks"))

	items, err := mr.List(DefaultPrefix + "tasks")
	require.NoError(t, err)
	require.Len(t, items, 1)

	got, err := Decode([]byte(items[0]))
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

// MaxSize 2, three publishes without consumers: the third is rejected.
func TestPublishRejectsWhenFull(t *testing.T) {
	q, _ := newRedisQueue(t, nil, WithMaxSize(2))
	ctx := context.Background()

	_, err := q.PublishType(ctx, "tasks", "email", nil)
	require.NoError(t, err)
	_, err = q.PublishType(ctx, "tasks", "email", nil)
	require.NoError(t, err)
	assert.True(t, q.IsFull(ctx, "tasks"))

	_, err = q.PublishType(ctx, "tasks", "email", nil)
	require.ErrorIs(t, err, ErrQueueFull)
	assert.True(t, errors.IsResourceExhausted(err))

	assert.Equal(t, int64(2), q.Length(ctx, "tasks"))
}

func TestPublishStoreUnavailable(t *testing.T) {
	s := &flakyStore{Store: inmem.New()}
	q := New(s, nil)
	ctx := context.Background()

	s.failPush.Store(true)
	_, err := q.PublishType(ctx, "tasks", "email", nil)
	require.Error(t, err)
	assert.True(t, errors.IsUnavailable(err))
	assert.True(t, store.IsUnavailable(err))
	assert.NotErrorIs(t, err, ErrQueueFull)
}

func TestIsFullUnknownLength(t *testing.T) {
	s := &flakyStore{Store: inmem.New()}
	s.failLen.Store(true)
	ctx := context.Background()

	q := New(s, nil, WithMaxSize(1))
	assert.Equal(t, int64(-1), q.Length(ctx, "tasks"))
	assert.False(t, q.IsFull(ctx, "tasks"), "unknown length fails open")
	_, err := q.PublishType(ctx, "tasks", "email", nil)
	assert.NoError(t, err)

	closed := New(s, nil, WithMaxSize(1), WithFailClosed(true))
	assert.True(t, closed.IsFull(ctx, "tasks"))
	_, err = closed.PublishType(ctx, "tasks", "email", nil)
	assert.True(t, errors.IsUnavailable(err))
}

func TestConsumerDispatch(t *testing.T) {
	registry := NewRegistry()
	received := make(chan Message, 10)
	registry.RegisterFunc("email", func(ctx context.Context, msg Message) (bool, error) {
		received <- msg
		return true, nil
	})

	q := New(inmem.New(), registry, fastOptions(WithConsumers(2))...)
	ctx := context.Background()

	q.Start(ctx, "tasks")
	defer stop(t, q)

	sent, err := q.PublishType(ctx, "tasks", "email", map[string]string{"to": "a"})
	require.NoError(t, err)

	select {
	case got := <-received:
		assert.Equal(t, sent, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestConsumerUnknownTypeDropped(t *testing.T) {
	registry := NewRegistry()
	done := make(chan struct{})
	registry.RegisterFunc("email", func(context.Context, Message) (bool, error) {
		close(done)
		return true, nil
	})

	q := New(inmem.New(), registry, fastOptions(WithConsumers(1))...)
	ctx := context.Background()

	_, err := q.PublishType(ctx, "tasks", "unknown", nil)
	require.NoError(t, err)
	_, err = q.PublishType(ctx, "tasks", "email", nil)
	require.NoError(t, err)

	q.Start(ctx, "tasks")
	defer stop(t, q)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	assert.Zero(t, q.Length(ctx, "tasks"))
}

func TestConsumerMalformedDropped(t *testing.T) {
	s := inmem.New()
	registry := NewRegistry()
	var calls atomic.Int32
	done := make(chan struct{})
	registry.RegisterFunc("email", func(context.Context, Message) (bool, error) {
		calls.Add(1)
		close(done)
		return true, nil
	})

	q := New(s, registry, fastOptions(WithConsumers(1))...)
	ctx := context.Background()

	_, err := s.Push(ctx, q.Key("tasks"), "{not json")
	require.NoError(t, err)
	_, err = q.PublishType(ctx, "tasks", "email", nil)
	require.NoError(t, err)

	q.Start(ctx, "tasks")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	stop(t, q)

	assert.Equal(t, int32(1), calls.Load())
	assert.Zero(t, q.Length(ctx, "tasks"), "malformed item must not be re-enqueued")
}

// A handler failing twice then succeeding is called exactly three times.
func TestRetryUntilSuccess(t *testing.T) {
	registry := NewRegistry()
	var calls atomic.Int32
	done := make(chan struct{})
	registry.RegisterFunc("email", func(ctx context.Context, msg Message) (bool, error) {
		switch calls.Add(1) {
		case 1:
			return false, nil
		case 2:
			return false, errors.New("smtp unavailable")
		default:
			close(done)
			return true, nil
		}
	})

	q, _ := newRedisQueue(t, registry, WithMaxRetries(3), WithConsumers(1), WithRetryDelay(10*time.Millisecond))
	ctx := context.Background()

	_, err := q.PublishType(ctx, "tasks", "email", map[string]string{"to": "a"})
	require.NoError(t, err)

	q.Start(ctx, "tasks")

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for third delivery")
	}
	stop(t, q)

	assert.Equal(t, int32(3), calls.Load())
	assert.Zero(t, q.Length(ctx, "tasks"))
}

func TestRetryThenDiscard(t *testing.T) {
	registry := NewRegistry()
	var (
		mu      sync.Mutex
		retries []int
	)
	registry.RegisterFunc("email", func(ctx context.Context, msg Message) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		retries = append(retries, msg.RetryCount)
		return false, errors.New("always fails")
	})

	q := New(inmem.New(), registry, fastOptions(WithMaxRetries(2), WithConsumers(1))...)
	ctx := context.Background()

	before := q.Length(ctx, "tasks")
	_, err := q.PublishType(ctx, "tasks", "email", nil)
	require.NoError(t, err)

	q.Start(ctx, "tasks")
	defer stop(t, q)

	attempts := func() []int {
		mu.Lock()
		defer mu.Unlock()
		return append([]int(nil), retries...)
	}
	require.Eventually(t, func() bool {
		return len(attempts()) == 3 && q.Length(ctx, "tasks") == before
	}, 5*time.Second, 10*time.Millisecond)

	// no further deliveries once discarded
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []int{0, 1, 2}, attempts())
	assert.Equal(t, before, q.Length(ctx, "tasks"))
}

func TestHandlerPanicRetried(t *testing.T) {
	registry := NewRegistry()
	var calls atomic.Int32
	registry.RegisterFunc("email", func(context.Context, Message) (bool, error) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return true, nil
	})

	q := New(inmem.New(), registry, fastOptions(WithConsumers(1))...)
	ctx := context.Background()

	_, err := q.PublishType(ctx, "tasks", "email", nil)
	require.NoError(t, err)

	q.Start(ctx, "tasks")
	defer stop(t, q)

	require.Eventually(t, func() bool {
		return calls.Load() == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateRunning, q.State("tasks"), "a panicking handler must not stop the pool")
}

func TestConsumerSurvivesStoreErrors(t *testing.T) {
	s := &flakyStore{Store: inmem.New()}
	s.failPops.Store(5)

	registry := NewRegistry()
	done := make(chan struct{})
	registry.RegisterFunc("email", func(context.Context, Message) (bool, error) {
		close(done)
		return true, nil
	})

	q := New(s, registry, fastOptions(WithConsumers(1))...)
	ctx := context.Background()

	_, err := q.PublishType(ctx, "tasks", "email", nil)
	require.NoError(t, err)

	q.Start(ctx, "tasks")
	defer stop(t, q)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not recover from store errors")
	}
}

func TestStopDuringRetryDelayRequeues(t *testing.T) {
	registry := NewRegistry()
	failed := make(chan struct{})
	var once sync.Once
	registry.RegisterFunc("email", func(context.Context, Message) (bool, error) {
		once.Do(func() { close(failed) })
		return false, nil
	})

	q := New(inmem.New(), registry,
		WithPopTimeout(20*time.Millisecond),
		WithRetryDelay(time.Hour),
		WithConsumers(1),
	)
	ctx := context.Background()

	sent, err := q.PublishType(ctx, "tasks", "email", nil)
	require.NoError(t, err)

	q.Start(ctx, "tasks")

	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	stop(t, q)

	require.Equal(t, int64(1), q.Length(ctx, "tasks"))
	item, ok, err := popItem(q, "tasks")
	require.NoError(t, err)
	require.True(t, ok)
	got, err := Decode([]byte(item))
	require.NoError(t, err)
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, 1, got.RetryCount)
}

func popItem(q *Queue, name string) (string, bool, error) {
	return q.store.BlockingPop(context.Background(), q.Key(name), 10*time.Millisecond)
}

func TestStartWhileStopping(t *testing.T) {
	var (
		mu   sync.Mutex
		logs []string
	)
	log := funcr.New(func(prefix, args string) {
		mu.Lock()
		defer mu.Unlock()
		logs = append(logs, args)
	}, funcr.Options{})
	ctx := logr.NewContext(context.Background(), log)

	registry := NewRegistry()
	entered := make(chan struct{})
	unblock := make(chan struct{})
	registry.RegisterFunc("email", func(context.Context, Message) (bool, error) {
		close(entered)
		<-unblock
		return true, nil
	})

	q := New(inmem.New(), registry, fastOptions(WithConsumers(1))...)
	_, err := q.PublishType(ctx, "tasks", "email", nil)
	require.NoError(t, err)

	q.Start(ctx, "tasks")
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	// the handler keeps the consumer busy, so Stop gives up on its context
	expired, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, q.Stop(expired, "tasks"), context.Canceled)
	require.Equal(t, StateStopping, q.State("tasks"))

	q.Start(ctx, "tasks")
	assert.Equal(t, StateStopping, q.State("tasks"))

	mu.Lock()
	var ignored bool
	for _, l := range logs {
		if strings.Contains(l, "start ignored") && strings.Contains(l, `"state"="stopping"`) {
			ignored = true
		}
	}
	mu.Unlock()
	assert.True(t, ignored, "dropped start must be logged with the stopping state")

	close(unblock)
	stop(t, q)
	assert.Equal(t, StateStopped, q.State("tasks"))

	q.Start(ctx, "tasks")
	defer stop(t, q)
	assert.Equal(t, StateRunning, q.State("tasks"))
}
