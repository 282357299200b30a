package redis

import (
	"context"
	"errors"
	"time"

	"github.com/enverbisevac/coord/store"
	"github.com/redis/go-redis/v9"
)

// DefaultOperationTimeout bounds each store call when no option overrides it.
var DefaultOperationTimeout = 5 * time.Second

var _ store.Store = (*Store)(nil)

var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// Store implements store.Store on top of a redis client.
type Store struct {
	config Config
	client redis.UniversalClient
}

// New creates a store using client.
func New(client redis.UniversalClient, options ...Option) *Store {
	config := Config{
		OperationTimeout: DefaultOperationTimeout,
	}
	for _, opt := range options {
		opt.Apply(&config)
	}
	return &Store{
		config: config,
		client: client,
	}
}

func (s *Store) withTimeout(ctx context.Context, extra time.Duration) (context.Context, context.CancelFunc) {
	if s.config.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.OperationTimeout+extra)
}

// SetNX runs SET key value NX EX ttl.
func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.withTimeout(ctx, 0)
	defer cancel()

	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, store.Unavailable("setnx "+key, err)
	}
	return ok, nil
}

// CompareAndDelete deletes key through a Lua script if it holds expected.
func (s *Store) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx, 0)
	defer cancel()

	n, err := compareAndDelete.Run(ctx, s.client, []string{key}, expected).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, store.Unavailable("compare and delete "+key, err)
	}
	return n > 0, nil
}

// Push runs LPUSH and returns the new list length.
func (s *Store) Push(ctx context.Context, key, item string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx, 0)
	defer cancel()

	n, err := s.client.LPush(ctx, key, item).Result()
	if err != nil {
		return 0, store.Unavailable("lpush "+key, err)
	}
	return n, nil
}

// BlockingPop runs BRPOP. A nil reply is reported as a timeout.
func (s *Store) BlockingPop(ctx context.Context, key string, timeout time.Duration) (string, bool, error) {
	ctx, cancel := s.withTimeout(ctx, timeout)
	defer cancel()

	res, err := s.client.BRPop(ctx, timeout, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, store.Unavailable("brpop "+key, err)
	}
	// reply is [key, value]
	if len(res) < 2 {
		return "", false, nil
	}
	return res[1], true, nil
}

// Len runs LLEN.
func (s *Store) Len(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx, 0)
	defer cancel()

	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, store.Unavailable("llen "+key, err)
	}
	return n, nil
}

// Ping runs PING.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx, 0)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return store.Unavailable("ping", err)
	}
	return nil
}
