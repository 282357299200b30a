// Package queue implements a durable, multi-consumer work queue on top of a
// store.Store list. Delivery is at-least-once with a bounded number of
// retries.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/enverbisevac/coord/errors"
	"github.com/enverbisevac/coord/metrics"
	"github.com/enverbisevac/coord/store"
	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
)

// ErrQueueFull is returned by Publish when the queue reached its maximum
// size. Nothing was enqueued.
var ErrQueueFull = errors.ResourceExhausted("queue is full")

var tracer = otel.Tracer("github.com/enverbisevac/coord/queue")

// Queue publishes messages to named store-backed lists and runs consumer
// pools dispatching them to registered handlers.
type Queue struct {
	store    store.Store
	registry *Registry

	mu     sync.RWMutex
	config Config
	groups map[string]*group
}

// New creates a new Queue. A nil registry is replaced by an empty one.
func New(s store.Store, registry *Registry, options ...Option) *Queue {
	config := Config{
		Prefix:       DefaultPrefix,
		Consumers:    DefaultConsumers,
		MaxSize:      DefaultMaxSize,
		MaxRetries:   DefaultMaxRetries,
		PopTimeout:   DefaultPopTimeout,
		RetryDelay:   DefaultRetryDelay,
		ErrorBackoff: DefaultErrorBackoff,
	}
	for _, opt := range options {
		opt.Apply(&config)
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Queue{
		store:    s,
		registry: registry,
		config:   config,
		groups:   make(map[string]*group),
	}
}

// Registry returns the handler registry consulted by consumers.
func (q *Queue) Registry() *Registry {
	return q.registry
}

// Config returns a copy of the current configuration.
func (q *Queue) Config() Config {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.config
}

// SetMaxSize changes the admission limit used by Publish.
func (q *Queue) SetMaxSize(n int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	WithMaxSize(n).Apply(&q.config)
}

// SetMaxRetries changes how many failed deliveries are retried.
func (q *Queue) SetMaxRetries(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	WithMaxRetries(n).Apply(&q.config)
}

// Key returns the list key backing the queue name.
func (q *Queue) Key(name string) string {
	return q.Config().Prefix + name
}

// Length returns the number of queued messages, or -1 when the store
// could not be read.
func (q *Queue) Length(ctx context.Context, name string) int64 {
	n, err := q.store.Len(ctx, q.Key(name))
	if err != nil {
		logr.FromContextOrDiscard(ctx).Error(err, "queue: length failed", "queue", name)
		return -1
	}
	return n
}

// IsFull reports whether the queue reached its maximum size. An unknown
// length counts as not full unless the queue is configured to fail closed.
func (q *Queue) IsFull(ctx context.Context, name string) bool {
	n := q.Length(ctx, name)
	if n < 0 {
		return q.Config().FailClosed
	}
	return n >= q.Config().MaxSize
}

// Publish enqueues msg on the named queue. It returns ErrQueueFull when
// the queue is at capacity and an unavailable status when the store fails.
func (q *Queue) Publish(ctx context.Context, name string, msg Message) error {
	log := logr.FromContextOrDiscard(ctx)
	config := q.Config()

	n := q.Length(ctx, name)
	switch {
	case n < 0 && config.FailClosed:
		return errors.Unavailable("queue %s: length unknown", name).Source(store.ErrUnavailable)
	case n >= config.MaxSize:
		metrics.QueueRejected.WithLabelValues(name).Inc()
		log.Info("queue: full", "queue", name, "length", n)
		return fmt.Errorf("queue %s: %w", name, ErrQueueFull)
	}

	data, err := msg.Encode()
	if err != nil {
		return err
	}

	if _, err := q.store.Push(ctx, config.Prefix+name, string(data)); err != nil {
		log.Error(err, "queue: publish failed", "queue", name, "id", msg.ID)
		return errors.Unavailable("queue %s: publish failed", name).Source(err)
	}

	metrics.QueuePublished.WithLabelValues(name).Inc()
	log.V(1).Info("message published", "queue", name, "id", msg.ID, "type", msg.Type)
	return nil
}

// PublishType builds a message of type typ around payload and publishes it.
// The published message is returned.
func (q *Queue) PublishType(ctx context.Context, name, typ string, payload any) (Message, error) {
	msg, err := NewMessage(typ, payload)
	if err != nil {
		return Message{}, err
	}
	if err := q.Publish(ctx, name, msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
