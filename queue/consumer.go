package queue

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/enverbisevac/coord/metrics"
	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// State is the lifecycle state of the consumers of one queue.
type State int

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

type group struct {
	cancel   context.CancelFunc
	done     chan struct{}
	stopping atomic.Bool
}

// State returns the consumer state of the named queue.
func (q *Queue) State(name string) State {
	q.mu.RLock()
	defer q.mu.RUnlock()

	g, ok := q.groups[name]
	switch {
	case !ok:
		return StateStopped
	case g.stopping.Load():
		return StateStopping
	default:
		return StateRunning
	}
}

// Start spawns the consumer pool for the named queue. Consumers run until
// Stop is called or ctx is cancelled. Start is a no-op while the queue is
// running or still stopping; a Start dropped during stopping must be
// repeated once State reports StateStopped.
func (q *Queue) Start(ctx context.Context, name string) {
	log := logr.FromContextOrDiscard(ctx)

	q.mu.Lock()
	defer q.mu.Unlock()

	if g, ok := q.groups[name]; ok {
		state := StateRunning
		if g.stopping.Load() {
			state = StateStopping
		}
		log.Info("queue: start ignored, consumers not stopped", "queue", name, "state", state.String())
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	g := &group{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	q.groups[name] = g

	var eg errgroup.Group
	for i := range q.config.Consumers {
		eg.Go(func() error {
			q.consume(ctx, name, i)
			return nil
		})
	}
	metrics.QueueConsumers.WithLabelValues(name).Set(float64(q.config.Consumers))

	go func() {
		_ = eg.Wait()
		cancel()

		q.mu.Lock()
		if q.groups[name] == g {
			delete(q.groups, name)
		}
		q.mu.Unlock()

		metrics.QueueConsumers.WithLabelValues(name).Set(0)
		close(g.done)
	}()

	log.Info("queue: consumers started", "queue", name, "consumers", q.config.Consumers)
}

// Stop signals the consumers of the named queues, or of every queue when
// no name is given, and waits until their loops exit or ctx is done.
// Handlers already running are allowed to finish; messages they fail are
// still pushed back for retry.
func (q *Queue) Stop(ctx context.Context, names ...string) error {
	q.mu.RLock()
	var groups []*group
	if len(names) == 0 {
		for _, g := range q.groups {
			groups = append(groups, g)
		}
	} else {
		for _, name := range names {
			if g, ok := q.groups[name]; ok {
				groups = append(groups, g)
			}
		}
	}
	q.mu.RUnlock()

	for _, g := range groups {
		g.stopping.Store(true)
		g.cancel()
	}

	logr.FromContextOrDiscard(ctx).Info("queue: consumers stop signal sent", "queues", len(groups))

	for _, g := range groups {
		select {
		case <-g.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Shutdown stops the consumers of every queue.
func (q *Queue) Shutdown(ctx context.Context) error {
	return q.Stop(ctx)
}

func (q *Queue) consume(ctx context.Context, name string, worker int) {
	log := logr.FromContextOrDiscard(ctx).WithValues("queue", name, "worker", worker)
	key := q.Key(name)

	log.V(1).Info("consumer started")
	defer log.V(1).Info("consumer stopped")

	// Pops are not cancelled by Stop: an item popped by the store must reach
	// a handler. PopTimeout keeps the loop responsive instead.
	popCtx := context.WithoutCancel(ctx)

	for ctx.Err() == nil {
		item, ok, err := q.store.BlockingPop(popCtx, key, q.Config().PopTimeout)
		if err != nil {
			log.Error(err, "queue: consumer store error")
			_ = sleep(ctx, q.Config().ErrorBackoff)
			continue
		}
		if !ok {
			continue
		}
		q.process(ctx, log, name, item)
	}
}

func (q *Queue) process(ctx context.Context, log logr.Logger, name, item string) {
	msg, err := Decode([]byte(item))
	if err != nil {
		metrics.QueueMalformed.WithLabelValues(name).Inc()
		log.Error(err, "queue: dropping malformed message")
		return
	}

	if q.dispatch(context.WithoutCancel(ctx), log, msg) {
		metrics.QueueProcessed.WithLabelValues(name).Inc()
		return
	}
	q.retry(ctx, log, name, msg)
}

// dispatch runs the handler registered for msg and reports whether the
// delivery succeeded. Unknown types count as delivered.
func (q *Queue) dispatch(ctx context.Context, log logr.Logger, msg Message) (success bool) {
	log = log.WithValues("id", msg.ID, "type", msg.Type)

	handler, ok := q.registry.Lookup(msg.Type)
	if !ok {
		log.Info("queue: no handler for message type, dropping")
		return true
	}

	ctx, span := tracer.Start(ctx, "queue.dispatch", trace.WithAttributes(
		attribute.String("queue.message.id", msg.ID),
		attribute.String("queue.message.type", msg.Type),
		attribute.Int("queue.message.retry_count", msg.RetryCount),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("handler panic: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			log.Error(err, "queue: handler panicked")
			success = false
		}
	}()

	log.V(1).Info("processing message")
	ok, err := handler.Handle(logr.NewContext(ctx, log), msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		log.Error(err, "queue: handler failed")
		return false
	}
	if !ok {
		span.SetStatus(codes.Error, "handler returned false")
		log.Info("queue: handler returned false")
		return false
	}
	return true
}

// retry pushes a failed message back to the queue after RetryDelay, or
// discards it once it used up its retries. If the consumer is stopped
// during the delay the message is pushed back right away.
func (q *Queue) retry(ctx context.Context, log logr.Logger, name string, msg Message) {
	config := q.Config()
	log = log.WithValues("id", msg.ID, "type", msg.Type)

	msg.RetryCount++
	if msg.RetryCount > config.MaxRetries {
		metrics.QueueDiscarded.WithLabelValues(name).Inc()
		log.Info("queue: message exceeded max retries, discarding", "retries", msg.RetryCount-1)
		return
	}

	log.Info("queue: retrying message", "attempt", msg.RetryCount, "max", config.MaxRetries)
	_ = sleep(ctx, config.RetryDelay)

	data, err := msg.Encode()
	if err != nil {
		log.Error(err, "queue: retry encode failed")
		return
	}
	if _, err := q.store.Push(context.WithoutCancel(ctx), config.Prefix+name, string(data)); err != nil {
		log.Error(err, "queue: retry push failed")
		return
	}
	metrics.QueueRetried.WithLabelValues(name).Inc()
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
