package queue

import (
	"context"
	"slices"
	"sync"
)

// Handler processes messages of one type. Returning false or an error
// marks the delivery as failed and the message is retried.
type Handler interface {
	Handle(ctx context.Context, msg Message) (bool, error)
}

// HandlerFunc is an adapter to allow the use of ordinary functions as
// message handlers.
type HandlerFunc func(ctx context.Context, msg Message) (bool, error)

// Handle calls f(ctx, msg).
func (f HandlerFunc) Handle(ctx context.Context, msg Message) (bool, error) {
	return f(ctx, msg)
}

// Registry maps message types to handlers. It is filled at startup and read
// by consumers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register sets the handler for messageType, replacing any previous one.
func (r *Registry) Register(messageType string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[messageType] = handler
}

// RegisterFunc registers fn as the handler for messageType.
func (r *Registry) RegisterFunc(messageType string, fn func(ctx context.Context, msg Message) (bool, error)) {
	r.Register(messageType, HandlerFunc(fn))
}

// Lookup returns the handler for messageType.
func (r *Registry) Lookup(messageType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[messageType]
	return h, ok
}

// Types returns the registered message types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
