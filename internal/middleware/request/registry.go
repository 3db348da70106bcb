package request

import (
	"context"
	"sync"
)

// Registry tracks the contexts of in-flight requests by request ID. It exists
// for handlers that resolve their cancellation signal ambiently instead of
// receiving it as an argument: the wrapper registers each request's context
// here, and such handlers look it up by the request ID.
//
// The registry is safe for concurrent use. Entries live exactly as long as
// the wrapped handler invocation.
type Registry struct {
	mu       sync.RWMutex
	inflight map[string]context.Context
}

// NewRegistry creates an empty in-flight request registry.
func NewRegistry() *Registry {
	return &Registry{
		inflight: make(map[string]context.Context),
	}
}

// Register records the context for an in-flight request.
func (r *Registry) Register(id string, ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight[id] = ctx
}

// Deregister removes a request's entry once the handler returns.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, id)
}

// Lookup returns the registered context for a request ID. The second return
// value reports whether the request is still in flight.
func (r *Registry) Lookup(id string) (context.Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctx, ok := r.inflight[id]
	return ctx, ok
}

// Len returns the number of in-flight requests.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.inflight)
}
