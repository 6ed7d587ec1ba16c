package action

import (
	"context"
	"fmt"
	"sync"

	"github.com/fixl-developer/tma-automation/pkg/types"
)

// Invocation is one action attempt handed to a handler. The idempotency key
// is identical across retries of the same action; downstream handlers must
// honor it to make retries safe.
type Invocation struct {
	Action         types.Action
	RuleID         string
	ExecutionID    string
	TenantID       string
	Index          int
	IdempotencyKey string
	Context        map[string]any
}

// Handler executes one action type.
type Handler interface {
	Execute(ctx context.Context, inv Invocation) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, inv Invocation) error

func (f HandlerFunc) Execute(ctx context.Context, inv Invocation) error {
	return f(ctx, inv)
}

// Registry maps action types to their handlers. Registration happens at
// wiring time; lookups are concurrent-safe.
type Registry struct {
	mu       sync.RWMutex
	handlers map[types.ActionType]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[types.ActionType]Handler)}
}

// Register installs a handler for an action type, replacing any existing one.
func (r *Registry) Register(t types.ActionType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// Lookup returns the handler for an action type.
func (r *Registry) Lookup(t types.ActionType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	if !ok {
		return nil, fmt.Errorf("no handler registered for action type %q", t)
	}
	return h, nil
}
