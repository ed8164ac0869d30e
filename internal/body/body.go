// Package body defines the contract between the engine and the units of
// work a task delegates to: tools, LLM calls, and direct handlers. The
// engine only ever sees a Func; concrete backends live behind it.
package body

import (
	"context"
	"fmt"
	"sync"
)

// Func is the callable a task delegates to. It receives fully resolved
// input data and returns either a response-shaped value or a raw result
// to be wrapped by the engine. Errors are converted by the engine into
// failure responses, never surfaced as panics.
type Func func(ctx context.Context, input map[string]any) (any, error)

// Invoker is the opaque LLM boundary. Implementations wrap whatever
// model transport the host application uses.
type Invoker interface {
	Invoke(ctx context.Context, input map[string]any) (any, error)
}

// InvokerFunc adapts a plain function to the Invoker interface.
type InvokerFunc func(ctx context.Context, input map[string]any) (any, error)

func (f InvokerFunc) Invoke(ctx context.Context, input map[string]any) (any, error) {
	return f(ctx, input)
}

// Registry maps names to tool and handler implementations and holds the
// LLM invoker. It is the dependency-injected replacement for a global
// tool registry: the engine receives one at construction.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Func
	handlers map[string]Func
	llm      Invoker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]Func),
		handlers: make(map[string]Func),
	}
}

// RegisterTool registers a tool implementation under a name.
// Re-registering a name replaces the previous implementation.
func (r *Registry) RegisterTool(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = fn
}

// RegisterHandler registers a direct handler under a name.
func (r *Registry) RegisterHandler(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
}

// SetLLM installs the LLM invoker used by llm tasks.
func (r *Registry) SetLLM(inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm = inv
}

// Bind resolves a task's body once, at workflow build time, from its
// kind and target name. Dispatch happens here, not per invocation.
func (r *Registry) Bind(kind, name string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch kind {
	case "tool":
		fn, ok := r.tools[name]
		if !ok {
			return nil, fmt.Errorf("no tool registered as %q", name)
		}
		return fn, nil
	case "direct_handler":
		fn, ok := r.handlers[name]
		if !ok {
			return nil, fmt.Errorf("no handler registered as %q", name)
		}
		return fn, nil
	case "llm":
		if r.llm == nil {
			return nil, fmt.Errorf("no llm invoker installed")
		}
		inv := r.llm
		return func(ctx context.Context, input map[string]any) (any, error) {
			return inv.Invoke(ctx, input)
		}, nil
	default:
		return nil, fmt.Errorf("unknown task kind %q", kind)
	}
}

// ToolNames returns the registered tool names, for diagnostics.
func (r *Registry) ToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}
