package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Handler is the function signature for tool implementations.
// Handlers receive the request context and JSON-encoded arguments.
type Handler func(ctx context.Context, args json.RawMessage) (Result, error)

// Result is the tool execution output that feeds back to the caller.
// IsError signals that the invocation failed; Content then carries a
// JSON error envelope instead of the normal payload.
type Result struct {
	Content string
	IsError bool
}

type entry struct {
	tool    Tool
	handler Handler
}

// Registry maps tool names to handlers. Each server owns one; there is
// no process-global registry.
type Registry struct {
	entries map[string]entry
	mu      sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a new tool. Returns ErrAlreadyExists if a tool with the
// same name is already registered. Thread-safe for concurrent
// registration.
func (r *Registry) Register(tool Tool, handler Handler) error {
	if tool.Name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, tool.Name)
	}

	r.entries[tool.Name] = entry{tool: tool, handler: handler}
	return nil
}

// Get retrieves a handler by tool name.
// Returns the handler and true if found, nil and false otherwise.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[name]
	if !exists {
		return nil, false
	}
	return e.handler, true
}

// List returns the definitions of all registered tools, sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute dispatches a tool call to the registered handler by name.
// Returns ErrNotFound if the tool is not registered. Handler errors are
// wrapped with the tool name for context.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	r.mu.RLock()
	e, exists := r.entries[name]
	r.mu.RUnlock()

	if !exists {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	result, err := e.handler(ctx, args)
	if err != nil {
		return Result{}, fmt.Errorf("tool %s execution failed: %w", name, err)
	}
	return result, nil
}

// JSONResult marshals v into a successful Result.
func JSONResult(v any) (Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Result{}, fmt.Errorf("marshal tool result: %w", err)
	}
	return Result{Content: string(data)}, nil
}

// ErrorResult wraps an error into a Result the caller can surface
// without aborting the session.
func ErrorResult(err error) Result {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return Result{Content: string(data), IsError: true}
}
