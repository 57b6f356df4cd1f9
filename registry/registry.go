package registry

import (
	"context"
	"fmt"
	"sync"
)

// Registry is the `name -> ActPackageFn` lookup the core consumes for
// `code` acts, grounded on the teacher's ChatModel provider-selection
// pattern generalized from "pick a ChatModel" to "look up any named
// package".
type Registry struct {
	mu       sync.RWMutex
	packages map[string]ActPackageFn
}

// New returns a Registry pre-populated with the built-in packages:
// llm.mock and http.request (always available, no credentials needed).
// llm.anthropic/llm.openai/llm.google are registered by callers that have
// API keys via RegisterChatModel.
func New() *Registry {
	r := &Registry{packages: make(map[string]ActPackageFn)}
	r.Register("llm.mock", runChat(&MockChatModel{}))
	r.Register("http.request", HTTPRequest)
	return r
}

// Register adds or replaces the package bound to name.
func (r *Registry) Register(name string, fn ActPackageFn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packages[name] = fn
}

// RegisterChatModel wraps m as a `code` package callable by name (e.g.
// "llm.anthropic").
func (r *Registry) RegisterChatModel(name string, m ChatModel) {
	r.Register(name, runChat(m))
}

// Lookup returns the package bound to name.
func (r *Registry) Lookup(name string) (ActPackageFn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.packages[name]
	return fn, ok
}

// Call looks up name and invokes it, returning a not-found error when
// absent.
func (r *Registry) Call(ctx context.Context, name string, inputs map[string]any) (map[string]any, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("registry: unknown package %q", name)
	}
	return fn(ctx, inputs)
}
