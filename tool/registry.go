// Package tool provides the tool registry and a set of builtin deterministic
// tools used by tool nodes and agent loops.
package tool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lyzr/agentchain/common/sdk"
)

// Registry is a concurrency-safe name -> tool map.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]sdk.Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]sdk.Tool)}
}

// Register adds a tool. Re-registering a name replaces the previous tool.
func (r *Registry) Register(t sdk.Tool) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("tool requires a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (sdk.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
