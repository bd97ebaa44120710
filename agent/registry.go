// Package agent provides the agent package registry and config layering
// used by agent nodes.
package agent

import (
	"encoding/json"
	"fmt"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/lyzr/agentchain/common/sdk"
)

// Registry is a concurrency-safe package -> agent definition map.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*sdk.AgentDefinition
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*sdk.AgentDefinition)}
}

// Register adds an agent definition keyed by its package reference.
func (r *Registry) Register(def *sdk.AgentDefinition) error {
	if def == nil || def.Package == "" {
		return fmt.Errorf("agent definition requires a package reference")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[def.Package] = def
	return nil
}

// Get looks up an agent definition by package reference.
func (r *Registry) Get(pkg string) (*sdk.AgentDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.agents[pkg]
	return def, ok
}

// MergeConfigs layers override onto base with JSON merge patch semantics
// (RFC 7386): nested objects merge, nulls delete, scalars replace. Used for
// the registry < chain < node config precedence.
func MergeConfigs(base, override map[string]interface{}) (map[string]interface{}, error) {
	if len(base) == 0 {
		return override, nil
	}
	if len(override) == 0 {
		return base, nil
	}

	baseDoc, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal base config: %w", err)
	}
	patchDoc, err := json.Marshal(override)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal override config: %w", err)
	}

	merged, err := jsonpatch.MergePatch(baseDoc, patchDoc)
	if err != nil {
		return nil, fmt.Errorf("failed to merge configs: %w", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(merged, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal merged config: %w", err)
	}
	return out, nil
}
