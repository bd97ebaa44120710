package chain

import (
	"fmt"
	"strings"

	"github.com/lyzr/agentchain/common/sdk"
)

// Graph is the validated dependency graph of a workflow. It is built once
// per run and read-only afterwards.
type Graph struct {
	nodes      map[string]*sdk.NodeConfig
	order      []string
	dependents map[string][]string
}

// NewGraph builds a graph from the node list and validates it: duplicate
// ids, self-dependencies, dangling dependency ids, mapping sources that are
// not declared dependencies, and cycles all fail with ConfigError.
func NewGraph(nodes []*sdk.NodeConfig) (*Graph, error) {
	g := &Graph{
		nodes:      make(map[string]*sdk.NodeConfig, len(nodes)),
		dependents: make(map[string][]string),
	}
	for _, node := range nodes {
		if _, exists := g.nodes[node.ID]; exists {
			return nil, sdk.NewConfigError(node.ID, "duplicate node id")
		}
		g.nodes[node.ID] = node
		g.order = append(g.order, node.ID)
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	for _, node := range nodes {
		for _, dep := range node.Dependencies {
			g.dependents[dep] = append(g.dependents[dep], node.ID)
		}
	}
	return g, nil
}

func (g *Graph) validate() error {
	for _, id := range g.order {
		node := g.nodes[id]
		declared := make(map[string]bool, len(node.Dependencies))
		for _, dep := range node.Dependencies {
			if dep == id {
				return sdk.NewConfigError(id, "node depends on itself")
			}
			if _, exists := g.nodes[dep]; !exists {
				return sdk.NewConfigError(id, "unknown dependency: %s", dep)
			}
			declared[dep] = true
		}
		for placeholder, mapping := range node.InputMappings {
			if mapping.Source != "" && !declared[mapping.Source] {
				return sdk.NewConfigError(id, "mapping %s references %s which is not a declared dependency",
					placeholder, mapping.Source)
			}
		}
	}
	for _, id := range g.order {
		node := g.nodes[id]
		for _, ref := range append(compositeRefs(node), gatingRefs(node)...) {
			if _, exists := g.nodes[ref]; !exists {
				return sdk.NewConfigError(id, "references unknown node: %s", ref)
			}
			if ref == id {
				return sdk.NewConfigError(id, "node references itself")
			}
		}
	}
	if cycle := g.findCycle(); len(cycle) > 0 {
		return sdk.NewConfigError("", "dependency cycle: %s", strings.Join(cycle, " -> "))
	}
	return nil
}

// compositeRefs returns the node ids a composite node executes as inner
// subgraphs: loop and recursive bodies and parallel branch members.
func compositeRefs(node *sdk.NodeConfig) []string {
	var refs []string
	refs = append(refs, node.BodyNodeIDs...)
	if node.BodyNodeID != "" {
		refs = append(refs, node.BodyNodeID)
	}
	for _, branch := range node.Branches {
		refs = append(refs, branch...)
	}
	return refs
}

// gatingRefs returns the node ids a condition gates. Gated nodes stay in the
// top-level schedule, unlike composite refs.
func gatingRefs(node *sdk.NodeConfig) []string {
	refs := append([]string{}, node.TrueBranch...)
	return append(refs, node.FalseBranch...)
}

// Owned returns the set of nodes referenced as composite bodies or branch
// members. Owned nodes are executed by their composite through subgraph
// calls, never scheduled at the top level.
func (g *Graph) Owned() map[string]bool {
	owned := make(map[string]bool)
	for _, id := range g.order {
		for _, ref := range compositeRefs(g.nodes[id]) {
			owned[ref] = true
		}
	}
	return owned
}

// findCycle runs a DFS over dependency edges and returns the ids on the
// first cycle found, or nil.
func (g *Graph) findCycle() []string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = visiting
		stack = append(stack, id)
		for _, dep := range g.nodes[id].Dependencies {
			switch state[dep] {
			case visiting:
				// Found a cycle; slice the stack from dep onward
				for i, onStack := range stack {
					if onStack == dep {
						cycle = append(append([]string{}, stack[i:]...), dep)
						return true
					}
				}
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, id := range g.order {
		if state[id] == unvisited && visit(id) {
			return cycle
		}
	}
	return nil
}

// Levels returns node ids grouped by longest-path distance from any root.
// Within a level, declaration order is preserved for determinism.
func (g *Graph) Levels() [][]string {
	depth := make(map[string]int, len(g.nodes))
	var levelOf func(id string) int
	levelOf = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		d := 0
		for _, dep := range g.nodes[id].Dependencies {
			if dd := levelOf(dep) + 1; dd > d {
				d = dd
			}
		}
		depth[id] = d
		return d
	}

	maxDepth := 0
	for _, id := range g.order {
		if d := levelOf(id); d > maxDepth {
			maxDepth = d
		}
	}

	levels := make([][]string, maxDepth+1)
	for _, id := range g.order {
		d := depth[id]
		levels[d] = append(levels[d], id)
	}
	return levels
}

// Node returns the config for id, or nil.
func (g *Graph) Node(id string) *sdk.NodeConfig {
	return g.nodes[id]
}

// Dependencies returns the direct predecessors of id.
func (g *Graph) Dependencies(id string) []string {
	if node := g.nodes[id]; node != nil {
		return node.Dependencies
	}
	return nil
}

// Dependents returns the direct successors of id.
func (g *Graph) Dependents(id string) []string {
	return g.dependents[id]
}

// Leaves returns nodes with no dependents, in declaration order.
func (g *Graph) Leaves() []string {
	var leaves []string
	for _, id := range g.order {
		if len(g.dependents[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	return leaves
}

// Size returns the number of nodes.
func (g *Graph) Size() int { return len(g.nodes) }

// ValidateSchemaAlignment checks, for every input mapping, that the source
// node's declared output schema (when present) contains the first path
// segment the consumer reads. Mismatches are returned as warnings; callers
// running in strict mode promote them to ConfigError.
func (g *Graph) ValidateSchemaAlignment() []string {
	var warnings []string
	for _, id := range g.order {
		node := g.nodes[id]
		for placeholder, mapping := range node.InputMappings {
			if mapping.Source == "" || mapping.Path == "" || mapping.Path == "." {
				continue
			}
			source := g.nodes[mapping.Source]
			if source == nil || len(source.OutputSchema) == 0 {
				continue
			}
			fields := schemaFields(source.OutputSchema)
			if fields == nil {
				continue
			}
			first := strings.SplitN(mapping.Path, ".", 2)[0]
			if !fields[first] {
				warnings = append(warnings, fmt.Sprintf(
					"node %s: mapping %s reads %q from %s but its output schema does not declare that field",
					id, placeholder, mapping.Path, mapping.Source))
			}
		}
	}
	return warnings
}

// schemaFields extracts the declared field set from a dict schema or a JSON
// Schema properties block. Returns nil when the shape declares no fields.
func schemaFields(schema map[string]interface{}) map[string]bool {
	source := schema
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		source = props
	} else if _, isJSONSchema := schema["type"]; isJSONSchema {
		return nil
	}
	fields := make(map[string]bool, len(source))
	for field := range source {
		fields[field] = true
	}
	return fields
}
