package chain

import "github.com/lyzr/agentchain/common/sdk"

// branchState tracks condition decisions and the memoized active set for one
// run. It is written by the scheduler between levels and never shared with
// executors.
type branchState struct {
	graph      *Graph
	conditions []*sdk.NodeConfig
	decisions  map[string]bool
	active     map[string]bool
}

func newBranchState(g *Graph) *branchState {
	s := &branchState{
		graph:     g,
		decisions: make(map[string]bool),
		active:    make(map[string]bool),
	}
	for _, id := range g.order {
		if node := g.Node(id); node.Type == sdk.NodeTypeCondition {
			s.conditions = append(s.conditions, node)
		}
	}
	return s
}

// record stores a condition outcome and invalidates the memoized set, since
// a new decision can deactivate previously undecided nodes.
func (s *branchState) record(conditionID string, decision bool) {
	s.decisions[conditionID] = decision
	s.active = make(map[string]bool)
}

// isActive reports whether a node may execute: it must not sit on the
// untaken branch of any decided condition, and every dependency must itself
// be active. Memoized per node id, bounding the computation to O(V+E).
func (s *branchState) isActive(id string) bool {
	if active, ok := s.active[id]; ok {
		return active
	}
	// Mark before recursing; the graph is acyclic so this only guards
	// against repeated work, not against loops.
	active := s.compute(id)
	s.active[id] = active
	return active
}

func (s *branchState) compute(id string) bool {
	for _, cond := range s.conditions {
		decision, decided := s.decisions[cond.ID]
		if !decided {
			continue
		}
		if decision && contains(cond.FalseBranch, id) {
			return false
		}
		if !decision && contains(cond.TrueBranch, id) {
			return false
		}
	}
	for _, dep := range s.graph.Dependencies(id) {
		if !s.isActive(dep) {
			return false
		}
	}
	return true
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
