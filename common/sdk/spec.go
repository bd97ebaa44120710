package sdk

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// WorkflowSpec is the persisted workflow format: a JSON document with a node
// list and optional metadata. Unknown top-level fields are preserved across
// a parse/serialize round trip; unknown fields inside a node are rejected.
type WorkflowSpec struct {
	BlueprintID string                 `json:"blueprint_id,omitempty"`
	Version     string                 `json:"version"`
	Name        string                 `json:"name,omitempty"`
	Nodes       []*NodeConfig          `json:"nodes"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	// Extra holds preserved unknown top-level fields.
	Extra map[string]json.RawMessage `json:"-"`
}

var specKnownFields = map[string]bool{
	"blueprint_id": true,
	"version":      true,
	"name":         true,
	"nodes":        true,
	"metadata":     true,
}

// ParseWorkflowSpec decodes and validates the persisted workflow format.
func ParseWorkflowSpec(data []byte) (*WorkflowSpec, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, NewConfigError("", "invalid workflow document: %v", err)
	}

	spec := &WorkflowSpec{}
	if v, ok := raw["blueprint_id"]; ok {
		if err := json.Unmarshal(v, &spec.BlueprintID); err != nil {
			return nil, NewConfigError("", "invalid blueprint_id: %v", err)
		}
	}
	if v, ok := raw["version"]; ok {
		if err := json.Unmarshal(v, &spec.Version); err != nil {
			return nil, NewConfigError("", "invalid version: %v", err)
		}
	}
	if v, ok := raw["name"]; ok {
		if err := json.Unmarshal(v, &spec.Name); err != nil {
			return nil, NewConfigError("", "invalid name: %v", err)
		}
	}
	if v, ok := raw["metadata"]; ok {
		if err := json.Unmarshal(v, &spec.Metadata); err != nil {
			return nil, NewConfigError("", "invalid metadata: %v", err)
		}
	}

	nodesRaw, ok := raw["nodes"]
	if !ok {
		return nil, NewConfigError("", "workflow has no nodes")
	}
	var nodeDocs []json.RawMessage
	if err := json.Unmarshal(nodesRaw, &nodeDocs); err != nil {
		return nil, NewConfigError("", "invalid nodes array: %v", err)
	}
	for i, doc := range nodeDocs {
		node, err := parseNode(doc)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		spec.Nodes = append(spec.Nodes, node)
	}

	for key, v := range raw {
		if !specKnownFields[key] {
			if spec.Extra == nil {
				spec.Extra = make(map[string]json.RawMessage)
			}
			spec.Extra[key] = v
		}
	}

	return spec, spec.Validate()
}

// parseNode decodes one node, rejecting unknown fields.
func parseNode(doc json.RawMessage) (*NodeConfig, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	var node NodeConfig
	if err := dec.Decode(&node); err != nil {
		return nil, NewConfigError("", "invalid node definition: %v", err)
	}
	return &node, nil
}

// Validate performs the structural checks that do not need a registry:
// ids, kinds, field ranges and per-kind required fields.
func (s *WorkflowSpec) Validate() error {
	if s.Version == "" {
		return NewConfigError("", "workflow version is required")
	}
	if len(s.Nodes) == 0 {
		return NewConfigError("", "workflow has no nodes")
	}

	seen := make(map[string]bool, len(s.Nodes))
	for _, node := range s.Nodes {
		if node.ID == "" {
			return NewConfigError("", "node id is required")
		}
		if seen[node.ID] {
			return NewConfigError(node.ID, "duplicate node id")
		}
		seen[node.ID] = true

		if !KnownNodeTypes[node.Type] {
			return NewConfigError(node.ID, "unknown node type: %s", node.Type)
		}
		if node.TimeoutSeconds < 0 {
			return NewConfigError(node.ID, "timeout_seconds must be >= 1 when set")
		}
		if node.Retries < 0 {
			return NewConfigError(node.ID, "retries must be >= 0")
		}
		if node.BackoffSeconds < 0 {
			return NewConfigError(node.ID, "backoff_seconds must be >= 0")
		}
		if len(node.AllowedTools) > 0 && node.Type != NodeTypeAgent && node.Type != NodeTypeTool {
			return NewConfigError(node.ID, "allowed_tools is only valid on agent and tool nodes")
		}
		if err := validateKindFields(node); err != nil {
			return err
		}
	}
	return nil
}

func validateKindFields(node *NodeConfig) error {
	switch node.Type {
	case NodeTypeTool:
		if node.ToolName == "" {
			return NewConfigError(node.ID, "tool node requires tool_name")
		}
	case NodeTypeLLM:
		if node.PromptTemplate == "" {
			return NewConfigError(node.ID, "llm node requires prompt_template")
		}
	case NodeTypeAgent:
		if node.Package == "" {
			return NewConfigError(node.ID, "agent node requires package")
		}
	case NodeTypeCondition:
		if node.Expression == "" {
			return NewConfigError(node.ID, "condition node requires expression")
		}
		if len(node.TrueBranch) == 0 {
			return NewConfigError(node.ID, "condition node requires true_branch")
		}
	case NodeTypeLoop:
		if node.ItemsSource == "" {
			return NewConfigError(node.ID, "loop node requires items_source")
		}
		if node.ItemVar == "" {
			return NewConfigError(node.ID, "loop node requires item_var")
		}
		if len(node.BodyNodeIDs) == 0 {
			return NewConfigError(node.ID, "loop node requires body_node_ids")
		}
	case NodeTypeParallel:
		if len(node.Branches) == 0 {
			return NewConfigError(node.ID, "parallel node requires branches")
		}
	case NodeTypeRecursive:
		if node.BodyNodeID == "" && len(node.BodyNodeIDs) == 0 {
			return NewConfigError(node.ID, "recursive node requires body_node_id")
		}
		if node.ConvergenceExpression == "" {
			return NewConfigError(node.ID, "recursive node requires convergence_expression")
		}
		if node.MaxIterations <= 0 {
			return NewConfigError(node.ID, "recursive node requires max_iterations > 0")
		}
	case NodeTypeNestedWorkflow:
		if node.Workflow == nil && node.WorkflowRef == "" {
			return NewConfigError(node.ID, "nested_workflow node requires workflow or workflow_ref")
		}
	}
	return nil
}

// Node returns the config with the given id, or nil.
func (s *WorkflowSpec) Node(id string) *NodeConfig {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// MarshalJSON serializes the spec, re-emitting preserved unknown fields.
func (s *WorkflowSpec) MarshalJSON() ([]byte, error) {
	doc := make(map[string]interface{}, 5+len(s.Extra))
	if s.BlueprintID != "" {
		doc["blueprint_id"] = s.BlueprintID
	}
	doc["version"] = s.Version
	if s.Name != "" {
		doc["name"] = s.Name
	}
	doc["nodes"] = s.Nodes
	if s.Metadata != nil {
		doc["metadata"] = s.Metadata
	}
	for key, v := range s.Extra {
		doc[key] = v
	}
	return json.Marshal(doc)
}
