// Package models defines the core domain models for flow-based messaging automation.
package models

import "time"

// NodeType identifies the behavior of a flow node. The set is closed:
// the interpreter dispatches on it through the node registry, so adding
// a type means adding a handler package and registering its factory.
type NodeType string

const (
	NodeTypeTrigger         NodeType = "trigger"
	NodeTypeMessageText     NodeType = "message-text"
	NodeTypeMessageImage    NodeType = "message-image"
	NodeTypeMessageTemplate NodeType = "message-template"
	NodeTypeCondition       NodeType = "condition"
	NodeTypeDelay           NodeType = "delay"
	NodeTypeTransfer        NodeType = "transfer"
)

// Edge handles used by branching nodes to discriminate outgoing edges.
const (
	EdgeHandleTrue  = "true"
	EdgeHandleFalse = "false"
)

// FlowNode is one node instance in a flow graph. Config keys are
// type-specific; required keys are checked when the handler is built,
// missing ones are an execution-time error rather than a default.
type FlowNode struct {
	ID     string         `json:"id"     validate:"required"`
	Type   NodeType       `json:"type"   validate:"required"`
	Name   string         `json:"name"   validate:"required,min=1"`
	Config map[string]any `json:"config"`
}

// IsTrigger reports whether the node marks a flow entry point.
func (n *FlowNode) IsTrigger() bool {
	return n.Type == NodeTypeTrigger
}

// Edge connects two nodes by id. SourceHandle discriminates branches on
// nodes with more than one outgoing edge (condition nodes use
// "true"/"false"); it is empty for linear nodes.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
}

// Flow is an immutable description of a messaging graph. Flows are
// versioned on save; executions pin the version they ran against so an
// edit never rewrites history.
type Flow struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"    validate:"required,min=3"`
	Description string      `json:"description"`
	Version     int         `json:"version"`
	Nodes       []*FlowNode `json:"nodes"`
	Edges       []*Edge     `json:"edges"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NodeByID returns the node with the given id, or nil.
func (f *Flow) NodeByID(id string) *FlowNode {
	for _, n := range f.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}

// TriggerNodes returns every entry-point node in the flow.
func (f *Flow) TriggerNodes() []*FlowNode {
	var triggers []*FlowNode

	for _, n := range f.Nodes {
		if n.IsTrigger() {
			triggers = append(triggers, n)
		}
	}

	return triggers
}

// OutgoingEdges returns the edges leaving a node, optionally filtered by
// source handle. An empty handle matches edges without a handle.
func (f *Flow) OutgoingEdges(nodeID, handle string) []*Edge {
	var edges []*Edge

	for _, e := range f.Edges {
		if e.Source != nodeID {
			continue
		}

		if handle == "" || e.SourceHandle == "" || e.SourceHandle == handle {
			edges = append(edges, e)
		}
	}

	return edges
}

// Validate checks the structural invariants of the flow. A flow needs at
// least one trigger node; nodes unreachable from any trigger are reported
// as warnings, not errors, so an editor can save work in progress.
func (f *Flow) Validate() (warnings []string, err error) {
	if len(f.TriggerNodes()) == 0 {
		return nil, ErrFlowWithoutTrigger
	}

	seen := make(map[string]bool, len(f.Nodes))
	for _, n := range f.Nodes {
		if seen[n.ID] {
			return nil, ErrDuplicateNodeID
		}

		seen[n.ID] = true
	}

	for _, e := range f.Edges {
		if !seen[e.Source] || !seen[e.Target] {
			return nil, ErrDanglingEdge
		}
	}

	reachable := f.reachableFromTriggers()
	for _, n := range f.Nodes {
		if !reachable[n.ID] {
			warnings = append(warnings, "node "+n.ID+" is unreachable from any trigger")
		}
	}

	return warnings, nil
}

// reachableFromTriggers walks the edge list breadth-first from every
// trigger node. Uses a visited set so cyclic graphs terminate.
func (f *Flow) reachableFromTriggers() map[string]bool {
	visited := make(map[string]bool, len(f.Nodes))

	queue := make([]string, 0, len(f.Nodes))
	for _, t := range f.TriggerNodes() {
		queue = append(queue, t.ID)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if visited[id] {
			continue
		}

		visited[id] = true

		for _, e := range f.Edges {
			if e.Source == id && !visited[e.Target] {
				queue = append(queue, e.Target)
			}
		}
	}

	return visited
}

// StepStatus is the per-node outcome recorded in the execution log.
type StepStatus string

const (
	StepStatusRunning StepStatus = "running"
	StepStatusSuccess StepStatus = "success"
	StepStatusError   StepStatus = "error"
	StepStatusSkipped StepStatus = "skipped"
)

// StepLog is one entry of the interpreter's execution log. Logs are
// returned for every run regardless of outcome; production monitoring and
// the interactive flow tester both consume them.
type StepLog struct {
	Timestamp time.Time      `json:"timestamp"`
	NodeID    string         `json:"node_id"`
	NodeName  string         `json:"node_name"`
	Status    StepStatus     `json:"status"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}
