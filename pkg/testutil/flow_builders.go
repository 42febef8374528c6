// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/google/uuid"

	"github.com/outflowhq/outflow/pkg/models"
)

// CreateTestNode creates a FlowNode with default values that can be
// overridden.
func CreateTestNode(overrides ...func(*models.FlowNode)) *models.FlowNode {
	node := &models.FlowNode{
		ID:     uuid.New().String(),
		Type:   models.NodeTypeMessageText,
		Name:   "Test Node",
		Config: map[string]any{"text": "hello {{contact.name}}"},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithID sets the node ID.
func WithID(id string) func(*models.FlowNode) {
	return func(n *models.FlowNode) {
		n.ID = id
	}
}

// WithType sets the node type.
func WithType(nodeType models.NodeType) func(*models.FlowNode) {
	return func(n *models.FlowNode) {
		n.Type = nodeType
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.FlowNode) {
	return func(n *models.FlowNode) {
		n.Name = name
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.FlowNode) {
	return func(n *models.FlowNode) {
		n.Config = config
	}
}

// CreateTestFlow creates an empty named flow.
func CreateTestFlow() *models.Flow {
	return &models.Flow{
		ID:          uuid.New().String(),
		Name:        "Test Flow",
		Description: "A flow for testing",
		Nodes:       []*models.FlowNode{},
		Edges:       []*models.Edge{},
	}
}

// CreateLinearFlow creates a trigger -> message flow, the smallest graph
// the interpreter will actually send something for.
func CreateLinearFlow() *models.Flow {
	flow := CreateTestFlow()
	flow.Nodes = []*models.FlowNode{
		CreateTestNode(WithID("start"), WithType(models.NodeTypeTrigger), WithName("Start"), WithConfig(nil)),
		CreateTestNode(WithID("greet"), WithName("Greeting")),
	}
	flow.Edges = []*models.Edge{
		CreateTestEdge("start", "greet", ""),
	}

	return flow
}

// CreateBranchingFlow creates a trigger -> condition flow with a message
// on each branch. The condition expression is taken as given.
func CreateBranchingFlow(expression string) *models.Flow {
	flow := CreateTestFlow()
	flow.Nodes = []*models.FlowNode{
		CreateTestNode(WithID("start"), WithType(models.NodeTypeTrigger), WithName("Start"), WithConfig(nil)),
		CreateTestNode(WithID("check"), WithType(models.NodeTypeCondition), WithName("Check"),
			WithConfig(map[string]any{"expression": expression})),
		CreateTestNode(WithID("yes"), WithName("Yes branch"), WithConfig(map[string]any{"text": "yes"})),
		CreateTestNode(WithID("no"), WithName("No branch"), WithConfig(map[string]any{"text": "no"})),
	}
	flow.Edges = []*models.Edge{
		CreateTestEdge("start", "check", ""),
		CreateTestEdge("check", "yes", models.EdgeHandleTrue),
		CreateTestEdge("check", "no", models.EdgeHandleFalse),
	}

	return flow
}

// CreateTestEdge creates an edge between two nodes.
func CreateTestEdge(source, target, handle string) *models.Edge {
	return &models.Edge{
		ID:           uuid.New().String(),
		Source:       source,
		Target:       target,
		SourceHandle: handle,
	}
}
