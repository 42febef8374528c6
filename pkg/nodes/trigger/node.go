// Package trigger implements the pass-through entry-point node.
package trigger

import (
	"context"

	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/protocol"
)

// Node marks a flow entry point. Execution is a pass-through; the node
// exists so the graph has explicit starts and editors can attach event
// metadata to them.
type Node struct {
	id string
}

func NewNode(node *models.FlowNode) (*Node, error) {
	return &Node{id: node.ID}, nil
}

func (n *Node) ID() string {
	return n.id
}

func (n *Node) Type() models.NodeType {
	return models.NodeTypeTrigger
}

func (n *Node) Execute(_ context.Context, _ *protocol.ExecEnv) (protocol.HandlerResult, error) {
	return protocol.HandlerResult{Message: "entry point"}, nil
}
