// Package transfer implements the hand-off node that ends automated
// processing for a conversation.
package transfer

import (
	"context"
	"errors"

	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/protocol"
)

// Node hands the conversation to a human inbox or queue. It is terminal:
// the branch stops here and no successors run.
type Node struct {
	id     string
	target string
}

func NewNode(node *models.FlowNode) (*Node, error) {
	target, ok := node.Config["target"].(string)
	if !ok || target == "" {
		return nil, errors.New("missing required field 'target'")
	}

	return &Node{id: node.ID, target: target}, nil
}

func (n *Node) ID() string {
	return n.id
}

func (n *Node) Type() models.NodeType {
	return models.NodeTypeTransfer
}

func (n *Node) Execute(_ context.Context, env *protocol.ExecEnv) (protocol.HandlerResult, error) {
	env.Variables.Set("transfer.target", n.target)

	return protocol.HandlerResult{
		Terminal: true,
		Message:  "transferred to " + n.target,
		Data:     map[string]any{"target": n.target},
	}, nil
}
