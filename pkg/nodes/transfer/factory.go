package transfer

import (
	"context"

	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/protocol"
)

type Factory struct{}

func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

func (f *Factory) Create(_ context.Context, node *models.FlowNode) (protocol.NodeHandler, error) {
	return NewNode(node)
}

func (f *Factory) Type() models.NodeType {
	return models.NodeTypeTransfer
}

func (f *Factory) Name() string {
	return "Transfer"
}

func (f *Factory) Description() string {
	return "Hands the conversation to a human inbox and ends the automated branch."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"target": map[string]any{
				"type":        "string",
				"description": "Inbox or queue identifier receiving the conversation.",
			},
		},
		"required": []string{"target"},
	}
}
