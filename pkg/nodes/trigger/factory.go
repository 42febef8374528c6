package trigger

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
	return models.NodeTypeTrigger
}

func (f *Factory) Name() string {
	return "Trigger"
}

func (f *Factory) Description() string {
	return "Marks a flow entry point. Execution passes straight through."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"event": map[string]any{
				"type":        "string",
				"description": "Optional event name this entry point reacts to.",
			},
		},
	}
}
