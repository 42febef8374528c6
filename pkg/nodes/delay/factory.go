package delay

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
	return models.NodeTypeDelay
}

func (f *Factory) Name() string {
	return "Delay"
}

func (f *Factory) Description() string {
	return "Pauses the current execution for a configured duration before continuing."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration": map[string]any{
				"type":        "string",
				"description": "Go duration string, e.g. '30s' or '5m'.",
			},
			"seconds": map[string]any{
				"type":        "number",
				"description": "Delay in seconds. Alternative to 'duration'.",
			},
		},
		"anyOf": []map[string]any{
			{"required": []string{"duration"}},
			{"required": []string{"seconds"}},
		},
	}
}
