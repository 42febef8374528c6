package condition

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
	return models.NodeTypeCondition
}

func (f *Factory) Name() string {
	return "Condition"
}

func (f *Factory) Description() string {
	return "Evaluates a boolean expression against the variable context and routes to the true or false edge."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Boolean expression over context variables. Comparisons and and/or/not only.",
				"examples": []string{
					`contact.age >= 18`,
					`contact.plan == "premium" and contact.opted_in`,
					`order.total > 100 or contact.vip`,
				},
			},
		},
		"required": []string{"expression"},
	}
}
