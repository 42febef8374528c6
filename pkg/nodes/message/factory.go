package message

import (
	"context"

	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/protocol"
)

// Factory creates message node handlers for one of the three message
// node types.
type Factory struct {
	kind models.NodeType
}

func NewTextFactory() protocol.NodeFactory {
	return &Factory{kind: models.NodeTypeMessageText}
}

func NewImageFactory() protocol.NodeFactory {
	return &Factory{kind: models.NodeTypeMessageImage}
}

func NewTemplateFactory() protocol.NodeFactory {
	return &Factory{kind: models.NodeTypeMessageTemplate}
}

func (f *Factory) Create(_ context.Context, node *models.FlowNode) (protocol.NodeHandler, error) {
	return NewNode(node)
}

func (f *Factory) Type() models.NodeType {
	return f.kind
}

func (f *Factory) Name() string {
	switch f.kind {
	case models.NodeTypeMessageImage:
		return "Image Message"
	case models.NodeTypeMessageTemplate:
		return "Template Message"
	default:
		return "Text Message"
	}
}

func (f *Factory) Description() string {
	return "Renders a message from the variable context and sends it through the configured channel."
}

func (f *Factory) Schema() map[string]any {
	switch f.kind {
	case models.NodeTypeMessageImage:
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "Image URL. Supports {{variable}} tokens.",
				},
				"caption": map[string]any{
					"type":        "string",
					"description": "Optional caption. Supports {{variable}} tokens.",
				},
			},
			"required": []string{"url"},
		}
	case models.NodeTypeMessageTemplate:
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"template_name": map[string]any{
					"type":        "string",
					"description": "Name of the pre-approved message template.",
				},
				"parameters": map[string]any{
					"type":        "object",
					"description": "Template parameters. String values support {{variable}} tokens.",
				},
			},
			"required": []string{"template_name"},
		}
	default:
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{
					"type":        "string",
					"description": "Message body. Supports {{variable}} tokens.",
					"examples":    []string{"Hi {{contact.name}}, your order {{order.id}} shipped."},
				},
			},
			"required": []string{"text"},
		}
	}
}
