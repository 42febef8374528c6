// Package message implements the message-sending node handlers
// (text, image, and pre-approved template messages).
package message

import (
	"context"
	"errors"
	"fmt"

	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/protocol"
	"github.com/outflowhq/outflow/pkg/template"
)

// Node sends one rendered message through the external sender. The same
// handler backs the text, image, and template node types; kind selects
// which payload is built.
type Node struct {
	id   string
	kind models.NodeType

	text         string
	mediaURL     string
	caption      string
	templateName string
	parameters   map[string]any
}

func NewNode(node *models.FlowNode) (*Node, error) {
	n := &Node{id: node.ID, kind: node.Type}

	switch node.Type {
	case models.NodeTypeMessageText:
		text, ok := node.Config["text"].(string)
		if !ok {
			return nil, errors.New("missing required field 'text'")
		}

		n.text = text
	case models.NodeTypeMessageImage:
		url, ok := node.Config["url"].(string)
		if !ok {
			return nil, errors.New("missing required field 'url'")
		}

		n.mediaURL = url
		n.caption, _ = node.Config["caption"].(string)
	case models.NodeTypeMessageTemplate:
		name, ok := node.Config["template_name"].(string)
		if !ok {
			return nil, errors.New("missing required field 'template_name'")
		}

		n.templateName = name
		n.parameters, _ = node.Config["parameters"].(map[string]any)
	default:
		return nil, fmt.Errorf("unsupported message node type '%s'", node.Type)
	}

	return n, nil
}

func (n *Node) ID() string {
	return n.id
}

func (n *Node) Type() models.NodeType {
	return n.kind
}

// Execute renders the payload from the variable context and hands it to
// the sender. In dry-run mode the send is skipped and the rendered
// payload is returned in the log data instead.
func (n *Node) Execute(ctx context.Context, env *protocol.ExecEnv) (protocol.HandlerResult, error) {
	payload := n.render(env.Variables)

	if env.DryRun {
		return protocol.HandlerResult{
			Message: "dry-run: message not sent",
			Data:    map[string]any{"payload": payload},
		}, nil
	}

	result, err := env.Sender.Send(ctx, env.ChannelID, payload)
	if err != nil {
		return protocol.HandlerResult{}, fmt.Errorf("send failed: %w", err)
	}

	env.Variables.Set("message.last_external_id", result.ExternalMessageID)

	return protocol.HandlerResult{
		Message: "message sent",
		Data:    map[string]any{"external_message_id": result.ExternalMessageID},
	}, nil
}

func (n *Node) render(vctx *models.VariableContext) protocol.Payload {
	switch n.kind {
	case models.NodeTypeMessageImage:
		return protocol.Payload{
			Kind:     "image",
			MediaURL: template.Render(n.mediaURL, vctx),
			Text:     template.Render(n.caption, vctx),
		}
	case models.NodeTypeMessageTemplate:
		params := make(map[string]any, len(n.parameters))
		for k, v := range n.parameters {
			if s, ok := v.(string); ok {
				params[k] = template.Render(s, vctx)
			} else {
				params[k] = v
			}
		}

		return protocol.Payload{
			Kind:         "template",
			TemplateName: n.templateName,
			Parameters:   params,
		}
	default:
		return protocol.Payload{
			Kind: "text",
			Text: template.Render(n.text, vctx),
		}
	}
}
