// Package protocol defines the interfaces the core depends on and the
// contracts for pluggable node handlers.
package protocol

import "context"

// Payload is the rendered message handed to the transport layer.
type Payload struct {
	Kind         string         `json:"kind"` // text, image, template
	Text         string         `json:"text,omitempty"`
	MediaURL     string         `json:"media_url,omitempty"`
	TemplateName string         `json:"template_name,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
}

// SendResult carries the downstream message id for delivery tracking.
type SendResult struct {
	ExternalMessageID string `json:"external_message_id"`
}

// Sender delivers a rendered payload to a channel. Implementations live
// in the transport layer and must honor the context deadline: the
// dispatcher wraps every call in a bounded timeout and treats a deadline
// hit as a retryable failure.
type Sender interface {
	Send(ctx context.Context, channelID string, payload Payload) (SendResult, error)
}
