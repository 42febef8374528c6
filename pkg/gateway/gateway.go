// Package gateway is the HTTP client for the messaging gateway. It
// implements the Sender and AudienceResolver protocols: rendered
// payloads are POSTed to the gateway, audiences are fetched from its
// contact store.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/outflowhq/outflow/pkg/protocol"
)

// Client talks to the messaging gateway over HTTP. It honors the
// request context, so dispatch timeouts bound every call.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{},
		logger:  logger.With("module", "gateway"),
	}
}

// Send delivers a rendered payload to a channel.
func (c *Client) Send(ctx context.Context, channelID string, payload protocol.Payload) (protocol.SendResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return protocol.SendResult{}, fmt.Errorf("failed to encode payload: %w", err)
	}

	url := fmt.Sprintf("%s/channels/%s/messages", c.baseURL, channelID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return protocol.SendResult{}, fmt.Errorf("failed to build send request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return protocol.SendResult{}, fmt.Errorf("gateway send failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return protocol.SendResult{}, fmt.Errorf("gateway send returned status %d: %s", resp.StatusCode, string(data))
	}

	var result struct {
		MessageID string `json:"message_id"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return protocol.SendResult{}, fmt.Errorf("failed to decode send response: %w", err)
	}

	return protocol.SendResult{ExternalMessageID: result.MessageID}, nil
}

// Resolve expands an audience specification into concrete recipients.
// Custom lists carry their recipients inline in the audience config;
// everything else queries the gateway's contact store.
func (c *Client) Resolve(ctx context.Context, spec protocol.AudienceSpec) ([]protocol.AudienceMember, error) {
	if spec.Type == "custom-list" {
		return inlineMembers(spec.Config)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/contacts", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build contacts request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway contacts query failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway contacts query returned status %d", resp.StatusCode)
	}

	var members []protocol.AudienceMember
	if err := json.NewDecoder(resp.Body).Decode(&members); err != nil {
		return nil, fmt.Errorf("failed to decode contacts response: %w", err)
	}

	c.logger.DebugContext(ctx, "Audience resolved", "count", len(members))

	return members, nil
}

// inlineMembers reads recipients embedded in the audience config as
// [{"recipient_id": ..., "variables": {...}}].
func inlineMembers(config map[string]any) ([]protocol.AudienceMember, error) {
	raw, ok := config["recipients"]
	if !ok {
		return nil, fmt.Errorf("custom-list audience config is missing 'recipients'")
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode custom-list recipients: %w", err)
	}

	var members []protocol.AudienceMember
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, fmt.Errorf("failed to decode custom-list recipients: %w", err)
	}

	return members, nil
}
