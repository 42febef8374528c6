// Package delay implements the delay node, which suspends only the
// current execution's worker for a configured duration.
package delay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/protocol"
)

type Node struct {
	id       string
	duration time.Duration
}

func NewNode(node *models.FlowNode) (*Node, error) {
	duration, err := parseDuration(node.Config)
	if err != nil {
		return nil, err
	}

	return &Node{id: node.ID, duration: duration}, nil
}

// parseDuration accepts either "duration" as a Go duration string or
// "seconds" as a number.
func parseDuration(config map[string]any) (time.Duration, error) {
	if raw, ok := config["duration"].(string); ok {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %w", err)
		}

		return d, nil
	}

	switch seconds := config["seconds"].(type) {
	case float64:
		return time.Duration(seconds * float64(time.Second)), nil
	case int:
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, errors.New("missing required field 'duration' or 'seconds'")
}

func (n *Node) ID() string {
	return n.id
}

func (n *Node) Type() models.NodeType {
	return models.NodeTypeDelay
}

// Execute sleeps for the configured duration, waking early on context
// cancellation. Dry-run mode skips the wait entirely so test suites stay
// fast.
func (n *Node) Execute(ctx context.Context, env *protocol.ExecEnv) (protocol.HandlerResult, error) {
	if env.DryRun {
		return protocol.HandlerResult{
			Message: "dry-run: delay skipped",
			Data:    map[string]any{"duration": n.duration.String()},
		}, nil
	}

	timer := time.NewTimer(n.duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return protocol.HandlerResult{}, ctx.Err()
	case <-timer.C:
	}

	return protocol.HandlerResult{
		Message: "waited " + n.duration.String(),
		Data:    map[string]any{"duration": n.duration.String()},
	}, nil
}
