package protocol

import (
	"context"
	"log/slog"

	"github.com/outflowhq/outflow/pkg/models"
)

// ExecEnv is the environment a node handler executes against. Variables
// are scoped to one execution and owned by the calling worker; handlers
// may mutate them freely without locking.
type ExecEnv struct {
	Variables *models.VariableContext
	Sender    Sender
	ChannelID string
	Logger    *slog.Logger

	// DryRun suppresses external sends and turns delays into no-ops.
	// Used by the interactive flow tester.
	DryRun bool
}

// HandlerResult tells the interpreter how to continue after a node.
type HandlerResult struct {
	// Handle selects the outgoing edge for branching nodes
	// ("true"/"false" on conditions). Empty means follow unlabelled
	// edges.
	Handle string

	// Terminal stops the branch: no successors are enqueued.
	Terminal bool

	Message string
	Data    map[string]any
}

// NodeHandler executes one node type against an execution environment.
// Handlers are built per node instance from the node's config; a missing
// required config key fails handler creation, which the interpreter
// reports as an execution-time error.
type NodeHandler interface {
	ID() string
	Type() models.NodeType
	Execute(ctx context.Context, env *ExecEnv) (HandlerResult, error)
}

// NodeFactory creates node handlers and describes the node type.
type NodeFactory interface {
	// Create builds a handler for one node instance.
	Create(ctx context.Context, node *models.FlowNode) (NodeHandler, error)

	// Type returns the node type this factory serves.
	Type() models.NodeType

	// Name returns the human-readable name for this node type.
	Name() string

	// Description returns a description of what this node does.
	Description() string

	// Schema returns the JSON schema for configuring this node type.
	Schema() map[string]any
}
