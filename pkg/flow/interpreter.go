// Package flow implements the graph interpreter that walks a flow's
// nodes per execution, substitutes variables, evaluates conditions, and
// records a replayable step log.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/protocol"
	"github.com/outflowhq/outflow/pkg/registry"
)

// Options controls one interpreter run.
type Options struct {
	// StrictMode aborts a branch when a send fails. Production
	// dispatch runs strict; reactive test runs may not.
	StrictMode bool

	// DryRun suppresses external sends and makes delays instant.
	DryRun bool

	// EntryNode starts the walk at a specific node. Empty means every
	// trigger node (reactive execution).
	EntryNode string

	// ChannelID is the recipient channel message nodes send to.
	ChannelID string
}

// Result is the outcome of one interpreter run. Logs are populated for
// every run regardless of Success.
type Result struct {
	Success        bool             `json:"success"`
	Logs           []models.StepLog `json:"logs"`
	FinalVariables map[string]any   `json:"final_variables"`
}

type Interpreter struct {
	registry *registry.Registry
	sender   protocol.Sender
	logger   *slog.Logger
}

func NewInterpreter(reg *registry.Registry, sender protocol.Sender, logger *slog.Logger) *Interpreter {
	return &Interpreter{
		registry: reg,
		sender:   sender,
		logger:   logger.With("module", "flow_interpreter"),
	}
}

// Execute walks the flow from its entry node(s) with a FIFO work queue.
// A visited set guards against revisits, so cyclic graphs terminate.
// Each step appends exactly one log entry. Success is false only when a
// strict-mode abort occurred; a condition branch without a matching edge
// simply ends.
func (i *Interpreter) Execute(ctx context.Context, f *models.Flow, vctx *models.VariableContext, opts Options) Result {
	logger := i.logger.With("flow_id", f.ID, "flow_version", f.Version)

	result := Result{Success: true}

	env := &protocol.ExecEnv{
		Variables: vctx,
		Sender:    i.sender,
		ChannelID: opts.ChannelID,
		Logger:    logger,
		DryRun:    opts.DryRun,
	}

	queue := i.entryNodes(f, opts)
	visited := make(map[string]bool, len(f.Nodes))

	for len(queue) > 0 {
		if ctx.Err() != nil {
			result.Success = false
			result.Logs = append(result.Logs, models.StepLog{
				Timestamp: time.Now().UTC(),
				Status:    models.StepStatusError,
				Message:   "execution cancelled: " + ctx.Err().Error(),
			})

			break
		}

		nodeID := queue[0]
		queue = queue[1:]

		if visited[nodeID] {
			continue
		}

		visited[nodeID] = true

		node := f.NodeByID(nodeID)
		if node == nil {
			result.Logs = append(result.Logs, models.StepLog{
				Timestamp: time.Now().UTC(),
				NodeID:    nodeID,
				Status:    models.StepStatusError,
				Message:   "node not found in flow",
			})

			continue
		}

		stepResult, err := i.executeNode(ctx, node, env)

		entry := models.StepLog{
			Timestamp: time.Now().UTC(),
			NodeID:    node.ID,
			NodeName:  node.Name,
			Status:    models.StepStatusSuccess,
			Message:   stepResult.Message,
			Data:      stepResult.Data,
		}

		if err != nil {
			entry.Status = models.StepStatusError
			entry.Message = err.Error()
			result.Logs = append(result.Logs, entry)

			if opts.StrictMode {
				// Abort this branch; already-queued siblings still run.
				result.Success = false

				logger.Error("Node failed in strict mode, aborting branch",
					"node_id", node.ID, "error", err)

				continue
			}

			logger.Warn("Node failed, continuing to successors",
				"node_id", node.ID, "error", err)
		} else {
			result.Logs = append(result.Logs, entry)
		}

		if stepResult.Terminal {
			continue
		}

		for _, edge := range f.OutgoingEdges(node.ID, stepResult.Handle) {
			if !visited[edge.Target] {
				queue = append(queue, edge.Target)
			}
		}
	}

	result.FinalVariables = vctx.Snapshot()

	return result
}

// executeNode resolves the node's handler and runs it. A handler build
// failure (missing required config) is an execution-time error.
func (i *Interpreter) executeNode(ctx context.Context, node *models.FlowNode, env *protocol.ExecEnv) (protocol.HandlerResult, error) {
	handler, err := i.registry.CreateHandler(ctx, node)
	if err != nil {
		return protocol.HandlerResult{}, err
	}

	return handler.Execute(ctx, env)
}

func (i *Interpreter) entryNodes(f *models.Flow, opts Options) []string {
	if opts.EntryNode != "" {
		return []string{opts.EntryNode}
	}

	triggers := f.TriggerNodes()

	ids := make([]string, 0, len(triggers))
	for _, t := range triggers {
		ids = append(ids, t.ID)
	}

	return ids
}
