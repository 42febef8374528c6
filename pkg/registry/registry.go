// Package registry maps node types to their handler factories and
// validates node configuration against each factory's schema.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/protocol"
)

type Registry struct {
	logger    *slog.Logger
	factories map[models.NodeType]protocol.NodeFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[models.NodeType]protocol.NodeFactory),
	}
}

func (r *Registry) Register(factory protocol.NodeFactory) {
	r.factories[factory.Type()] = factory
}

// CreateHandler builds the handler for a node instance. Unknown node
// types and missing required config keys surface here, at execution time.
func (r *Registry) CreateHandler(ctx context.Context, node *models.FlowNode) (protocol.NodeHandler, error) {
	factory, ok := r.factories[node.Type]
	if !ok {
		return nil, fmt.Errorf("node type '%s' not registered", node.Type)
	}

	return factory.Create(ctx, node)
}

// ValidateConfig checks a node's config against its factory schema.
// Called at save time so configuration errors never reach the runtime.
func (r *Registry) ValidateConfig(node *models.FlowNode) error {
	factory, ok := r.factories[node.Type]
	if !ok {
		return fmt.Errorf("node type '%s' not registered", node.Type)
	}

	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	config := node.Config
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("schema validation for node %s: %w", node.ID, err)
	}

	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("invalid config for node %s: %s", node.ID, errs[0].String())
		}

		return fmt.Errorf("invalid config for node %s", node.ID)
	}

	return nil
}

// ValidateFlow validates every node config in a flow.
func (r *Registry) ValidateFlow(flow *models.Flow) error {
	for _, node := range flow.Nodes {
		if err := r.ValidateConfig(node); err != nil {
			return err
		}
	}

	return nil
}

// Types returns the registered node types.
func (r *Registry) Types() []models.NodeType {
	types := make([]models.NodeType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}

	return types
}
