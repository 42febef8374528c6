package registry

import (
	"log/slog"

	"github.com/outflowhq/outflow/pkg/nodes/condition"
	"github.com/outflowhq/outflow/pkg/nodes/delay"
	"github.com/outflowhq/outflow/pkg/nodes/message"
	"github.com/outflowhq/outflow/pkg/nodes/transfer"
	"github.com/outflowhq/outflow/pkg/nodes/trigger"
)

// NewDefaultRegistry returns a registry with every built-in node type.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)

	r.Register(trigger.NewFactory())
	r.Register(message.NewTextFactory())
	r.Register(message.NewImageFactory())
	r.Register(message.NewTemplateFactory())
	r.Register(condition.NewFactory())
	r.Register(delay.NewFactory())
	r.Register(transfer.NewFactory())

	return r
}
