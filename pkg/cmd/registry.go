// Package cmd provides common initialization functions for the
// command-line binaries.
package cmd

import (
	"log/slog"

	"github.com/outflowhq/outflow/pkg/registry"
)

// NewRegistry builds the node registry every binary shares.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	return registry.NewDefaultRegistry(logger)
}
