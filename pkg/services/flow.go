package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/outflowhq/outflow/pkg/flow"
	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/persistence"
	"github.com/outflowhq/outflow/pkg/registry"
)

// Flow is the application service for flow definitions: structural
// validation, per-node config validation, versioned saves, and the
// interactive dry-run tester.
type Flow struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	interpreter *flow.Interpreter
	validate    *validator.Validate
}

// NewFlow creates a new flow service. The interpreter it owns runs
// dry-run only, so it carries no sender.
func NewFlow(p persistence.Persistence, reg *registry.Registry, logger *slog.Logger) *Flow {
	return &Flow{
		persistence: p,
		registry:    reg,
		interpreter: flow.NewInterpreter(reg, nil, logger),
		validate:    validator.New(),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Flow) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := s.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create validates and saves a new flow as version 1. Returned warnings
// (unreachable nodes) do not block the save.
func (s *Flow) Create(ctx context.Context, flowDef *models.Flow) (*models.Flow, []string, error) {
	if flowDef == nil {
		return nil, nil, ErrFlowNil
	}

	flowDef.ID = uuid.New().String()

	warnings, err := s.check(flowDef)
	if err != nil {
		return nil, nil, err
	}

	if err := s.persistence.FlowRepository().SaveFlow(ctx, flowDef); err != nil {
		return nil, nil, fmt.Errorf("failed to create flow: %w", err)
	}

	return flowDef, warnings, nil
}

// Update validates and saves a new version of an existing flow.
// Executions referencing earlier versions are unaffected.
func (s *Flow) Update(ctx context.Context, id string, flowDef *models.Flow) (*models.Flow, []string, error) {
	if flowDef == nil {
		return nil, nil, ErrFlowNil
	}

	if _, err := s.persistence.FlowRepository().FlowByID(ctx, id); err != nil {
		return nil, nil, err
	}

	flowDef.ID = id

	warnings, err := s.check(flowDef)
	if err != nil {
		return nil, nil, err
	}

	if err := s.persistence.FlowRepository().SaveFlow(ctx, flowDef); err != nil {
		return nil, nil, fmt.Errorf("failed to update flow: %w", err)
	}

	return flowDef, warnings, nil
}

// FetchByID retrieves the current version of a flow.
func (s *Flow) FetchByID(ctx context.Context, id string) (*models.Flow, error) {
	return s.persistence.FlowRepository().FlowByID(ctx, id)
}

// FetchVersion retrieves a pinned historical version of a flow.
func (s *Flow) FetchVersion(ctx context.Context, id string, version int) (*models.Flow, error) {
	return s.persistence.FlowRepository().FlowVersion(ctx, id, version)
}

// TestRequest drives one dry-run of a flow with caller-supplied
// variables standing in for a real recipient.
type TestRequest struct {
	FlowID    string         `json:"flow_id"   validate:"required"`
	Variables map[string]any `json:"variables"`
	EntryNode string         `json:"entry_node"`
}

// Test executes a flow in dry-run mode: no external sends, instant
// delays, full step log. The tester and production dispatch share one
// interpreter, so what the tester shows is what a real run does.
func (s *Flow) Test(ctx context.Context, req TestRequest) (*flow.Result, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("Test", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	flowDef, err := s.persistence.FlowRepository().FlowByID(ctx, req.FlowID)
	if err != nil {
		return nil, err
	}

	vctx := models.NewVariableContext()
	vctx.SeedSystem(time.Now().UTC())
	vctx.SeedRecipient(req.Variables)

	result := s.interpreter.Execute(ctx, flowDef, vctx, flow.Options{
		StrictMode: false,
		DryRun:     true,
		EntryNode:  req.EntryNode,
	})

	return &result, nil
}

// check runs struct validation, structural validation, and per-node
// config validation. Structural errors are terminal; reachability issues
// come back as warnings.
func (s *Flow) check(flowDef *models.Flow) ([]string, error) {
	if err := s.validate.Struct(flowDef); err != nil {
		return nil, NewValidationError("check", "INVALID_FLOW", err.Error(), ErrInvalidRequest)
	}

	warnings, err := flowDef.Validate()
	if err != nil {
		return nil, NewValidationError("check", "INVALID_GRAPH", err.Error(), ErrInvalidRequest)
	}

	if err := s.registry.ValidateFlow(flowDef); err != nil {
		return nil, NewValidationError("check", "INVALID_NODE_CONFIG", err.Error(), ErrInvalidRequest)
	}

	return warnings, nil
}
