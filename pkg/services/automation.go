package services

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/outflowhq/outflow/pkg/dispatch"
	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/persistence"
)

// Automation is the application service for automations and their
// executions. Run-now and cancellation go through the same dispatcher
// the scheduled path uses.
type Automation struct {
	persistence persistence.Persistence
	dispatcher  *dispatch.Dispatcher
	validate    *validator.Validate
}

func NewAutomation(p persistence.Persistence, dispatcher *dispatch.Dispatcher) *Automation {
	return &Automation{
		persistence: p,
		dispatcher:  dispatcher,
		validate:    validator.New(),
	}
}

// Create validates and saves a new automation. The referenced flow must
// exist.
func (s *Automation) Create(ctx context.Context, automation *models.Automation) (*models.Automation, error) {
	if automation == nil {
		return nil, ErrAutomationNil
	}

	automation.ID = uuid.New().String()

	if err := s.check(ctx, automation); err != nil {
		return nil, err
	}

	if err := s.persistence.AutomationRepository().SaveAutomation(ctx, automation); err != nil {
		return nil, fmt.Errorf("failed to create automation: %w", err)
	}

	return automation, nil
}

// Update modifies an existing automation in place.
func (s *Automation) Update(ctx context.Context, id string, automation *models.Automation) (*models.Automation, error) {
	if automation == nil {
		return nil, ErrAutomationNil
	}

	existing, err := s.persistence.AutomationRepository().AutomationByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if existing.IsDeleted() {
		return nil, ErrAutomationDeleted
	}

	automation.ID = id
	automation.CreatedAt = existing.CreatedAt

	if err := s.check(ctx, automation); err != nil {
		return nil, err
	}

	if err := s.persistence.AutomationRepository().SaveAutomation(ctx, automation); err != nil {
		return nil, fmt.Errorf("failed to update automation: %w", err)
	}

	return automation, nil
}

// Delete soft-deletes an automation. Past executions keep their
// reference; future due events for it are skipped by the dispatcher.
func (s *Automation) Delete(ctx context.Context, id string) error {
	return s.persistence.AutomationRepository().DeleteAutomation(ctx, id)
}

// FetchByID retrieves an automation, including soft-deleted ones.
func (s *Automation) FetchByID(ctx context.Context, id string) (*models.Automation, error) {
	return s.persistence.AutomationRepository().AutomationByID(ctx, id)
}

// RunNow starts an immediate execution outside the schedule. The
// execution window is deliberately not checked: an operator pressing
// "run now" means now.
func (s *Automation) RunNow(ctx context.Context, id string) (*models.Execution, error) {
	automation, err := s.persistence.AutomationRepository().AutomationByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if automation.IsDeleted() {
		return nil, ErrAutomationDeleted
	}

	return s.dispatcher.Dispatch(ctx, automation, nil)
}

// CancelExecution requests cancellation of a running execution.
func (s *Automation) CancelExecution(ctx context.Context, executionID string) error {
	execution, err := s.persistence.ExecutionRepository().ExecutionByID(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.IsTerminal() {
		return ErrExecutionTerminal
	}

	return s.dispatcher.Cancel(ctx, executionID)
}

// ExecutionStatus returns an execution together with its per-recipient
// outcome records.
func (s *Automation) ExecutionStatus(ctx context.Context, executionID string) (*models.Execution, []*models.Recipient, error) {
	execution, err := s.persistence.ExecutionRepository().ExecutionByID(ctx, executionID)
	if err != nil {
		return nil, nil, err
	}

	recipients, err := s.persistence.ExecutionRepository().RecipientsByExecution(ctx, executionID)
	if err != nil {
		return nil, nil, err
	}

	return execution, recipients, nil
}

func (s *Automation) check(ctx context.Context, automation *models.Automation) error {
	if err := s.validate.Struct(automation); err != nil {
		return NewValidationError("check", "INVALID_AUTOMATION", err.Error(), ErrInvalidRequest)
	}

	if _, err := s.persistence.FlowRepository().FlowByID(ctx, automation.FlowID); err != nil {
		return NewValidationError("check", "FLOW_NOT_FOUND",
			fmt.Sprintf("flow %s does not exist", automation.FlowID), ErrInvalidRequest)
	}

	return nil
}
