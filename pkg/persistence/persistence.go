// Package persistence defines the storage boundary for flows,
// automations, schedules, and execution history.
package persistence

import (
	"context"
	"time"

	"github.com/outflowhq/outflow/pkg/models"
)

// FlowRepository stores versioned flow definitions. Saving bumps the
// version; executions reference a specific version so history is stable.
type FlowRepository interface {
	SaveFlow(ctx context.Context, flow *models.Flow) error
	FlowByID(ctx context.Context, id string) (*models.Flow, error)
	FlowVersion(ctx context.Context, id string, version int) (*models.Flow, error)
}

type AutomationRepository interface {
	SaveAutomation(ctx context.Context, automation *models.Automation) error
	AutomationByID(ctx context.Context, id string) (*models.Automation, error)

	// DeleteAutomation soft-deletes; executions keep their reference.
	DeleteAutomation(ctx context.Context, id string) error
}

type ScheduleRepository interface {
	SaveSchedule(ctx context.Context, schedule *models.Schedule) error
	ScheduleByID(ctx context.Context, id string) (*models.Schedule, error)
	ScheduleByAutomation(ctx context.Context, automationID string) (*models.Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error

	// ListDueSchedules returns active schedules whose cached
	// next_scheduled_at is at or before now.
	ListDueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error)

	SaveException(ctx context.Context, exception *models.Exception) error
	DeleteException(ctx context.Context, id string) error
	ExceptionsBySchedule(ctx context.Context, scheduleID string) ([]*models.Exception, error)
}

type ExecutionRepository interface {
	SaveExecution(ctx context.Context, execution *models.Execution) error
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	SaveRecipient(ctx context.Context, recipient *models.Recipient) error
	RecipientsByExecution(ctx context.Context, executionID string) ([]*models.Recipient, error)
}

type Persistence interface {
	FlowRepository() FlowRepository
	AutomationRepository() AutomationRepository
	ScheduleRepository() ScheduleRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
