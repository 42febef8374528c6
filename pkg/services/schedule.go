package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/persistence"
	"github.com/outflowhq/outflow/pkg/recurrence"
	"github.com/outflowhq/outflow/pkg/scheduler"
)

const (
	defaultPreviewHorizon = 365 * 24 * time.Hour
	maxPreviewCount       = 100
)

// Schedule is the application service for schedules and their
// exceptions. Every mutation goes through the schedule manager's
// recompute so the cached next occurrence never drifts from the rule.
type Schedule struct {
	persistence persistence.Persistence
	manager     *scheduler.Manager
	calculator  *recurrence.Calculator
	validate    *validator.Validate
}

func NewSchedule(p persistence.Persistence, manager *scheduler.Manager, calculator *recurrence.Calculator) *Schedule {
	return &Schedule{
		persistence: p,
		manager:     manager,
		calculator:  calculator,
		validate:    validator.New(),
	}
}

// Create validates a new schedule, computes its first occurrence, and
// saves it.
func (s *Schedule) Create(ctx context.Context, schedule *models.Schedule) (*models.Schedule, error) {
	if schedule == nil {
		return nil, ErrScheduleNil
	}

	schedule.ID = uuid.New().String()
	schedule.Active = true

	if err := s.check(ctx, schedule); err != nil {
		return nil, err
	}

	if err := s.manager.Recompute(ctx, schedule, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}

	return schedule, nil
}

// Update modifies a schedule and refreshes its cached next occurrence.
func (s *Schedule) Update(ctx context.Context, id string, schedule *models.Schedule) (*models.Schedule, error) {
	if schedule == nil {
		return nil, ErrScheduleNil
	}

	existing, err := s.persistence.ScheduleRepository().ScheduleByID(ctx, id)
	if err != nil {
		return nil, err
	}

	schedule.ID = id
	schedule.CreatedAt = existing.CreatedAt
	schedule.LastFiredAt = existing.LastFiredAt

	if err := s.check(ctx, schedule); err != nil {
		return nil, err
	}

	if err := s.manager.Recompute(ctx, schedule, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to update schedule: %w", err)
	}

	return schedule, nil
}

// Delete removes a schedule and stops its future firings.
func (s *Schedule) Delete(ctx context.Context, id string) error {
	return s.persistence.ScheduleRepository().DeleteSchedule(ctx, id)
}

// FetchByID retrieves a schedule.
func (s *Schedule) FetchByID(ctx context.Context, id string) (*models.Schedule, error) {
	return s.persistence.ScheduleRepository().ScheduleByID(ctx, id)
}

// FetchByAutomation retrieves the schedule attached to an automation.
func (s *Schedule) FetchByAutomation(ctx context.Context, automationID string) (*models.Schedule, error) {
	return s.persistence.ScheduleRepository().ScheduleByAutomation(ctx, automationID)
}

// AddException attaches an exception to a schedule and recomputes the
// cached next occurrence, since the exception may skip or move it.
func (s *Schedule) AddException(ctx context.Context, exception *models.Exception) (*models.Exception, error) {
	if exception == nil {
		return nil, ErrScheduleNil
	}

	exception.ID = uuid.New().String()
	exception.CreatedAt = time.Now().UTC()

	if err := exception.Validate(); err != nil {
		return nil, NewValidationError("AddException", "INVALID_EXCEPTION", err.Error(), ErrInvalidRequest)
	}

	schedule, err := s.persistence.ScheduleRepository().ScheduleByID(ctx, exception.ScheduleID)
	if err != nil {
		return nil, err
	}

	if err := s.persistence.ScheduleRepository().SaveException(ctx, exception); err != nil {
		return nil, fmt.Errorf("failed to save exception: %w", err)
	}

	if err := s.manager.Recompute(ctx, schedule, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to recompute schedule: %w", err)
	}

	return exception, nil
}

// RemoveException detaches an exception and recomputes the schedule it
// belonged to.
func (s *Schedule) RemoveException(ctx context.Context, scheduleID, exceptionID string) error {
	schedule, err := s.persistence.ScheduleRepository().ScheduleByID(ctx, scheduleID)
	if err != nil {
		return err
	}

	if err := s.persistence.ScheduleRepository().DeleteException(ctx, exceptionID); err != nil {
		return err
	}

	return s.manager.Recompute(ctx, schedule, time.Now().UTC())
}

// Preview returns the schedule's next occurrence times through the same
// calculator path production firing uses.
func (s *Schedule) Preview(ctx context.Context, scheduleID string, count int) ([]time.Time, error) {
	if count <= 0 || count > maxPreviewCount {
		return nil, ErrInvalidPreviewRequest
	}

	schedule, err := s.persistence.ScheduleRepository().ScheduleByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	exceptions, err := s.persistence.ScheduleRepository().ExceptionsBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	return s.calculator.Preview(schedule, time.Now().UTC(), count, defaultPreviewHorizon, exceptions), nil
}

func (s *Schedule) check(ctx context.Context, schedule *models.Schedule) error {
	if err := s.validate.Struct(schedule); err != nil {
		return NewValidationError("check", "INVALID_SCHEDULE", err.Error(), ErrInvalidRequest)
	}

	if err := schedule.Validate(); err != nil {
		return NewValidationError("check", "INVALID_RECURRENCE", err.Error(), ErrInvalidRequest)
	}

	if _, err := s.persistence.AutomationRepository().AutomationByID(ctx, schedule.AutomationID); err != nil {
		return NewValidationError("check", "AUTOMATION_NOT_FOUND",
			fmt.Sprintf("automation %s does not exist", schedule.AutomationID), ErrInvalidRequest)
	}

	return nil
}
