package file

import (
	"context"
	"sync"
	"time"

	"github.com/outflowhq/outflow/pkg/models"
)

// ScheduleRepository stores schedules under <root>/schedules and their
// exceptions under <root>/exceptions.
type ScheduleRepository struct {
	root string
	mu   sync.Mutex
}

func (r *ScheduleRepository) SaveSchedule(_ context.Context, schedule *models.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = time.Now().UTC()
	}

	schedule.UpdatedAt = time.Now().UTC()

	return writeRecord(r.root, "schedules", schedule.ID, schedule)
}

func (r *ScheduleRepository) ScheduleByID(_ context.Context, id string) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := readRecord(r.root, "schedules", id, &schedule); err != nil {
		return nil, err
	}

	return &schedule, nil
}

func (r *ScheduleRepository) ScheduleByAutomation(ctx context.Context, automationID string) (*models.Schedule, error) {
	schedules, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	for _, schedule := range schedules {
		if schedule.AutomationID == automationID {
			return schedule, nil
		}
	}

	return nil, wrapNotFound("schedule for automation", automationID)
}

func (r *ScheduleRepository) DeleteSchedule(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return deleteRecord(r.root, "schedules", id)
}

func (r *ScheduleRepository) ListDueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	schedules, err := r.all(ctx)
	if err != nil {
		return nil, err
	}

	var due []*models.Schedule

	for _, schedule := range schedules {
		if schedule.IsDue(now) {
			due = append(due, schedule)
		}
	}

	return due, nil
}

func (r *ScheduleRepository) SaveException(_ context.Context, exception *models.Exception) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if exception.CreatedAt.IsZero() {
		exception.CreatedAt = time.Now().UTC()
	}

	return writeRecord(r.root, "exceptions", exception.ID, exception)
}

func (r *ScheduleRepository) DeleteException(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return deleteRecord(r.root, "exceptions", id)
}

func (r *ScheduleRepository) ExceptionsBySchedule(_ context.Context, scheduleID string) ([]*models.Exception, error) {
	ids, err := listIDs(r.root, "exceptions")
	if err != nil {
		return nil, err
	}

	var exceptions []*models.Exception

	for _, id := range ids {
		var exception models.Exception
		if err := readRecord(r.root, "exceptions", id, &exception); err != nil {
			return nil, err
		}

		if exception.ScheduleID == scheduleID {
			exceptions = append(exceptions, &exception)
		}
	}

	return exceptions, nil
}

func (r *ScheduleRepository) all(_ context.Context) ([]*models.Schedule, error) {
	ids, err := listIDs(r.root, "schedules")
	if err != nil {
		return nil, err
	}

	schedules := make([]*models.Schedule, 0, len(ids))

	for _, id := range ids {
		var schedule models.Schedule
		if err := readRecord(r.root, "schedules", id, &schedule); err != nil {
			return nil, err
		}

		schedules = append(schedules, &schedule)
	}

	return schedules, nil
}
