package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/outflowhq/outflow/pkg/models"
)

// ScheduleRepository stores schedules and their exceptions. The due
// query runs on every scheduler tick and is served by a partial index on
// (active, next_scheduled_at).
type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *ScheduleRepository) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}

	schedule.UpdatedAt = now

	config, err := marshalJSON(schedule.Config)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schedules (
			id, automation_id, recurrence_type, recurrence_config, start_date,
			skip_weekends, skip_holidays, region, active,
			next_scheduled_at, last_fired_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id)
		DO UPDATE SET
			automation_id = EXCLUDED.automation_id,
			recurrence_type = EXCLUDED.recurrence_type,
			recurrence_config = EXCLUDED.recurrence_config,
			start_date = EXCLUDED.start_date,
			skip_weekends = EXCLUDED.skip_weekends,
			skip_holidays = EXCLUDED.skip_holidays,
			region = EXCLUDED.region,
			active = EXCLUDED.active,
			next_scheduled_at = EXCLUDED.next_scheduled_at,
			last_fired_at = EXCLUDED.last_fired_at,
			updated_at = EXCLUDED.updated_at
	`,
		schedule.ID, schedule.AutomationID, schedule.Type, config, schedule.StartDate,
		schedule.SkipWeekends, schedule.SkipHolidays, schedule.Region, schedule.Active,
		schedule.NextScheduledAt, schedule.LastFiredAt, schedule.CreatedAt, schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}

	r.logger.DebugContext(ctx, "Schedule saved", "schedule_id", schedule.ID)

	return nil
}

func (r *ScheduleRepository) ScheduleByID(ctx context.Context, id string) (*models.Schedule, error) {
	row := r.db.QueryRowContext(ctx, scheduleSelect+` WHERE id = $1`, id)

	schedule, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wrapNotFound("schedule", id)
		}

		return nil, err
	}

	return schedule, nil
}

func (r *ScheduleRepository) ScheduleByAutomation(ctx context.Context, automationID string) (*models.Schedule, error) {
	row := r.db.QueryRowContext(ctx, scheduleSelect+` WHERE automation_id = $1 LIMIT 1`, automationID)

	schedule, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wrapNotFound("schedule for automation", automationID)
		}

		return nil, err
	}

	return schedule, nil
}

func (r *ScheduleRepository) DeleteSchedule(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return wrapNotFound("schedule", id)
	}

	return nil
}

func (r *ScheduleRepository) ListDueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	rows, err := r.db.QueryContext(ctx,
		scheduleSelect+` WHERE active = true AND next_scheduled_at <= $1 ORDER BY next_scheduled_at ASC`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var due []*models.Schedule

	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}

		due = append(due, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule rows: %w", err)
	}

	return due, nil
}

func (r *ScheduleRepository) SaveException(ctx context.Context, exception *models.Exception) error {
	if exception.CreatedAt.IsZero() {
		exception.CreatedAt = time.Now().UTC()
	}

	override, err := marshalJSON(exception.Override)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schedule_exceptions (
			id, schedule_id, type, start_date, end_date, override, rescheduled_to, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id)
		DO UPDATE SET
			type = EXCLUDED.type,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			override = EXCLUDED.override,
			rescheduled_to = EXCLUDED.rescheduled_to
	`,
		exception.ID, exception.ScheduleID, exception.Type,
		exception.StartDate, exception.EndDate, override,
		exception.RescheduledTo, exception.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save exception: %w", err)
	}

	return nil
}

func (r *ScheduleRepository) DeleteException(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM schedule_exceptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete exception: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return wrapNotFound("exception", id)
	}

	return nil
}

func (r *ScheduleRepository) ExceptionsBySchedule(ctx context.Context, scheduleID string) ([]*models.Exception, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, schedule_id, type, start_date, end_date, override, rescheduled_to, created_at
		FROM schedule_exceptions
		WHERE schedule_id = $1
		ORDER BY created_at ASC
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query exceptions: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var exceptions []*models.Exception

	for rows.Next() {
		exception := &models.Exception{}

		var override []byte

		err := rows.Scan(
			&exception.ID, &exception.ScheduleID, &exception.Type,
			&exception.StartDate, &exception.EndDate, &override,
			&exception.RescheduledTo, &exception.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exception: %w", err)
		}

		if err := unmarshalJSON(override, &exception.Override); err != nil {
			return nil, err
		}

		exceptions = append(exceptions, exception)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exception rows: %w", err)
	}

	return exceptions, nil
}

const scheduleSelect = `
	SELECT id, automation_id, recurrence_type, recurrence_config, start_date,
		skip_weekends, skip_holidays, region, active,
		next_scheduled_at, last_fired_at, created_at, updated_at
	FROM schedules
`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*models.Schedule, error) {
	schedule := &models.Schedule{}

	var config []byte

	err := row.Scan(
		&schedule.ID, &schedule.AutomationID, &schedule.Type, &config, &schedule.StartDate,
		&schedule.SkipWeekends, &schedule.SkipHolidays, &schedule.Region, &schedule.Active,
		&schedule.NextScheduledAt, &schedule.LastFiredAt, &schedule.CreatedAt, &schedule.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	if err := unmarshalJSON(config, &schedule.Config); err != nil {
		return nil, err
	}

	return schedule, nil
}
