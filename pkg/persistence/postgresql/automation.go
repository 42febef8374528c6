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

// AutomationRepository stores automations. Deletion is soft: deleted_at
// is stamped and the row stays readable for execution history.
type AutomationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *AutomationRepository) SaveAutomation(ctx context.Context, automation *models.Automation) error {
	now := time.Now().UTC()
	if automation.CreatedAt.IsZero() {
		automation.CreatedAt = now
	}

	automation.UpdatedAt = now

	audienceConfig, err := marshalJSON(automation.AudienceConfig)
	if err != nil {
		return err
	}

	variableMapping, err := marshalJSON(automation.VariableMapping)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO automations (
			id, name, flow_id, audience_type, audience_config, variable_mapping,
			rate_limit_per_hour, max_concurrent_executions, retry_failed, max_retries,
			window_start, window_end, timezone, created_at, updated_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			flow_id = EXCLUDED.flow_id,
			audience_type = EXCLUDED.audience_type,
			audience_config = EXCLUDED.audience_config,
			variable_mapping = EXCLUDED.variable_mapping,
			rate_limit_per_hour = EXCLUDED.rate_limit_per_hour,
			max_concurrent_executions = EXCLUDED.max_concurrent_executions,
			retry_failed = EXCLUDED.retry_failed,
			max_retries = EXCLUDED.max_retries,
			window_start = EXCLUDED.window_start,
			window_end = EXCLUDED.window_end,
			timezone = EXCLUDED.timezone,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`,
		automation.ID, automation.Name, automation.FlowID, automation.AudienceType,
		audienceConfig, variableMapping,
		automation.RateLimitPerHour, automation.MaxConcurrentExecutions,
		automation.RetryFailed, automation.MaxRetries,
		automation.ExecutionWindow.Start, automation.ExecutionWindow.End, automation.Timezone,
		automation.CreatedAt, automation.UpdatedAt, automation.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save automation: %w", err)
	}

	r.logger.DebugContext(ctx, "Automation saved", "automation_id", automation.ID)

	return nil
}

func (r *AutomationRepository) AutomationByID(ctx context.Context, id string) (*models.Automation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, flow_id, audience_type, audience_config, variable_mapping,
			rate_limit_per_hour, max_concurrent_executions, retry_failed, max_retries,
			window_start, window_end, timezone, created_at, updated_at, deleted_at
		FROM automations
		WHERE id = $1
	`, id)

	automation := &models.Automation{}

	var audienceConfig, variableMapping []byte

	err := row.Scan(
		&automation.ID, &automation.Name, &automation.FlowID, &automation.AudienceType,
		&audienceConfig, &variableMapping,
		&automation.RateLimitPerHour, &automation.MaxConcurrentExecutions,
		&automation.RetryFailed, &automation.MaxRetries,
		&automation.ExecutionWindow.Start, &automation.ExecutionWindow.End, &automation.Timezone,
		&automation.CreatedAt, &automation.UpdatedAt, &automation.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wrapNotFound("automation", id)
		}

		return nil, fmt.Errorf("failed to scan automation: %w", err)
	}

	if err := unmarshalJSON(audienceConfig, &automation.AudienceConfig); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(variableMapping, &automation.VariableMapping); err != nil {
		return nil, err
	}

	return automation, nil
}

func (r *AutomationRepository) DeleteAutomation(ctx context.Context, id string) error {
	now := time.Now().UTC()

	result, err := r.db.ExecContext(ctx,
		`UPDATE automations SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, now,
	)
	if err != nil {
		return fmt.Errorf("failed to delete automation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return wrapNotFound("automation", id)
	}

	r.logger.DebugContext(ctx, "Automation soft-deleted", "automation_id", id)

	return nil
}
