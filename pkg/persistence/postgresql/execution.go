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

// ExecutionRepository stores execution runs and their per-recipient
// outcome records.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *ExecutionRepository) SaveExecution(ctx context.Context, execution *models.Execution) error {
	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO executions (
			id, automation_id, flow_id, flow_version, status,
			total_recipients, sent_count, delivered_count, failed_count,
			started_at, completed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id)
		DO UPDATE SET
			status = EXCLUDED.status,
			total_recipients = EXCLUDED.total_recipients,
			sent_count = EXCLUDED.sent_count,
			delivered_count = EXCLUDED.delivered_count,
			failed_count = EXCLUDED.failed_count,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`,
		execution.ID, execution.AutomationID, execution.FlowID, execution.FlowVersion,
		execution.Status, execution.TotalRecipients, execution.SentCount,
		execution.DeliveredCount, execution.FailedCount,
		execution.StartedAt, execution.CompletedAt, execution.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	r.logger.DebugContext(ctx, "Execution saved", "execution_id", execution.ID, "status", execution.Status)

	return nil
}

func (r *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, automation_id, flow_id, flow_version, status,
			total_recipients, sent_count, delivered_count, failed_count,
			started_at, completed_at, created_at
		FROM executions
		WHERE id = $1
	`, id)

	execution := &models.Execution{}

	err := row.Scan(
		&execution.ID, &execution.AutomationID, &execution.FlowID, &execution.FlowVersion,
		&execution.Status, &execution.TotalRecipients, &execution.SentCount,
		&execution.DeliveredCount, &execution.FailedCount,
		&execution.StartedAt, &execution.CompletedAt, &execution.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wrapNotFound("execution", id)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) SaveRecipient(ctx context.Context, recipient *models.Recipient) error {
	now := time.Now().UTC()
	if recipient.CreatedAt.IsZero() {
		recipient.CreatedAt = now
	}

	recipient.UpdatedAt = now

	variables, err := marshalJSON(recipient.Variables)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO execution_recipients (
			id, execution_id, channel_id, variables, status, retry_count,
			error_message, external_message_id, created_at, updated_at, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id)
		DO UPDATE SET
			variables = EXCLUDED.variables,
			status = EXCLUDED.status,
			retry_count = EXCLUDED.retry_count,
			error_message = EXCLUDED.error_message,
			external_message_id = EXCLUDED.external_message_id,
			updated_at = EXCLUDED.updated_at,
			sent_at = EXCLUDED.sent_at
	`,
		recipient.ID, recipient.ExecutionID, recipient.ChannelID, variables,
		recipient.Status, recipient.RetryCount, recipient.ErrorMessage,
		recipient.ExternalMessageID, recipient.CreatedAt, recipient.UpdatedAt, recipient.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save recipient: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) RecipientsByExecution(ctx context.Context, executionID string) ([]*models.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, execution_id, channel_id, variables, status, retry_count,
			error_message, external_message_id, created_at, updated_at, sent_at
		FROM execution_recipients
		WHERE execution_id = $1
		ORDER BY created_at ASC
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipients: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var recipients []*models.Recipient

	for rows.Next() {
		recipient := &models.Recipient{}

		var variables []byte

		err := rows.Scan(
			&recipient.ID, &recipient.ExecutionID, &recipient.ChannelID, &variables,
			&recipient.Status, &recipient.RetryCount, &recipient.ErrorMessage,
			&recipient.ExternalMessageID, &recipient.CreatedAt, &recipient.UpdatedAt, &recipient.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}

		if err := unmarshalJSON(variables, &recipient.Variables); err != nil {
			return nil, err
		}

		recipients = append(recipients, recipient)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recipient rows: %w", err)
	}

	return recipients, nil
}
