// Package postgresql provides PostgreSQL-backed persistence. Graph and
// map-valued fields are stored as JSONB; everything the scheduler and
// dispatcher query on is a plain column with an index.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/outflowhq/outflow/pkg/persistence"
	"github.com/outflowhq/outflow/pkg/persistence/sqlbase"

	_ "github.com/lib/pq"
)

// Persistence implements persistence.Persistence on PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	flowRepo       *FlowRepository
	automationRepo *AutomationRepository
	scheduleRepo   *ScheduleRepository
	executionRepo  *ExecutionRepository
}

// NewPersistence connects to the database and runs pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	repoLogger := logger.With("component", "postgres_persistence")

	return &Persistence{
		db:             database,
		logger:         repoLogger,
		flowRepo:       &FlowRepository{db: database, logger: repoLogger},
		automationRepo: &AutomationRepository{db: database, logger: repoLogger},
		scheduleRepo:   &ScheduleRepository{db: database, logger: repoLogger},
		executionRepo:  &ExecutionRepository{db: database, logger: repoLogger},
	}, nil
}

func (p *Persistence) FlowRepository() persistence.FlowRepository {
	return p.flowRepo
}

func (p *Persistence) AutomationRepository() persistence.AutomationRepository {
	return p.automationRepo
}

func (p *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return p.scheduleRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

func (p *Persistence) Close(ctx context.Context) error {
	if p.db == nil {
		return nil
	}

	if err := p.db.Close(); err != nil {
		p.logger.ErrorContext(ctx, "Failed to close database connection", "error", err)

		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}

// marshalJSON encodes a value for a JSONB column. Nil-able inputs encode
// as SQL NULL rather than the JSON null literal.
func marshalJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSONB value: %w", err)
	}

	return data, nil
}

// unmarshalJSON decodes a JSONB column into out, treating NULL as empty.
func unmarshalJSON(data []byte, out any) error {
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode JSONB value: %w", err)
	}

	return nil
}

func wrapNotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, persistence.ErrNotFound)
}

func wrapVersionNotFound(id string, version int) error {
	return fmt.Errorf("flow %s version %d: %w", id, version, persistence.ErrVersionNotFound)
}

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE flows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				version INTEGER NOT NULL,
				nodes JSONB,
				edges JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE flow_versions (
				flow_id VARCHAR(255) NOT NULL,
				version INTEGER NOT NULL,
				definition JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (flow_id, version)
			);

			CREATE TABLE automations (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				flow_id VARCHAR(255) NOT NULL,
				audience_type VARCHAR(64) NOT NULL,
				audience_config JSONB,
				variable_mapping JSONB,
				rate_limit_per_hour INTEGER NOT NULL DEFAULT 0,
				max_concurrent_executions INTEGER NOT NULL DEFAULT 0,
				retry_failed BOOLEAN NOT NULL DEFAULT false,
				max_retries INTEGER NOT NULL DEFAULT 0,
				window_start VARCHAR(5) NOT NULL DEFAULT '',
				window_end VARCHAR(5) NOT NULL DEFAULT '',
				timezone VARCHAR(64) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_automations_flow_id ON automations(flow_id);

			CREATE TABLE schedules (
				id VARCHAR(255) PRIMARY KEY,
				automation_id VARCHAR(255) NOT NULL,
				recurrence_type VARCHAR(32) NOT NULL,
				recurrence_config JSONB,
				start_date TIMESTAMP WITH TIME ZONE NOT NULL,
				skip_weekends BOOLEAN NOT NULL DEFAULT false,
				skip_holidays BOOLEAN NOT NULL DEFAULT false,
				region VARCHAR(8) NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT true,
				next_scheduled_at TIMESTAMP WITH TIME ZONE,
				last_fired_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_schedules_automation_id ON schedules(automation_id);
			CREATE INDEX idx_schedules_due ON schedules(active, next_scheduled_at) WHERE active = true;

			CREATE TABLE schedule_exceptions (
				id VARCHAR(255) PRIMARY KEY,
				schedule_id VARCHAR(255) NOT NULL,
				type VARCHAR(32) NOT NULL,
				start_date TIMESTAMP WITH TIME ZONE NOT NULL,
				end_date TIMESTAMP WITH TIME ZONE NOT NULL,
				override JSONB,
				rescheduled_to TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_schedule_exceptions_schedule_id ON schedule_exceptions(schedule_id);

			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				automation_id VARCHAR(255) NOT NULL,
				flow_id VARCHAR(255) NOT NULL,
				flow_version INTEGER NOT NULL,
				status VARCHAR(32) NOT NULL,
				total_recipients INTEGER NOT NULL DEFAULT 0,
				sent_count INTEGER NOT NULL DEFAULT 0,
				delivered_count INTEGER NOT NULL DEFAULT 0,
				failed_count INTEGER NOT NULL DEFAULT 0,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_executions_automation_id ON executions(automation_id);

			CREATE TABLE execution_recipients (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				channel_id VARCHAR(255) NOT NULL,
				variables JSONB,
				status VARCHAR(32) NOT NULL,
				retry_count INTEGER NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT '',
				external_message_id VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				sent_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_execution_recipients_execution_id ON execution_recipients(execution_id);
		`,
	}
}
