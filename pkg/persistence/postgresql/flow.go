package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/outflowhq/outflow/pkg/models"
)

// FlowRepository stores flow definitions in the flows table, with every
// saved version kept in flow_versions for execution history.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *FlowRepository) SaveFlow(ctx context.Context, flow *models.Flow) error {
	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = transaction.Rollback() }()

	var (
		currentVersion int
		createdAt      time.Time
	)

	err = transaction.QueryRowContext(ctx,
		`SELECT version, created_at FROM flows WHERE id = $1 FOR UPDATE`, flow.ID,
	).Scan(&currentVersion, &createdAt)

	switch {
	case err == nil:
		flow.Version = currentVersion + 1
		flow.CreatedAt = createdAt
	case errors.Is(err, sql.ErrNoRows):
		flow.Version = 1
		if flow.CreatedAt.IsZero() {
			flow.CreatedAt = time.Now().UTC()
		}
	default:
		return fmt.Errorf("failed to query flow version: %w", err)
	}

	flow.UpdatedAt = time.Now().UTC()

	nodes, err := marshalJSON(flow.Nodes)
	if err != nil {
		return err
	}

	edges, err := marshalJSON(flow.Edges)
	if err != nil {
		return err
	}

	_, err = transaction.ExecContext(ctx, `
		INSERT INTO flows (id, name, description, version, nodes, edges, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			version = EXCLUDED.version,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			updated_at = EXCLUDED.updated_at
	`, flow.ID, flow.Name, flow.Description, flow.Version, nodes, edges, flow.CreatedAt, flow.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save flow: %w", err)
	}

	definition, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to encode flow version: %w", err)
	}

	_, err = transaction.ExecContext(ctx, `
		INSERT INTO flow_versions (flow_id, version, definition, created_at)
		VALUES ($1, $2, $3, $4)
	`, flow.ID, flow.Version, definition, flow.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save flow version: %w", err)
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit flow save: %w", err)
	}

	r.logger.DebugContext(ctx, "Flow saved", "flow_id", flow.ID, "version", flow.Version)

	return nil
}

func (r *FlowRepository) FlowByID(ctx context.Context, id string) (*models.Flow, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, version, nodes, edges, created_at, updated_at
		FROM flows
		WHERE id = $1
	`, id)

	flow := &models.Flow{}

	var nodes, edges []byte

	err := row.Scan(&flow.ID, &flow.Name, &flow.Description, &flow.Version,
		&nodes, &edges, &flow.CreatedAt, &flow.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wrapNotFound("flow", id)
		}

		return nil, fmt.Errorf("failed to scan flow: %w", err)
	}

	if err := unmarshalJSON(nodes, &flow.Nodes); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(edges, &flow.Edges); err != nil {
		return nil, err
	}

	return flow, nil
}

func (r *FlowRepository) FlowVersion(ctx context.Context, id string, version int) (*models.Flow, error) {
	var definition []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT definition FROM flow_versions WHERE flow_id = $1 AND version = $2`, id, version,
	).Scan(&definition)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wrapVersionNotFound(id, version)
		}

		return nil, fmt.Errorf("failed to scan flow version: %w", err)
	}

	flow := &models.Flow{}
	if err := json.Unmarshal(definition, flow); err != nil {
		return nil, fmt.Errorf("failed to decode flow version: %w", err)
	}

	return flow, nil
}
