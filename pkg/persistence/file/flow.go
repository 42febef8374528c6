package file

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/outflowhq/outflow/pkg/models"
)

// FlowRepository stores flow definitions under <root>/flows, with every
// saved version kept under <root>/flows/versions for execution history.
type FlowRepository struct {
	root string
	mu   sync.Mutex
}

func (r *FlowRepository) SaveFlow(_ context.Context, flow *models.Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var existing models.Flow

	err := readRecord(r.root, "flows", flow.ID, &existing)

	switch {
	case err == nil:
		flow.Version = existing.Version + 1
		flow.CreatedAt = existing.CreatedAt
	case isNotFound(err):
		flow.Version = 1
		if flow.CreatedAt.IsZero() {
			flow.CreatedAt = time.Now().UTC()
		}
	default:
		return err
	}

	flow.UpdatedAt = time.Now().UTC()

	if err := writeRecord(r.root, "flows/versions", versionID(flow.ID, flow.Version), flow); err != nil {
		return err
	}

	return writeRecord(r.root, "flows", flow.ID, flow)
}

func (r *FlowRepository) FlowByID(_ context.Context, id string) (*models.Flow, error) {
	var flow models.Flow
	if err := readRecord(r.root, "flows", id, &flow); err != nil {
		return nil, err
	}

	return &flow, nil
}

func (r *FlowRepository) FlowVersion(_ context.Context, id string, version int) (*models.Flow, error) {
	var flow models.Flow
	if err := readRecord(r.root, "flows/versions", versionID(id, version), &flow); err != nil {
		if isNotFound(err) {
			return nil, wrapVersionNotFound(id, version)
		}

		return nil, err
	}

	return &flow, nil
}

func versionID(id string, version int) string {
	return fmt.Sprintf("%s.v%d", id, version)
}
