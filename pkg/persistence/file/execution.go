package file

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/outflowhq/outflow/pkg/models"
)

// ExecutionRepository stores executions under <root>/executions and
// their recipient outcome records under <root>/recipients.
type ExecutionRepository struct {
	root string
	mu   sync.Mutex
}

func (r *ExecutionRepository) SaveExecution(_ context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = time.Now().UTC()
	}

	return writeRecord(r.root, "executions", execution.ID, execution)
}

func (r *ExecutionRepository) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	var execution models.Execution
	if err := readRecord(r.root, "executions", id, &execution); err != nil {
		return nil, err
	}

	return &execution, nil
}

func (r *ExecutionRepository) SaveRecipient(_ context.Context, recipient *models.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if recipient.CreatedAt.IsZero() {
		recipient.CreatedAt = time.Now().UTC()
	}

	recipient.UpdatedAt = time.Now().UTC()

	return writeRecord(r.root, "recipients", recipient.ID, recipient)
}

func (r *ExecutionRepository) RecipientsByExecution(_ context.Context, executionID string) ([]*models.Recipient, error) {
	ids, err := listIDs(r.root, "recipients")
	if err != nil {
		return nil, err
	}

	var recipients []*models.Recipient

	for _, id := range ids {
		var recipient models.Recipient
		if err := readRecord(r.root, "recipients", id, &recipient); err != nil {
			return nil, err
		}

		if recipient.ExecutionID == executionID {
			recipients = append(recipients, &recipient)
		}
	}

	sort.Slice(recipients, func(i, j int) bool {
		return recipients[i].CreatedAt.Before(recipients[j].CreatedAt)
	})

	return recipients, nil
}
