package file

import (
	"context"
	"sync"
	"time"

	"github.com/outflowhq/outflow/pkg/models"
)

// AutomationRepository stores automations under <root>/automations.
type AutomationRepository struct {
	root string
	mu   sync.Mutex
}

func (r *AutomationRepository) SaveAutomation(_ context.Context, automation *models.Automation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if automation.CreatedAt.IsZero() {
		automation.CreatedAt = time.Now().UTC()
	}

	automation.UpdatedAt = time.Now().UTC()

	return writeRecord(r.root, "automations", automation.ID, automation)
}

func (r *AutomationRepository) AutomationByID(_ context.Context, id string) (*models.Automation, error) {
	var automation models.Automation
	if err := readRecord(r.root, "automations", id, &automation); err != nil {
		return nil, err
	}

	return &automation, nil
}

// DeleteAutomation marks the automation deleted in place. The record
// stays readable so executions can keep resolving their reference.
func (r *AutomationRepository) DeleteAutomation(ctx context.Context, id string) error {
	automation, err := r.AutomationByID(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	automation.DeletedAt = &now

	return r.SaveAutomation(ctx, automation)
}
