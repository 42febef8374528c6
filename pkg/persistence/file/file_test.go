package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/persistence"
)

func TestSaveFlowBumpsVersionAndKeepsHistory(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	flow := &models.Flow{
		ID:   "flow-1",
		Name: "Welcome flow",
		Nodes: []*models.FlowNode{
			{ID: "start", Type: models.NodeTypeTrigger, Name: "Start"},
		},
	}

	require.NoError(t, p.FlowRepository().SaveFlow(ctx, flow))
	assert.Equal(t, 1, flow.Version)

	flow.Name = "Welcome flow v2"
	require.NoError(t, p.FlowRepository().SaveFlow(ctx, flow))
	assert.Equal(t, 2, flow.Version)

	current, err := p.FlowRepository().FlowByID(ctx, "flow-1")
	require.NoError(t, err)
	assert.Equal(t, 2, current.Version)
	assert.Equal(t, "Welcome flow v2", current.Name)

	v1, err := p.FlowRepository().FlowVersion(ctx, "flow-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "Welcome flow", v1.Name)

	_, err = p.FlowRepository().FlowVersion(ctx, "flow-1", 9)
	assert.ErrorIs(t, err, persistence.ErrVersionNotFound)
}

func TestFlowByIDNotFound(t *testing.T) {
	p := NewPersistence(t.TempDir())

	_, err := p.FlowRepository().FlowByID(context.Background(), "missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestDeleteAutomationIsSoft(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	automation := &models.Automation{ID: "auto-1", Name: "Morning digest", FlowID: "flow-1"}
	require.NoError(t, p.AutomationRepository().SaveAutomation(ctx, automation))
	require.NoError(t, p.AutomationRepository().DeleteAutomation(ctx, "auto-1"))

	loaded, err := p.AutomationRepository().AutomationByID(ctx, "auto-1")
	require.NoError(t, err)
	assert.True(t, loaded.IsDeleted())
}

func TestListDueSchedules(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	require.NoError(t, p.ScheduleRepository().SaveSchedule(ctx, &models.Schedule{
		ID: "due", AutomationID: "a1", Type: models.RecurrenceDaily,
		Active: true, NextScheduledAt: &past,
	}))
	require.NoError(t, p.ScheduleRepository().SaveSchedule(ctx, &models.Schedule{
		ID: "not-yet", AutomationID: "a2", Type: models.RecurrenceDaily,
		Active: true, NextScheduledAt: &future,
	}))
	require.NoError(t, p.ScheduleRepository().SaveSchedule(ctx, &models.Schedule{
		ID: "inactive", AutomationID: "a3", Type: models.RecurrenceDaily,
		Active: false, NextScheduledAt: &past,
	}))

	due, err := p.ScheduleRepository().ListDueSchedules(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due", due[0].ID)
}

func TestExceptionsBySchedule(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, p.ScheduleRepository().SaveException(ctx, &models.Exception{
		ID: "e1", ScheduleID: "s1", Type: models.ExceptionSkip,
	}))
	require.NoError(t, p.ScheduleRepository().SaveException(ctx, &models.Exception{
		ID: "e2", ScheduleID: "s2", Type: models.ExceptionSkip,
	}))

	exceptions, err := p.ScheduleRepository().ExceptionsBySchedule(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, exceptions, 1)
	assert.Equal(t, "e1", exceptions[0].ID)

	require.NoError(t, p.ScheduleRepository().DeleteException(ctx, "e1"))

	exceptions, err = p.ScheduleRepository().ExceptionsBySchedule(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, exceptions)
}

func TestRecipientsByExecution(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := context.Background()

	execution := &models.Execution{ID: "exec-1", AutomationID: "a1", Status: models.ExecutionStatusPending}
	require.NoError(t, p.ExecutionRepository().SaveExecution(ctx, execution))

	for _, id := range []string{"r1", "r2"} {
		require.NoError(t, p.ExecutionRepository().SaveRecipient(ctx, &models.Recipient{
			ID: id, ExecutionID: "exec-1", ChannelID: "ch-" + id,
			Status: models.RecipientStatusPending,
		}))
	}

	require.NoError(t, p.ExecutionRepository().SaveRecipient(ctx, &models.Recipient{
		ID: "other", ExecutionID: "exec-2", ChannelID: "ch-x",
		Status: models.RecipientStatusPending,
	}))

	recipients, err := p.ExecutionRepository().RecipientsByExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Len(t, recipients, 2)
}
