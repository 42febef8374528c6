package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/outflowhq/outflow/pkg/dispatch"
	"github.com/outflowhq/outflow/pkg/eventbus"
	"github.com/outflowhq/outflow/pkg/mocks"
	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/persistence/file"
	"github.com/outflowhq/outflow/pkg/protocol"
	"github.com/outflowhq/outflow/pkg/recurrence"
	"github.com/outflowhq/outflow/pkg/registry"
	"github.com/outflowhq/outflow/pkg/scheduler"
	"github.com/outflowhq/outflow/pkg/testutil"
)

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, eventbus.Event) error { return nil }

type fixture struct {
	persistence *file.Persistence
	sender      *mocks.MockSender
	resolver    *mocks.MockAudienceResolver

	flows       *Flow
	automations *Automation
	schedules   *Schedule
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	logger := slog.Default()
	reg := registry.NewDefaultRegistry(logger)

	sender := new(mocks.MockSender)
	resolver := new(mocks.MockAudienceResolver)

	dispatcher := dispatch.NewDispatcher(p, reg, sender, resolver, noopPublisher{}, logger, dispatch.Config{})
	calculator := recurrence.NewCalculator(nil)
	manager := scheduler.NewManager(p, calculator, scheduler.NewMemoryClaimer(), noopPublisher{}, logger, 0)

	return &fixture{
		persistence: p,
		sender:      sender,
		resolver:    resolver,
		flows:       NewFlow(p, reg, logger),
		automations: NewAutomation(p, dispatcher),
		schedules:   NewSchedule(p, manager, calculator),
	}
}

func (f *fixture) createFlow(t *testing.T) *models.Flow {
	t.Helper()

	flowDef, warnings, err := f.flows.Create(context.Background(), testutil.CreateLinearFlow())
	require.NoError(t, err)
	require.Empty(t, warnings)

	return flowDef
}

func (f *fixture) createAutomation(t *testing.T, flowID string) *models.Automation {
	t.Helper()

	automation, err := f.automations.Create(context.Background(), &models.Automation{
		Name:         "Morning digest",
		FlowID:       flowID,
		AudienceType: models.AudienceTypeAll,
	})
	require.NoError(t, err)

	return automation
}

func TestFlowCreateAssignsVersionOne(t *testing.T) {
	f := newFixture(t)

	flowDef := f.createFlow(t)
	assert.NotEmpty(t, flowDef.ID)
	assert.Equal(t, 1, flowDef.Version)
}

func TestFlowCreateRejectsFlowWithoutTrigger(t *testing.T) {
	f := newFixture(t)

	broken := testutil.CreateTestFlow()
	broken.Nodes = []*models.FlowNode{testutil.CreateTestNode(testutil.WithID("orphan"))}

	_, _, err := f.flows.Create(context.Background(), broken)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestFlowCreateWarnsAboutUnreachableNodes(t *testing.T) {
	f := newFixture(t)

	flowDef := testutil.CreateLinearFlow()
	flowDef.Nodes = append(flowDef.Nodes, testutil.CreateTestNode(testutil.WithID("island")))

	_, warnings, err := f.flows.Create(context.Background(), flowDef)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "island")
}

func TestFlowCreateRejectsInvalidNodeConfig(t *testing.T) {
	f := newFixture(t)

	flowDef := testutil.CreateLinearFlow()
	flowDef.Nodes[1].Config = map[string]any{} // message node without text

	_, _, err := f.flows.Create(context.Background(), flowDef)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestFlowUpdateBumpsVersion(t *testing.T) {
	f := newFixture(t)

	flowDef := f.createFlow(t)

	edited := testutil.CreateLinearFlow()
	edited.Name = "Edited flow"

	updated, _, err := f.flows.Update(context.Background(), flowDef.ID, edited)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	v1, err := f.flows.FetchVersion(context.Background(), flowDef.ID, 1)
	require.NoError(t, err)
	assert.NotEqual(t, "Edited flow", v1.Name)
}

func TestFlowTestRunsDryWithoutSending(t *testing.T) {
	f := newFixture(t)

	flowDef := f.createFlow(t)

	result, err := f.flows.Test(context.Background(), TestRequest{
		FlowID:    flowDef.ID,
		Variables: map[string]any{"contact.name": "Ana"},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.Len(t, result.Logs, 2)
	assert.Contains(t, result.Logs[1].Message, "dry-run")
	f.sender.AssertNumberOfCalls(t, "Send", 0)
}

func TestAutomationCreateRejectsMissingFlow(t *testing.T) {
	f := newFixture(t)

	_, err := f.automations.Create(context.Background(), &models.Automation{
		Name:         "Morning digest",
		FlowID:       "no-such-flow",
		AudienceType: models.AudienceTypeAll,
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestAutomationRunNowDispatchesImmediately(t *testing.T) {
	f := newFixture(t)

	flowDef := f.createFlow(t)
	automation := f.createAutomation(t, flowDef.ID)

	f.resolver.On("Resolve", mock.Anything, mock.Anything).Return([]protocol.AudienceMember{
		{RecipientID: "ch-1", Variables: map[string]any{"contact.name": "Ana"}},
	}, nil)
	f.sender.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(protocol.SendResult{ExternalMessageID: "ext-1"}, nil)

	execution, err := f.automations.RunNow(context.Background(), automation.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, 1, execution.DeliveredCount)
}

func TestAutomationRunNowRejectsDeleted(t *testing.T) {
	f := newFixture(t)

	flowDef := f.createFlow(t)
	automation := f.createAutomation(t, flowDef.ID)
	require.NoError(t, f.automations.Delete(context.Background(), automation.ID))

	_, err := f.automations.RunNow(context.Background(), automation.ID)
	assert.ErrorIs(t, err, ErrAutomationDeleted)
	assert.True(t, IsConflictError(err))
}

func TestAutomationCancelTerminalExecutionConflicts(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.persistence.ExecutionRepository().SaveExecution(context.Background(), &models.Execution{
		ID:     "exec-1",
		Status: models.ExecutionStatusCompleted,
	}))

	err := f.automations.CancelExecution(context.Background(), "exec-1")
	assert.ErrorIs(t, err, ErrExecutionTerminal)
}

func TestScheduleCreateComputesFirstOccurrence(t *testing.T) {
	f := newFixture(t)

	flowDef := f.createFlow(t)
	automation := f.createAutomation(t, flowDef.ID)

	schedule, err := f.schedules.Create(context.Background(), &models.Schedule{
		AutomationID: automation.ID,
		Type:         models.RecurrenceDaily,
		Config:       models.RecurrenceConfig{Interval: 1},
		StartDate:    time.Now().UTC().Add(time.Hour),
	})
	require.NoError(t, err)

	assert.True(t, schedule.Active)
	require.NotNil(t, schedule.NextScheduledAt)
	assert.False(t, schedule.NextScheduledAt.Before(schedule.StartDate))
}

func TestScheduleCreateRejectsWeeklyWithoutDays(t *testing.T) {
	f := newFixture(t)

	flowDef := f.createFlow(t)
	automation := f.createAutomation(t, flowDef.ID)

	_, err := f.schedules.Create(context.Background(), &models.Schedule{
		AutomationID: automation.ID,
		Type:         models.RecurrenceWeekly,
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestScheduleAddExceptionRecomputesNextOccurrence(t *testing.T) {
	f := newFixture(t)

	flowDef := f.createFlow(t)
	automation := f.createAutomation(t, flowDef.ID)

	start := time.Now().UTC().Add(time.Hour).Truncate(time.Minute)
	schedule, err := f.schedules.Create(context.Background(), &models.Schedule{
		AutomationID: automation.ID,
		Type:         models.RecurrenceDaily,
		Config:       models.RecurrenceConfig{Interval: 1},
		StartDate:    start,
	})
	require.NoError(t, err)
	require.NotNil(t, schedule.NextScheduledAt)
	first := *schedule.NextScheduledAt

	// Skip the first occurrence; the cache must move to the next day.
	_, err = f.schedules.AddException(context.Background(), &models.Exception{
		ScheduleID: schedule.ID,
		Type:       models.ExceptionSkip,
		StartDate:  first.Add(-time.Minute),
		EndDate:    first.Add(time.Minute),
	})
	require.NoError(t, err)

	saved, err := f.schedules.FetchByID(context.Background(), schedule.ID)
	require.NoError(t, err)
	require.NotNil(t, saved.NextScheduledAt)
	assert.True(t, saved.NextScheduledAt.After(first))
}

func TestSchedulePreviewReturnsUpcomingOccurrences(t *testing.T) {
	f := newFixture(t)

	flowDef := f.createFlow(t)
	automation := f.createAutomation(t, flowDef.ID)

	schedule, err := f.schedules.Create(context.Background(), &models.Schedule{
		AutomationID: automation.ID,
		Type:         models.RecurrenceDaily,
		Config:       models.RecurrenceConfig{Interval: 1},
		StartDate:    time.Now().UTC().Add(time.Hour),
	})
	require.NoError(t, err)

	preview, err := f.schedules.Preview(context.Background(), schedule.ID, 5)
	require.NoError(t, err)
	require.Len(t, preview, 5)

	for i := 1; i < len(preview); i++ {
		assert.True(t, preview[i].After(preview[i-1]))
	}
}

func TestSchedulePreviewRejectsBadCount(t *testing.T) {
	f := newFixture(t)

	_, err := f.schedules.Preview(context.Background(), "any", 0)
	assert.ErrorIs(t, err, ErrInvalidPreviewRequest)

	_, err = f.schedules.Preview(context.Background(), "any", 500)
	assert.ErrorIs(t, err, ErrInvalidPreviewRequest)
}
