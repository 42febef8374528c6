package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/outflowhq/outflow/pkg/eventbus"
	"github.com/outflowhq/outflow/pkg/events"
	"github.com/outflowhq/outflow/pkg/mocks"
	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/persistence/file"
	"github.com/outflowhq/outflow/pkg/protocol"
	"github.com/outflowhq/outflow/pkg/registry"
	"github.com/outflowhq/outflow/pkg/testutil"
)

// capturingPublisher records event types in publish order.
type capturingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *capturingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]events.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.GetType())
	}

	return out
}

type fixture struct {
	dispatcher  *Dispatcher
	persistence *file.Persistence
	sender      *mocks.MockSender
	resolver    *mocks.MockAudienceResolver
	publisher   *capturingPublisher
	automation  *models.Automation
}

func newFixture(t *testing.T, config Config, members ...protocol.AudienceMember) *fixture {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	flowDef := testutil.CreateLinearFlow()
	flowDef.ID = "flow-1"
	require.NoError(t, p.FlowRepository().SaveFlow(context.Background(), flowDef))

	automation := &models.Automation{
		ID:           "auto-1",
		Name:         "Morning digest",
		FlowID:       "flow-1",
		AudienceType: models.AudienceTypeAll,
	}
	require.NoError(t, p.AutomationRepository().SaveAutomation(context.Background(), automation))

	sender := new(mocks.MockSender)
	resolver := new(mocks.MockAudienceResolver)
	resolver.On("Resolve", mock.Anything, mock.Anything).Return(members, nil)

	publisher := &capturingPublisher{}

	dispatcher := NewDispatcher(p, registry.NewDefaultRegistry(slog.Default()), sender, resolver,
		publisher, slog.Default(), config)

	return &fixture{
		dispatcher:  dispatcher,
		persistence: p,
		sender:      sender,
		resolver:    resolver,
		publisher:   publisher,
		automation:  automation,
	}
}

func member(channelID, name string) protocol.AudienceMember {
	return protocol.AudienceMember{
		RecipientID: channelID,
		Variables:   map[string]any{"contact.name": name},
	}
}

func TestDispatchDeliversToAllRecipients(t *testing.T) {
	f := newFixture(t, Config{}, member("ch-1", "Ana"), member("ch-2", "Bruno"))
	f.sender.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(protocol.SendResult{ExternalMessageID: "ext-1"}, nil)

	execution, err := f.dispatcher.Dispatch(context.Background(), f.automation, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, 2, execution.TotalRecipients)
	assert.Equal(t, 2, execution.DeliveredCount)
	assert.Equal(t, 0, execution.FailedCount)
	require.NotNil(t, execution.CompletedAt)

	recipients, err := f.persistence.ExecutionRepository().RecipientsByExecution(context.Background(), execution.ID)
	require.NoError(t, err)
	require.Len(t, recipients, 2)

	for _, r := range recipients {
		assert.Equal(t, models.RecipientStatusDelivered, r.Status)
		assert.Equal(t, "ext-1", r.ExternalMessageID)
		assert.NotNil(t, r.SentAt)
	}

	assert.Equal(t, []events.EventType{events.ExecutionStartedEvent, events.ExecutionCompletedEvent},
		f.publisher.types())
}

func TestDispatchRendersRecipientVariables(t *testing.T) {
	f := newFixture(t, Config{}, member("ch-1", "Ana"))
	f.sender.On("Send", mock.Anything, "ch-1", protocol.Payload{Kind: "text", Text: "hello Ana"}).
		Return(protocol.SendResult{ExternalMessageID: "ext-1"}, nil)

	_, err := f.dispatcher.Dispatch(context.Background(), f.automation, nil)
	require.NoError(t, err)

	f.sender.AssertExpectations(t)
}

func TestDispatchAppliesVariableMapping(t *testing.T) {
	f := newFixture(t, Config{}, protocol.AudienceMember{
		RecipientID: "ch-1",
		Variables:   map[string]any{"name": "Ana", "city": "Recife"},
	})
	f.automation.VariableMapping = map[string]string{"contact.name": "name"}

	f.sender.On("Send", mock.Anything, "ch-1", protocol.Payload{Kind: "text", Text: "hello Ana"}).
		Return(protocol.SendResult{ExternalMessageID: "ext-1"}, nil)

	execution, err := f.dispatcher.Dispatch(context.Background(), f.automation, nil)
	require.NoError(t, err)

	recipients, err := f.persistence.ExecutionRepository().RecipientsByExecution(context.Background(), execution.ID)
	require.NoError(t, err)
	require.Len(t, recipients, 1)

	// The mapped key is bound and unmapped fields pass through untouched.
	assert.Equal(t, "Ana", recipients[0].Variables["contact.name"])
	assert.Equal(t, "Recife", recipients[0].Variables["city"])
	f.sender.AssertExpectations(t)
}

func TestDispatchPartialWhenSomeRecipientsFail(t *testing.T) {
	f := newFixture(t, Config{}, member("ch-ok", "Ana"), member("ch-bad", "Bruno"))
	f.sender.On("Send", mock.Anything, "ch-ok", mock.Anything).
		Return(protocol.SendResult{ExternalMessageID: "ext-1"}, nil)
	f.sender.On("Send", mock.Anything, "ch-bad", mock.Anything).
		Return(protocol.SendResult{}, errors.New("invalid channel"))

	execution, err := f.dispatcher.Dispatch(context.Background(), f.automation, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusPartial, execution.Status)
	assert.Equal(t, 1, execution.DeliveredCount)
	assert.Equal(t, 1, execution.FailedCount)

	types := f.publisher.types()
	assert.Contains(t, types, events.RecipientFailedEvent)
	assert.Contains(t, types, events.ExecutionCompletedEvent)
}

func TestDispatchFailedWhenNothingDelivers(t *testing.T) {
	f := newFixture(t, Config{}, member("ch-1", "Ana"))
	f.sender.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(protocol.SendResult{}, errors.New("downstream unavailable"))

	execution, err := f.dispatcher.Dispatch(context.Background(), f.automation, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, 0, execution.DeliveredCount)
	assert.Equal(t, 1, execution.FailedCount)

	recipients, err := f.persistence.ExecutionRepository().RecipientsByExecution(context.Background(), execution.ID)
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	assert.Equal(t, models.RecipientStatusFailed, recipients[0].Status)
	assert.Contains(t, recipients[0].ErrorMessage, "downstream unavailable")
}

func TestDispatchRetriesUntilSuccess(t *testing.T) {
	f := newFixture(t, Config{RetryBackoff: time.Millisecond}, member("ch-1", "Ana"))
	f.automation.RetryFailed = true
	f.automation.MaxRetries = 3

	f.sender.On("Send", mock.Anything, "ch-1", mock.Anything).
		Return(protocol.SendResult{}, errors.New("transient")).Twice()
	f.sender.On("Send", mock.Anything, "ch-1", mock.Anything).
		Return(protocol.SendResult{ExternalMessageID: "ext-1"}, nil).Once()

	execution, err := f.dispatcher.Dispatch(context.Background(), f.automation, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	recipients, err := f.persistence.ExecutionRepository().RecipientsByExecution(context.Background(), execution.ID)
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	assert.Equal(t, models.RecipientStatusDelivered, recipients[0].Status)
	assert.Equal(t, 2, recipients[0].RetryCount)
	f.sender.AssertExpectations(t)
}

func TestDispatchRetriesExhaust(t *testing.T) {
	f := newFixture(t, Config{RetryBackoff: time.Millisecond}, member("ch-1", "Ana"))
	f.automation.RetryFailed = true
	f.automation.MaxRetries = 2

	f.sender.On("Send", mock.Anything, "ch-1", mock.Anything).
		Return(protocol.SendResult{}, errors.New("permanent"))

	execution, err := f.dispatcher.Dispatch(context.Background(), f.automation, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)

	// Initial attempt plus two retries.
	f.sender.AssertNumberOfCalls(t, "Send", 3)

	recipients, err := f.persistence.ExecutionRepository().RecipientsByExecution(context.Background(), execution.ID)
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	assert.Equal(t, 2, recipients[0].RetryCount)
}

func TestDispatchRateLimitPacesSends(t *testing.T) {
	if testing.Short() {
		t.Skip("paces wall-clock time")
	}

	f := newFixture(t, Config{}, member("ch-1", "Ana"), member("ch-2", "Bruno"), member("ch-3", "Carla"))
	f.automation.RateLimitPerHour = 3600 // one send per second

	f.sender.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(protocol.SendResult{ExternalMessageID: "ext-1"}, nil)

	start := time.Now()
	execution, err := f.dispatcher.Dispatch(context.Background(), f.automation, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	// First token is immediate, the remaining two wait roughly a second
	// each.
	assert.GreaterOrEqual(t, time.Since(start), 1800*time.Millisecond)
}

func TestDispatchHonorsRateLimitOverride(t *testing.T) {
	f := newFixture(t, Config{}, member("ch-1", "Ana"))
	f.automation.RateLimitPerHour = 1

	f.sender.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(protocol.SendResult{ExternalMessageID: "ext-1"}, nil)

	// Override lifts the limit for this firing only; with one recipient
	// the first token is immediate either way, so just assert completion.
	execution, err := f.dispatcher.Dispatch(context.Background(), f.automation,
		map[string]any{"rate_limit_per_hour": float64(0)})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
}

func TestHandleScheduleDueSkipsDeletedAutomation(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.persistence.AutomationRepository().DeleteAutomation(context.Background(), "auto-1"))

	err := f.dispatcher.HandleScheduleDue(context.Background(), &events.ScheduleDue{
		BaseEvent: events.BaseEvent{AutomationID: "auto-1"},
		DueAt:     time.Now().UTC(),
	})
	require.NoError(t, err)

	assert.Empty(t, f.publisher.types())
	f.sender.AssertNumberOfCalls(t, "Send", 0)
}

func TestHandleScheduleDueSkipsOutsideWindow(t *testing.T) {
	f := newFixture(t, Config{})
	f.automation.ExecutionWindow = models.ExecutionWindow{Start: "09:00", End: "18:00"}
	require.NoError(t, f.persistence.AutomationRepository().SaveAutomation(context.Background(), f.automation))

	err := f.dispatcher.HandleScheduleDue(context.Background(), &events.ScheduleDue{
		BaseEvent: events.BaseEvent{AutomationID: "auto-1"},
		DueAt:     time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Empty(t, f.publisher.types())
	f.sender.AssertNumberOfCalls(t, "Send", 0)
}

func TestCancelMarksRunningExecution(t *testing.T) {
	f := newFixture(t, Config{})

	execution := &models.Execution{
		ID:           "exec-1",
		AutomationID: "auto-1",
		Status:       models.ExecutionStatusRunning,
	}
	require.NoError(t, f.persistence.ExecutionRepository().SaveExecution(context.Background(), execution))

	require.NoError(t, f.dispatcher.Cancel(context.Background(), "exec-1"))

	saved, err := f.persistence.ExecutionRepository().ExecutionByID(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelling, saved.Status)
}

func TestCancelTerminalExecutionIsNoOp(t *testing.T) {
	f := newFixture(t, Config{})

	execution := &models.Execution{
		ID:           "exec-1",
		AutomationID: "auto-1",
		Status:       models.ExecutionStatusCompleted,
	}
	require.NoError(t, f.persistence.ExecutionRepository().SaveExecution(context.Background(), execution))

	require.NoError(t, f.dispatcher.Cancel(context.Background(), "exec-1"))

	saved, err := f.persistence.ExecutionRepository().ExecutionByID(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, saved.Status)
}
