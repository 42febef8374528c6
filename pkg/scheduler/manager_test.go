package scheduler

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outflowhq/outflow/pkg/eventbus"
	"github.com/outflowhq/outflow/pkg/events"
	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/persistence/file"
	"github.com/outflowhq/outflow/pkg/recurrence"
)

// capturingPublisher records published events in order.
type capturingPublisher struct {
	published []events.ScheduleDue
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	if due, ok := event.(events.ScheduleDue); ok {
		p.published = append(p.published, due)
	}

	return nil
}

func newTestManager(t *testing.T, publisher *capturingPublisher) (*Manager, *file.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	calculator := recurrence.NewCalculator(nil)
	manager := NewManager(p, calculator, NewMemoryClaimer(), publisher, slog.Default(), 0)

	return manager, p
}

func saveDailySchedule(t *testing.T, p *file.Persistence, id string, next time.Time) *models.Schedule {
	t.Helper()

	schedule := &models.Schedule{
		ID:           id,
		AutomationID: "auto-" + id,
		Type:         models.RecurrenceDaily,
		Config:       models.RecurrenceConfig{Interval: 1},
		StartDate:    next.AddDate(0, 0, -10),
		Active:       true,
	}
	schedule.NextScheduledAt = &next

	require.NoError(t, p.ScheduleRepository().SaveSchedule(context.Background(), schedule))

	return schedule
}

func TestTickFiresDueScheduleAndAdvances(t *testing.T) {
	publisher := &capturingPublisher{}
	manager, p := newTestManager(t, publisher)

	due := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	saveDailySchedule(t, p, "s1", due)

	manager.Tick(context.Background(), due)

	require.Len(t, publisher.published, 1)
	assert.Equal(t, "s1", publisher.published[0].ScheduleID)
	assert.Equal(t, due, publisher.published[0].DueAt)

	saved, err := p.ScheduleRepository().ScheduleByID(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, saved.LastFiredAt)
	assert.Equal(t, due, saved.LastFiredAt.UTC())
	require.NotNil(t, saved.NextScheduledAt)
	assert.Equal(t, due.AddDate(0, 0, 1), saved.NextScheduledAt.UTC())
}

func TestTickIsIdempotentPerOccurrence(t *testing.T) {
	publisher := &capturingPublisher{}
	manager, p := newTestManager(t, publisher)

	due := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	schedule := saveDailySchedule(t, p, "s1", due)

	manager.Tick(context.Background(), due)

	// Simulate a second instance seeing the same due occurrence before
	// the advanced schedule was visible to it.
	schedule.NextScheduledAt = &due
	schedule.LastFiredAt = nil
	require.NoError(t, p.ScheduleRepository().SaveSchedule(context.Background(), schedule))

	manager.Tick(context.Background(), due)

	assert.Len(t, publisher.published, 1)
}

func TestTickSkipsNotYetDueSchedules(t *testing.T) {
	publisher := &capturingPublisher{}
	manager, p := newTestManager(t, publisher)

	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	saveDailySchedule(t, p, "s1", now.Add(time.Hour))

	manager.Tick(context.Background(), now)

	assert.Empty(t, publisher.published)
}

func TestFireExhaustedScheduleClearsNextOccurrence(t *testing.T) {
	publisher := &capturingPublisher{}
	manager, p := newTestManager(t, publisher)

	last := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	schedule := &models.Schedule{
		ID:           "s1",
		AutomationID: "auto-1",
		Type:         models.RecurrenceCustom,
		Config:       models.RecurrenceConfig{Dates: []time.Time{last}},
		Active:       true,
	}
	schedule.NextScheduledAt = &last
	require.NoError(t, p.ScheduleRepository().SaveSchedule(context.Background(), schedule))

	manager.Tick(context.Background(), last)

	require.Len(t, publisher.published, 1)

	saved, err := p.ScheduleRepository().ScheduleByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, saved.NextScheduledAt)
}

func TestFireCarriesModifyOverride(t *testing.T) {
	publisher := &capturingPublisher{}
	manager, p := newTestManager(t, publisher)

	due := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	saveDailySchedule(t, p, "s1", due)

	require.NoError(t, p.ScheduleRepository().SaveException(context.Background(), &models.Exception{
		ID:         "e1",
		ScheduleID: "s1",
		Type:       models.ExceptionModify,
		StartDate:  due.AddDate(0, 0, -1),
		EndDate:    due.AddDate(0, 0, 1),
		Override:   map[string]any{"rate_limit_per_hour": 10},
	}))

	manager.Tick(context.Background(), due)

	require.Len(t, publisher.published, 1)
	assert.Equal(t, map[string]any{"rate_limit_per_hour": 10}, publisher.published[0].Override)
}

func TestRecomputeRefreshesCachedOccurrence(t *testing.T) {
	publisher := &capturingPublisher{}
	manager, _ := newTestManager(t, publisher)

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	schedule := &models.Schedule{
		ID:           "s1",
		AutomationID: "auto-1",
		Type:         models.RecurrenceDaily,
		Config:       models.RecurrenceConfig{Interval: 1},
		StartDate:    time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		Active:       true,
	}

	require.NoError(t, manager.Recompute(context.Background(), schedule, now))

	require.NotNil(t, schedule.NextScheduledAt)
	assert.Equal(t, time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC), schedule.NextScheduledAt.UTC())
}

func TestStopTerminatesPollLoop(t *testing.T) {
	publisher := &capturingPublisher{}
	manager, _ := newTestManager(t, publisher)

	require.NoError(t, manager.Start(context.Background()))
	require.NoError(t, manager.Stop(context.Background()))

	// The done channel is closed, so the poll goroutine observes the
	// shutdown on its next select no matter what it was doing.
	select {
	case _, open := <-manager.done:
		assert.False(t, open)
	default:
		t.Fatal("done channel still blocks after Stop")
	}

	// Restart arms a fresh channel.
	require.NoError(t, manager.Start(context.Background()))
	require.NoError(t, manager.Stop(context.Background()))
}

func TestMemoryClaimerClaimsOncePerPair(t *testing.T) {
	claimer := NewMemoryClaimer()
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	first, err := claimer.Claim(context.Background(), "s1", at)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := claimer.Claim(context.Background(), "s1", at)
	require.NoError(t, err)
	assert.False(t, second)

	other, err := claimer.Claim(context.Background(), "s1", at.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, other)
}
