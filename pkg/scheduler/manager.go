package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/outflowhq/outflow/pkg/eventbus"
	"github.com/outflowhq/outflow/pkg/events"
	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/otelhelper"
	"github.com/outflowhq/outflow/pkg/persistence"
	"github.com/outflowhq/outflow/pkg/recurrence"
)

const defaultTickInterval = 30 * time.Second

// Manager runs the centralized scheduling loop: one system-wide ticker
// scans for due schedules, claims each (schedule, timestamp) pair, and
// publishes a due event for the dispatcher. Schedules cache their next
// occurrence so the scan is a simple comparison, not a per-schedule
// timer.
type Manager struct {
	persistence persistence.Persistence
	calculator  *recurrence.Calculator
	claimer     Claimer
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer

	tickInterval time.Duration
	ticker       *time.Ticker
	done         chan bool
	started      bool
	mu           sync.Mutex
}

func NewManager(
	p persistence.Persistence,
	calculator *recurrence.Calculator,
	claimer Claimer,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	tickInterval time.Duration,
) *Manager {
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}

	return &Manager{
		persistence:  p,
		calculator:   calculator,
		claimer:      claimer,
		publisher:    publisher,
		logger:       logger.With("module", "schedule_manager"),
		tracer:       otel.Tracer("outflow.scheduler"),
		tickInterval: tickInterval,
	}
}

// Start begins the periodic tick loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	m.logger.Info("Starting schedule manager", "tick_interval", m.tickInterval)

	m.ticker = time.NewTicker(m.tickInterval)
	m.done = make(chan bool)
	m.started = true

	go m.poll(ctx)

	return nil
}

// Stop shuts the tick loop down.
func (m *Manager) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}

	m.logger.Info("Stopping schedule manager")

	m.ticker.Stop()
	close(m.done)

	m.started = false

	return nil
}

func (m *Manager) poll(ctx context.Context) {
	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		case <-m.ticker.C:
			m.Tick(ctx, time.Now().UTC())
		}
	}
}

// Tick processes every schedule due at the given instant. Exported so
// tests and the run-now path can drive the loop without waiting for the
// ticker.
func (m *Manager) Tick(ctx context.Context, now time.Time) {
	schedules, err := m.persistence.ScheduleRepository().ListDueSchedules(ctx, now)
	if err != nil {
		// Skip the tick; the next interval retries. next_scheduled_at
		// was not advanced, so no occurrence is lost.
		m.logger.Error("Failed to list due schedules", "error", err)

		return
	}

	if len(schedules) > 0 {
		m.logger.Info("Processing due schedules", "count", len(schedules))
	}

	for _, schedule := range schedules {
		if err := m.fire(ctx, schedule); err != nil {
			m.logger.Error("Failed to fire schedule",
				"schedule_id", schedule.ID, "error", err)
		}
	}
}

// fire claims one due occurrence, publishes its event, and advances the
// cached next occurrence. The claim makes firing idempotent per
// (schedule, timestamp) pair across scheduler instances.
func (m *Manager) fire(ctx context.Context, schedule *models.Schedule) error {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "scheduler.fire",
		attribute.String(otelhelper.ScheduleIDKey, schedule.ID),
		attribute.String(otelhelper.AutomationIDKey, schedule.AutomationID))
	defer span.End()

	dueAt := *schedule.NextScheduledAt

	claimed, err := m.claimer.Claim(ctx, schedule.ID, dueAt)
	if err != nil {
		return err
	}

	if !claimed {
		m.logger.Debug("Schedule already claimed by another instance",
			"schedule_id", schedule.ID, "due_at", dueAt)

		return nil
	}

	exceptions, err := m.persistence.ScheduleRepository().ExceptionsBySchedule(ctx, schedule.ID)
	if err != nil {
		return err
	}

	event := events.ScheduleDue{
		BaseEvent: events.BaseEvent{
			ID:           uuid.New().String(),
			Type:         events.ScheduleDueEvent,
			Timestamp:    time.Now().UTC(),
			AutomationID: schedule.AutomationID,
		},
		ScheduleID: schedule.ID,
		DueAt:      dueAt,
		Override:   recurrence.OverrideFor(exceptions, dueAt),
	}

	if err := m.publisher.Publish(ctx, schedule.AutomationID, event); err != nil {
		return err
	}

	schedule.LastFiredAt = &dueAt

	if occ, ok := m.calculator.Next(schedule, dueAt, exceptions); ok {
		schedule.NextScheduledAt = &occ.At
	} else {
		// Exhausted: no further occurrence within the rule.
		schedule.NextScheduledAt = nil
	}

	m.logger.Info("Fired schedule",
		"schedule_id", schedule.ID,
		"due_at", dueAt,
		"next_scheduled_at", schedule.NextScheduledAt)

	return m.persistence.ScheduleRepository().SaveSchedule(ctx, schedule)
}

// Recompute refreshes a schedule's cached next occurrence. Called on
// creation and after every edit.
func (m *Manager) Recompute(ctx context.Context, schedule *models.Schedule, now time.Time) error {
	exceptions, err := m.persistence.ScheduleRepository().ExceptionsBySchedule(ctx, schedule.ID)
	if err != nil {
		return err
	}

	if occ, ok := m.calculator.Next(schedule, now, exceptions); ok {
		schedule.NextScheduledAt = &occ.At
	} else {
		schedule.NextScheduledAt = nil
	}

	return m.persistence.ScheduleRepository().SaveSchedule(ctx, schedule)
}
