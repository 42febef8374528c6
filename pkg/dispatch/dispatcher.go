// Package dispatch fans an automation run out to its resolved audience
// under concurrency and rate limits, tracking per-recipient outcomes.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/outflowhq/outflow/pkg/eventbus"
	"github.com/outflowhq/outflow/pkg/events"
	"github.com/outflowhq/outflow/pkg/flow"
	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/otelhelper"
	"github.com/outflowhq/outflow/pkg/persistence"
	"github.com/outflowhq/outflow/pkg/protocol"
	"github.com/outflowhq/outflow/pkg/registry"
)

// Config tunes dispatcher behavior. Zero values fall back to defaults.
type Config struct {
	// DefaultMaxWorkers caps the pool when an automation does not set
	// max_concurrent_executions lower.
	DefaultMaxWorkers int

	// SendTimeout bounds every external send call. A hung send times
	// out and counts as a retryable failure.
	SendTimeout time.Duration

	// Burst is the token bucket ceiling for the per-automation rate
	// limiter.
	Burst int

	// RetryBackoff is the linear backoff unit between recipient
	// retries (retry n waits n * RetryBackoff).
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultMaxWorkers <= 0 {
		c.DefaultMaxWorkers = 5
	}

	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}

	if c.Burst <= 0 {
		c.Burst = 1
	}

	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}

	return c
}

type Dispatcher struct {
	persistence persistence.Persistence
	resolver    protocol.AudienceResolver
	interpreter *flow.Interpreter
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer
	config      Config

	// cancelling flags per execution id, checked by workers between
	// recipients.
	mu         sync.Mutex
	cancelling map[string]bool
}

func NewDispatcher(
	p persistence.Persistence,
	reg *registry.Registry,
	sender protocol.Sender,
	resolver protocol.AudienceResolver,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	config Config,
) *Dispatcher {
	config = config.withDefaults()

	wrapped := &timeoutSender{inner: sender, timeout: config.SendTimeout}

	return &Dispatcher{
		persistence: p,
		resolver:    resolver,
		interpreter: flow.NewInterpreter(reg, wrapped, logger),
		publisher:   publisher,
		logger:      logger.With("module", "dispatcher"),
		tracer:      otel.Tracer("outflow.dispatch"),
		config:      config,
		cancelling:  make(map[string]bool),
	}
}

// HandleScheduleDue is the event bus handler for due events.
func (d *Dispatcher) HandleScheduleDue(ctx context.Context, event any) error {
	due, ok := event.(*events.ScheduleDue)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	automation, err := d.persistence.AutomationRepository().AutomationByID(ctx, due.AutomationID)
	if err != nil {
		return fmt.Errorf("failed to load automation %s: %w", due.AutomationID, err)
	}

	if automation.IsDeleted() {
		d.logger.Warn("Skipping due event for deleted automation", "automation_id", automation.ID)

		return nil
	}

	if !automation.InWindow(due.DueAt) {
		d.logger.Info("Occurrence outside execution window, skipping",
			"automation_id", automation.ID, "due_at", due.DueAt)

		return nil
	}

	_, err = d.Dispatch(ctx, automation, due.Override)

	return err
}

// Dispatch runs one execution of the automation: resolve the audience,
// create the execution and recipient records, then fan out under the
// automation's limits. The returned execution is terminal.
func (d *Dispatcher) Dispatch(ctx context.Context, automation *models.Automation, override map[string]any) (*models.Execution, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatch.execute",
		attribute.String(otelhelper.AutomationIDKey, automation.ID),
		attribute.String(otelhelper.FlowIDKey, automation.FlowID))
	defer span.End()

	logger := d.logger.With("automation_id", automation.ID)

	limits := effectiveLimits(automation, override)

	flowDef, err := d.persistence.FlowRepository().FlowByID(ctx, automation.FlowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow %s: %w", automation.FlowID, err)
	}

	now := time.Now().UTC()
	execution := &models.Execution{
		ID:           "exec-" + uuid.New().String()[:8],
		AutomationID: automation.ID,
		FlowID:       flowDef.ID,
		FlowVersion:  flowDef.Version,
		Status:       models.ExecutionStatusPending,
		CreatedAt:    now,
	}

	if err := d.persistence.ExecutionRepository().SaveExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	recipients, err := d.resolveRecipients(ctx, automation, execution)
	if err != nil {
		execution.Status = models.ExecutionStatusFailed
		completed := time.Now().UTC()
		execution.CompletedAt = &completed
		_ = d.persistence.ExecutionRepository().SaveExecution(ctx, execution)

		otelhelper.SetError(span, err,
			attribute.String(otelhelper.ExecutionIDKey, execution.ID))
		d.publishFailed(ctx, execution, err)

		return execution, err
	}

	started := time.Now().UTC()
	execution.Status = models.ExecutionStatusRunning
	execution.StartedAt = &started
	execution.TotalRecipients = len(recipients)

	if err := d.persistence.ExecutionRepository().SaveExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to start execution: %w", err)
	}

	d.publishStarted(ctx, execution)

	logger.Info("Execution started",
		"execution_id", execution.ID,
		"recipients", len(recipients),
		"workers", limits.workers(d.config.DefaultMaxWorkers),
		"rate_limit_per_hour", limits.rateLimitPerHour)

	d.fanOut(ctx, automation, flowDef, execution, recipients, limits)

	d.finish(ctx, execution, started)

	return execution, nil
}

// Cancel marks an execution as cancelling. Workers stop pulling new
// recipients; in-flight ones finish and pending ones stay pending for a
// later resume.
func (d *Dispatcher) Cancel(ctx context.Context, executionID string) error {
	execution, err := d.persistence.ExecutionRepository().ExecutionByID(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.IsTerminal() {
		return nil
	}

	d.mu.Lock()
	d.cancelling[executionID] = true
	d.mu.Unlock()

	execution.Status = models.ExecutionStatusCancelling

	return d.persistence.ExecutionRepository().SaveExecution(ctx, execution)
}

func (d *Dispatcher) isCancelling(executionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.cancelling[executionID]
}

func (d *Dispatcher) resolveRecipients(ctx context.Context, automation *models.Automation, execution *models.Execution) ([]*models.Recipient, error) {
	members, err := d.resolver.Resolve(ctx, protocol.AudienceSpec{
		Type:   string(automation.AudienceType),
		Config: automation.AudienceConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve audience: %w", err)
	}

	now := time.Now().UTC()

	recipients := make([]*models.Recipient, 0, len(members))
	for _, member := range members {
		recipient := &models.Recipient{
			ID:          "rcpt-" + uuid.New().String()[:8],
			ExecutionID: execution.ID,
			ChannelID:   member.RecipientID,
			Variables:   mapVariables(automation.VariableMapping, member.Variables),
			Status:      models.RecipientStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := d.persistence.ExecutionRepository().SaveRecipient(ctx, recipient); err != nil {
			return nil, fmt.Errorf("failed to create recipient: %w", err)
		}

		recipients = append(recipients, recipient)
	}

	return recipients, nil
}

// fanOut processes recipients through a bounded worker pool. A token
// bucket paced from the hourly rate limit gates how fast new recipient
// executions start.
func (d *Dispatcher) fanOut(
	ctx context.Context,
	automation *models.Automation,
	flowDef *models.Flow,
	execution *models.Execution,
	recipients []*models.Recipient,
	limits limits,
) {
	workers := limits.workers(d.config.DefaultMaxWorkers)
	limiter := limits.limiter(d.config.Burst)

	queue := make(chan *models.Recipient, len(recipients))
	for _, r := range recipients {
		queue <- r
	}
	close(queue)

	var (
		wg       sync.WaitGroup
		counters sync.Mutex
	)

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for recipient := range queue {
				if d.isCancelling(execution.ID) || ctx.Err() != nil {
					// Leave remaining recipients pending.
					return
				}

				if err := limiter.Wait(ctx); err != nil {
					return
				}

				d.processRecipient(ctx, automation, flowDef, execution, recipient, limits, &counters)
			}
		}()
	}

	wg.Wait()
}

// processRecipient runs the interpreter for one recipient, retrying
// failures up to the automation's bound with linear backoff.
func (d *Dispatcher) processRecipient(
	ctx context.Context,
	automation *models.Automation,
	flowDef *models.Flow,
	execution *models.Execution,
	recipient *models.Recipient,
	limits limits,
	counters *sync.Mutex,
) {
	logger := d.logger.With(
		"execution_id", execution.ID,
		"recipient_id", recipient.ID,
		"channel_id", recipient.ChannelID,
	)

	for {
		vctx := models.NewVariableContext()
		vctx.SeedSystem(time.Now().UTC())
		vctx.SeedRecipient(recipient.Variables)

		result := d.interpreter.Execute(ctx, flowDef, vctx, flow.Options{
			StrictMode: true,
			ChannelID:  recipient.ChannelID,
		})

		if result.Success {
			now := time.Now().UTC()
			recipient.Status = models.RecipientStatusDelivered
			recipient.SentAt = &now
			recipient.UpdatedAt = now
			recipient.ErrorMessage = ""
			recipient.ExternalMessageID, _ = result.FinalVariables["message.last_external_id"].(string)

			counters.Lock()
			execution.SentCount++
			execution.DeliveredCount++
			counters.Unlock()

			if err := d.persistence.ExecutionRepository().SaveRecipient(ctx, recipient); err != nil {
				logger.Error("Failed to save recipient", "error", err)
			}

			return
		}

		errMessage := lastError(result.Logs)
		logger.Warn("Recipient execution failed",
			"retry_count", recipient.RetryCount, "error", errMessage)

		if !automation.RetryFailed || recipient.RetryCount >= limits.maxRetries {
			now := time.Now().UTC()
			recipient.Status = models.RecipientStatusFailed
			recipient.ErrorMessage = errMessage
			recipient.UpdatedAt = now

			counters.Lock()
			execution.FailedCount++
			counters.Unlock()

			if err := d.persistence.ExecutionRepository().SaveRecipient(ctx, recipient); err != nil {
				logger.Error("Failed to save recipient", "error", err)
			}

			d.publishRecipientFailed(ctx, execution, recipient, errMessage)

			return
		}

		recipient.RetryCount++
		recipient.ErrorMessage = errMessage
		recipient.UpdatedAt = time.Now().UTC()

		if err := d.persistence.ExecutionRepository().SaveRecipient(ctx, recipient); err != nil {
			logger.Error("Failed to save recipient", "error", err)
		}

		backoff := time.Duration(recipient.RetryCount) * d.config.RetryBackoff

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// finish computes the execution's terminal status from its counters.
func (d *Dispatcher) finish(ctx context.Context, execution *models.Execution, started time.Time) {
	completed := time.Now().UTC()
	execution.CompletedAt = &completed

	terminal := execution.DeliveredCount + execution.FailedCount

	switch {
	case d.isCancelling(execution.ID) && terminal < execution.TotalRecipients:
		execution.Status = models.ExecutionStatusCancelled
	case execution.FailedCount == 0:
		execution.Status = models.ExecutionStatusCompleted
	case execution.DeliveredCount == 0:
		execution.Status = models.ExecutionStatusFailed
	default:
		execution.Status = models.ExecutionStatusPartial
	}

	d.mu.Lock()
	delete(d.cancelling, execution.ID)
	d.mu.Unlock()

	if err := d.persistence.ExecutionRepository().SaveExecution(ctx, execution); err != nil {
		d.logger.Error("Failed to save execution", "execution_id", execution.ID, "error", err)
	}

	d.publishCompleted(ctx, execution, completed.Sub(started))

	d.logger.Info("Execution finished",
		"execution_id", execution.ID,
		"status", execution.Status,
		"delivered", execution.DeliveredCount,
		"failed", execution.FailedCount)
}

func lastError(logs []models.StepLog) string {
	for i := len(logs) - 1; i >= 0; i-- {
		if logs[i].Status == models.StepStatusError {
			return logs[i].Message
		}
	}

	return "execution failed"
}

// mapVariables builds a recipient's context bindings: mapped keys first,
// then unmapped resolver fields passed through as-is.
func mapVariables(mapping map[string]string, fields map[string]any) map[string]any {
	vars := make(map[string]any, len(fields)+len(mapping))

	mapped := make(map[string]bool, len(mapping))
	for templateKey, field := range mapping {
		if value, ok := fields[field]; ok {
			vars[templateKey] = value
			mapped[field] = true
		}
	}

	for field, value := range fields {
		if !mapped[field] {
			vars[field] = value
		}
	}

	return vars
}

func (d *Dispatcher) publishStarted(ctx context.Context, execution *models.Execution) {
	event := events.ExecutionStarted{
		BaseEvent:       d.baseEvent(events.ExecutionStartedEvent, execution.AutomationID),
		ExecutionID:     execution.ID,
		TotalRecipients: execution.TotalRecipients,
	}

	if err := d.publisher.Publish(ctx, execution.AutomationID, event); err != nil {
		d.logger.Error("Failed to publish execution started", "error", err)
	}
}

func (d *Dispatcher) publishCompleted(ctx context.Context, execution *models.Execution, duration time.Duration) {
	event := events.ExecutionCompleted{
		BaseEvent:      d.baseEvent(events.ExecutionCompletedEvent, execution.AutomationID),
		ExecutionID:    execution.ID,
		Status:         string(execution.Status),
		DeliveredCount: execution.DeliveredCount,
		FailedCount:    execution.FailedCount,
		Duration:       duration,
	}

	if err := d.publisher.Publish(ctx, execution.AutomationID, event); err != nil {
		d.logger.Error("Failed to publish execution completed", "error", err)
	}
}

func (d *Dispatcher) publishFailed(ctx context.Context, execution *models.Execution, cause error) {
	event := events.ExecutionFailed{
		BaseEvent:   d.baseEvent(events.ExecutionFailedEvent, execution.AutomationID),
		ExecutionID: execution.ID,
		Error:       cause.Error(),
	}

	if err := d.publisher.Publish(ctx, execution.AutomationID, event); err != nil {
		d.logger.Error("Failed to publish execution failed", "error", err)
	}
}

func (d *Dispatcher) publishRecipientFailed(ctx context.Context, execution *models.Execution, recipient *models.Recipient, errMessage string) {
	event := events.RecipientFailed{
		BaseEvent:   d.baseEvent(events.RecipientFailedEvent, execution.AutomationID),
		ExecutionID: execution.ID,
		RecipientID: recipient.ID,
		RetryCount:  recipient.RetryCount,
		Error:       errMessage,
	}

	if err := d.publisher.Publish(ctx, execution.AutomationID, event); err != nil {
		d.logger.Error("Failed to publish recipient failed", "error", err)
	}
}

func (d *Dispatcher) baseEvent(eventType events.EventType, automationID string) events.BaseEvent {
	return events.BaseEvent{
		ID:           uuid.New().String(),
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		AutomationID: automationID,
	}
}

// limits are the effective dispatch bounds after applying a modify
// exception's override to the automation's own configuration.
type limits struct {
	rateLimitPerHour int
	maxConcurrent    int
	maxRetries       int
}

func effectiveLimits(automation *models.Automation, override map[string]any) limits {
	l := limits{
		rateLimitPerHour: automation.RateLimitPerHour,
		maxConcurrent:    automation.MaxConcurrentExecutions,
		maxRetries:       automation.MaxRetries,
	}

	if v, ok := overrideInt(override, "rate_limit_per_hour"); ok {
		l.rateLimitPerHour = v
	}

	if v, ok := overrideInt(override, "max_concurrent_executions"); ok {
		l.maxConcurrent = v
	}

	if v, ok := overrideInt(override, "max_retries"); ok {
		l.maxRetries = v
	}

	return l
}

// overrideInt reads an integer override value; JSON decoding delivers
// numbers as float64.
func overrideInt(override map[string]any, key string) (int, bool) {
	switch v := override[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func (l limits) workers(defaultMax int) int {
	if l.maxConcurrent > 0 && l.maxConcurrent < defaultMax {
		return l.maxConcurrent
	}

	return defaultMax
}

func (l limits) limiter(burst int) *rate.Limiter {
	if l.rateLimitPerHour <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}

	return rate.NewLimiter(rate.Limit(float64(l.rateLimitPerHour)/3600.0), burst)
}

// timeoutSender bounds every send call so a hung downstream cannot block
// a worker indefinitely.
type timeoutSender struct {
	inner   protocol.Sender
	timeout time.Duration
}

func (s *timeoutSender) Send(ctx context.Context, channelID string, payload protocol.Payload) (protocol.SendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.inner.Send(ctx, channelID, payload)
}
