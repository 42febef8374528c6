// Package events defines the event types exchanged between the
// scheduler and the dispatcher.
package events

import (
	"time"
)

type EventType string

// Topic is the bus topic every automation event is published on.
const Topic = "outflow.automation.events"

const EventKeyMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// ScheduleDueEvent fires when a schedule's occurrence comes due and
	// this instance won the claim.
	ScheduleDueEvent EventType = "automation.schedule.due"

	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "automation.execution.started"
	ExecutionCompletedEvent EventType = "automation.execution.completed"
	ExecutionFailedEvent    EventType = "automation.execution.failed"

	// RecipientFailedEvent fires when a recipient exhausts its retries.
	RecipientFailedEvent EventType = "automation.recipient.failed"
)

type BaseEvent struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	AutomationID string         `json:"automation_id"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ScheduleDue carries one claimed occurrence to the dispatcher. Override
// is the modify-exception config applied to this firing only.
type ScheduleDue struct {
	BaseEvent

	ScheduleID string         `json:"schedule_id"`
	DueAt      time.Time      `json:"due_at"`
	Override   map[string]any `json:"override,omitempty"`
}

func (e ScheduleDue) GetType() EventType {
	return ScheduleDueEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID     string `json:"execution_id"`
	TotalRecipients int    `json:"total_recipients"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID    string        `json:"execution_id"`
	Status         string        `json:"status"`
	DeliveredCount int           `json:"delivered_count"`
	FailedCount    int           `json:"failed_count"`
	Duration       time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Error       string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type RecipientFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	RecipientID string `json:"recipient_id"`
	RetryCount  int    `json:"retry_count"`
	Error       string `json:"error"`
}

func (e RecipientFailed) GetType() EventType {
	return RecipientFailedEvent
}
