package models

import "time"

// ExecutionStatus is the lifecycle state of one automation run.
type ExecutionStatus string

const (
	ExecutionStatusPending    ExecutionStatus = "pending"
	ExecutionStatusRunning    ExecutionStatus = "running"
	ExecutionStatusCompleted  ExecutionStatus = "completed"
	ExecutionStatusPartial    ExecutionStatus = "partial"
	ExecutionStatusFailed     ExecutionStatus = "failed"
	ExecutionStatusCancelling ExecutionStatus = "cancelling"
	ExecutionStatusCancelled  ExecutionStatus = "cancelled"
)

// Execution is one run of an automation, created when the dispatcher
// begins fan-out. The execution row (not the step logs) is the source of
// truth for pass/fail counts.
type Execution struct {
	ID           string `json:"id"`
	AutomationID string `json:"automation_id"`
	FlowID       string `json:"flow_id"`
	FlowVersion  int    `json:"flow_version"`

	Status          ExecutionStatus `json:"status"`
	TotalRecipients int             `json:"total_recipients"`
	SentCount       int             `json:"sent_count"`
	DeliveredCount  int             `json:"delivered_count"`
	FailedCount     int             `json:"failed_count"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsTerminal reports whether the execution reached a final state.
func (e *Execution) IsTerminal() bool {
	switch e.Status {
	case ExecutionStatusCompleted, ExecutionStatusPartial, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// RecipientStatus is the lifecycle state of one audience member within
// an execution.
type RecipientStatus string

const (
	RecipientStatusPending   RecipientStatus = "pending"
	RecipientStatusSent      RecipientStatus = "sent"
	RecipientStatusDelivered RecipientStatus = "delivered"
	RecipientStatusFailed    RecipientStatus = "failed"
)

// Recipient is one resolved audience member's outcome record. Variables
// holds the context snapshot the interpreter ran against, so a run can be
// replayed or debugged from the record alone.
type Recipient struct {
	ID          string `json:"id"`
	ExecutionID string `json:"execution_id"`
	ChannelID   string `json:"channel_id"`

	Variables map[string]any `json:"variables,omitempty"`

	Status            RecipientStatus `json:"status"`
	RetryCount        int             `json:"retry_count"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	ExternalMessageID string          `json:"external_message_id,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

// IsTerminal reports whether the recipient reached a final state.
func (r *Recipient) IsTerminal() bool {
	return r.Status == RecipientStatusDelivered || r.Status == RecipientStatusFailed
}
