// Package web provides HTTP request and response types for the
// automation API.
package web

import "github.com/outflowhq/outflow/pkg/models"

// CreateFlowRequest represents the request body for creating a flow.
type CreateFlowRequest struct {
	Name        string             `json:"name"        validate:"required,min=3"`
	Description string             `json:"description"`
	Nodes       []*models.FlowNode `json:"nodes"`
	Edges       []*models.Edge     `json:"edges"`
}

func (r CreateFlowRequest) toModel() *models.Flow {
	return &models.Flow{
		Name:        r.Name,
		Description: r.Description,
		Nodes:       r.Nodes,
		Edges:       r.Edges,
	}
}

// FlowResponse wraps a saved flow with the non-fatal validation
// warnings produced while saving it.
type FlowResponse struct {
	Flow     *models.Flow `json:"flow"`
	Warnings []string     `json:"warnings,omitempty"`
}

// CreateAutomationRequest represents the request body for creating an
// automation.
type CreateAutomationRequest struct {
	Name                    string                 `json:"name"          validate:"required,min=3"`
	FlowID                  string                 `json:"flow_id"       validate:"required"`
	AudienceType            models.AudienceType    `json:"audience_type" validate:"required,oneof=all custom-list"`
	AudienceConfig          map[string]any         `json:"audience_config,omitempty"`
	VariableMapping         map[string]string      `json:"variable_mapping,omitempty"`
	RateLimitPerHour        int                    `json:"rate_limit_per_hour"`
	MaxConcurrentExecutions int                    `json:"max_concurrent_executions"`
	RetryFailed             bool                   `json:"retry_failed"`
	MaxRetries              int                    `json:"max_retries"`
	ExecutionWindow         models.ExecutionWindow `json:"execution_window"`
	Timezone                string                 `json:"timezone"`
}

func (r CreateAutomationRequest) toModel() *models.Automation {
	return &models.Automation{
		Name:                    r.Name,
		FlowID:                  r.FlowID,
		AudienceType:            r.AudienceType,
		AudienceConfig:          r.AudienceConfig,
		VariableMapping:         r.VariableMapping,
		RateLimitPerHour:        r.RateLimitPerHour,
		MaxConcurrentExecutions: r.MaxConcurrentExecutions,
		RetryFailed:             r.RetryFailed,
		MaxRetries:              r.MaxRetries,
		ExecutionWindow:         r.ExecutionWindow,
		Timezone:                r.Timezone,
	}
}

// CreateScheduleRequest represents the request body for creating a
// schedule.
type CreateScheduleRequest struct {
	AutomationID string                  `json:"automation_id"    validate:"required"`
	Type         models.RecurrenceType   `json:"recurrence_type"  validate:"required"`
	Config       models.RecurrenceConfig `json:"recurrence_config"`
	StartDate    string                  `json:"start_date,omitempty"` // RFC 3339
	SkipWeekends bool                    `json:"skip_weekends"`
	SkipHolidays bool                    `json:"skip_holidays"`
	Region       string                  `json:"region,omitempty"`
}

// CreateExceptionRequest represents the request body for attaching an
// exception to a schedule.
type CreateExceptionRequest struct {
	Type          models.ExceptionType `json:"type"       validate:"required,oneof=skip modify reschedule"`
	StartDate     string               `json:"start_date" validate:"required"` // RFC 3339
	EndDate       string               `json:"end_date"   validate:"required"` // RFC 3339
	Override      map[string]any       `json:"override,omitempty"`
	RescheduledTo string               `json:"rescheduled_to,omitempty"` // RFC 3339
}

// ExecutionResponse pairs an execution with its recipient records.
type ExecutionResponse struct {
	Execution  *models.Execution   `json:"execution"`
	Recipients []*models.Recipient `json:"recipients"`
}
