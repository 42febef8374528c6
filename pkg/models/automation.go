package models

import "time"

// AudienceType selects how an automation's recipients are computed.
type AudienceType string

const (
	AudienceTypeAll        AudienceType = "all"
	AudienceTypeCustomList AudienceType = "custom-list"
)

// ExecutionWindow restricts the hours of day an automation may fire in.
// Zero value means no restriction.
type ExecutionWindow struct {
	Start string `json:"start,omitempty"` // "HH:MM"
	End   string `json:"end,omitempty"`   // "HH:MM"
}

// Automation is an operator-configured proactive campaign: a flow, an
// audience, and the dispatch limits that govern fan-out. Automations are
// soft-deleted; executions keep referencing them.
type Automation struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"    validate:"required,min=3"`
	FlowID         string         `json:"flow_id" validate:"required"`
	AudienceType   AudienceType   `json:"audience_type" validate:"required,oneof=all custom-list"`
	AudienceConfig map[string]any `json:"audience_config,omitempty"`

	// VariableMapping binds template keys to recipient fields, e.g.
	// "contact.name" -> "name". Applied when recipient contexts are built.
	VariableMapping map[string]string `json:"variable_mapping,omitempty"`

	RateLimitPerHour        int             `json:"rate_limit_per_hour"       validate:"gte=0"`
	MaxConcurrentExecutions int             `json:"max_concurrent_executions" validate:"gte=0"`
	RetryFailed             bool            `json:"retry_failed"`
	MaxRetries              int             `json:"max_retries"               validate:"gte=0"`
	ExecutionWindow         ExecutionWindow `json:"execution_window"`
	Timezone                string          `json:"timezone"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the automation has been soft-deleted.
func (a *Automation) IsDeleted() bool {
	return a.DeletedAt != nil
}

// InWindow reports whether the instant falls inside the automation's
// execution window in its own timezone. An empty window allows any time.
func (a *Automation) InWindow(t time.Time) bool {
	if a.ExecutionWindow.Start == "" || a.ExecutionWindow.End == "" {
		return true
	}

	local := t.In(a.Location())
	clock := local.Format("15:04")

	if a.ExecutionWindow.Start <= a.ExecutionWindow.End {
		return clock >= a.ExecutionWindow.Start && clock <= a.ExecutionWindow.End
	}

	// Window crosses midnight.
	return clock >= a.ExecutionWindow.Start || clock <= a.ExecutionWindow.End
}

// Location resolves the automation's timezone, defaulting to UTC.
func (a *Automation) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}

	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}

	return loc
}
