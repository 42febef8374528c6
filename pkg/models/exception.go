package models

import "time"

// ExceptionType selects how an exception alters a matching occurrence.
type ExceptionType string

const (
	ExceptionSkip       ExceptionType = "skip"
	ExceptionModify     ExceptionType = "modify"
	ExceptionReschedule ExceptionType = "reschedule"
)

// Exception is a date-ranged override against a schedule's base
// recurrence. When several exceptions cover the same occurrence the most
// recently created one wins.
type Exception struct {
	ID         string        `json:"id"`
	ScheduleID string        `json:"schedule_id" validate:"required"`
	Type       ExceptionType `json:"type"        validate:"required,oneof=skip modify reschedule"`
	StartDate  time.Time     `json:"start_date"`
	EndDate    time.Time     `json:"end_date"`

	// Override carries a partial config replacement for modify
	// exceptions (e.g. an alternate rate limit for a holiday week).
	Override map[string]any `json:"override,omitempty"`

	// RescheduledTo is the replacement timestamp for reschedule
	// exceptions.
	RescheduledTo *time.Time `json:"rescheduled_to,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Contains reports whether the candidate falls inside the exception's
// date range (inclusive on both ends).
func (e *Exception) Contains(t time.Time) bool {
	return !t.Before(e.StartDate) && !t.After(e.EndDate)
}

// Validate rejects malformed exceptions at save time.
func (e *Exception) Validate() error {
	if e.ScheduleID == "" || e.EndDate.Before(e.StartDate) {
		return ErrInvalidException
	}

	if e.Type == ExceptionReschedule && e.RescheduledTo == nil {
		return ErrInvalidException
	}

	return nil
}
