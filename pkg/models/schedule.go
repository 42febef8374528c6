package models

import (
	"time"

	"github.com/robfig/cron/v3"
)

// RecurrenceType selects the rule variant stored in RecurrenceConfig.
type RecurrenceType string

const (
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
	RecurrenceCron    RecurrenceType = "cron"
	RecurrenceCustom  RecurrenceType = "custom"
)

// RecurrenceConfig is the variant payload for a schedule's recurrence
// rule. Only the fields matching the RecurrenceType are consulted.
type RecurrenceConfig struct {
	// Daily/weekly/monthly: every N days/weeks/months. Defaults to 1.
	Interval int `json:"interval,omitempty"`

	// Weekly: weekdays the schedule fires on (time.Weekday values).
	Days []time.Weekday `json:"days,omitempty"`

	// Monthly: day of month. Months without that day clamp to their
	// last valid day instead of skipping.
	Day int `json:"day,omitempty"`

	// Cron: standard 5-field expression (minute hour dom month dow).
	Expression string `json:"expression,omitempty"`

	// Custom: explicit sorted date list, exhausted once passed.
	Dates []time.Time `json:"dates,omitempty"`
}

// Schedule attaches a recurrence rule to an automation. NextScheduledAt
// is a cache recomputed after every firing or edit; it is nil when the
// schedule is exhausted or inactive, and never in the past otherwise.
type Schedule struct {
	ID           string           `json:"id"`
	AutomationID string           `json:"automation_id" validate:"required"`
	Type         RecurrenceType   `json:"recurrence_type" validate:"required,oneof=daily weekly monthly cron custom"`
	Config       RecurrenceConfig `json:"recurrence_config"`

	StartDate    time.Time `json:"start_date"`
	SkipWeekends bool      `json:"skip_weekends"`
	SkipHolidays bool      `json:"skip_holidays"`
	Region       string    `json:"region,omitempty"` // holiday calendar region

	Active          bool       `json:"active"`
	NextScheduledAt *time.Time `json:"next_scheduled_at,omitempty"`
	LastFiredAt     *time.Time `json:"last_fired_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsDue reports whether the schedule should fire at the given instant.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Active && s.NextScheduledAt != nil && !s.NextScheduledAt.After(now)
}

// Validate rejects malformed recurrence rules at save time so they never
// reach the scheduler loop.
func (s *Schedule) Validate() error {
	if s.AutomationID == "" {
		return ErrInvalidSchedule
	}

	switch s.Type {
	case RecurrenceDaily, RecurrenceMonthly:
		if s.Config.Interval < 0 {
			return ErrInvalidSchedule
		}
	case RecurrenceWeekly:
		if len(s.Config.Days) == 0 {
			return ErrInvalidSchedule
		}
	case RecurrenceCron:
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(s.Config.Expression); err != nil {
			return err
		}
	case RecurrenceCustom:
		if len(s.Config.Dates) == 0 {
			return ErrInvalidSchedule
		}
	default:
		return ErrInvalidSchedule
	}

	return nil
}
