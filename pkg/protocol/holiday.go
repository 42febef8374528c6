package protocol

import "time"

// HolidayCalendar answers whether a date is a holiday in a region. The
// recurrence calculator consults it when a schedule sets skip_holidays.
type HolidayCalendar interface {
	IsHoliday(date time.Time, region string) bool
}

// NoHolidays is a calendar with no entries. Used as the default when no
// calendar is wired and by tests that do not exercise holiday skipping.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(time.Time, string) bool { return false }
