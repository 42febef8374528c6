package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outflowhq/outflow/pkg/models"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func dailySchedule(start time.Time, interval int) *models.Schedule {
	return &models.Schedule{
		Type:      models.RecurrenceDaily,
		Config:    models.RecurrenceConfig{Interval: interval},
		StartDate: start,
		Active:    true,
	}
}

func TestNext_DailyInterval(t *testing.T) {
	calc := NewCalculator(nil)
	s := dailySchedule(date(2025, 11, 4, 9, 0), 2)

	occ, ok := calc.Next(s, date(2025, 11, 4, 9, 0), nil)

	require.True(t, ok)
	assert.Equal(t, date(2025, 11, 6, 9, 0), occ.At)
}

func TestNext_BeforeStartDateReturnsStart(t *testing.T) {
	calc := NewCalculator(nil)
	s := dailySchedule(date(2025, 11, 4, 9, 0), 1)

	occ, ok := calc.Next(s, date(2025, 10, 1, 0, 0), nil)

	require.True(t, ok)
	assert.Equal(t, date(2025, 11, 4, 9, 0), occ.At)
}

func TestNext_SkipWeekends_SaturdayRollsToMonday(t *testing.T) {
	calc := NewCalculator(nil)
	s := dailySchedule(date(2025, 11, 1, 9, 0), 1) // 2025-11-01 is a Saturday
	s.SkipWeekends = true

	occ, ok := calc.Next(s, date(2025, 10, 31, 0, 0), nil)

	require.True(t, ok)
	assert.Equal(t, date(2025, 11, 3, 9, 0), occ.At) // Monday
	assert.Equal(t, time.Monday, occ.At.Weekday())
}

type weekdayHolidays struct{ holiday time.Time }

func (h weekdayHolidays) IsHoliday(d time.Time, _ string) bool {
	return d.Year() == h.holiday.Year() && d.YearDay() == h.holiday.YearDay()
}

func TestNext_SkipHolidays(t *testing.T) {
	calc := NewCalculator(weekdayHolidays{holiday: date(2025, 11, 5, 0, 0)})
	s := dailySchedule(date(2025, 11, 4, 9, 0), 1)
	s.SkipHolidays = true

	occ, ok := calc.Next(s, date(2025, 11, 4, 10, 0), nil)

	require.True(t, ok)
	assert.Equal(t, date(2025, 11, 6, 9, 0), occ.At)
}

func TestNext_WeeklyPicksNextConfiguredDay(t *testing.T) {
	calc := NewCalculator(nil)
	s := &models.Schedule{
		Type: models.RecurrenceWeekly,
		Config: models.RecurrenceConfig{
			Days: []time.Weekday{time.Monday, time.Thursday},
		},
		StartDate: date(2025, 11, 3, 14, 30), // Monday
		Active:    true,
	}

	occ, ok := calc.Next(s, date(2025, 11, 3, 15, 0), nil)

	require.True(t, ok)
	assert.Equal(t, date(2025, 11, 6, 14, 30), occ.At) // Thursday

	occ, ok = calc.Next(s, occ.At, nil)

	require.True(t, ok)
	assert.Equal(t, date(2025, 11, 10, 14, 30), occ.At) // next Monday
}

func TestNext_MonthlyClampsToLastValidDay(t *testing.T) {
	calc := NewCalculator(nil)
	s := &models.Schedule{
		Type:      models.RecurrenceMonthly,
		Config:    models.RecurrenceConfig{Day: 31},
		StartDate: date(2026, 1, 31, 8, 0),
		Active:    true,
	}

	occ, ok := calc.Next(s, date(2026, 2, 1, 0, 0), nil)

	require.True(t, ok)
	assert.Equal(t, date(2026, 2, 28, 8, 0), occ.At) // Feb 2026 has 28 days

	occ, ok = calc.Next(s, occ.At, nil)

	require.True(t, ok)
	assert.Equal(t, date(2026, 3, 31, 8, 0), occ.At)
}

func TestNext_CronExpression(t *testing.T) {
	calc := NewCalculator(nil)
	s := &models.Schedule{
		Type:   models.RecurrenceCron,
		Config: models.RecurrenceConfig{Expression: "0 9 * * 1-5"},
		Active: true,
	}

	occ, ok := calc.Next(s, date(2025, 11, 7, 10, 0), nil) // Friday 10:00

	require.True(t, ok)
	assert.Equal(t, date(2025, 11, 10, 9, 0), occ.At) // Monday 09:00
}

func TestNext_CustomListExhausts(t *testing.T) {
	calc := NewCalculator(nil)
	s := &models.Schedule{
		Type: models.RecurrenceCustom,
		Config: models.RecurrenceConfig{
			Dates: []time.Time{date(2025, 11, 5, 9, 0), date(2025, 11, 12, 9, 0)},
		},
		Active: true,
	}

	occ, ok := calc.Next(s, date(2025, 11, 1, 0, 0), nil)
	require.True(t, ok)
	assert.Equal(t, date(2025, 11, 5, 9, 0), occ.At)

	occ, ok = calc.Next(s, occ.At, nil)
	require.True(t, ok)
	assert.Equal(t, date(2025, 11, 12, 9, 0), occ.At)

	_, ok = calc.Next(s, occ.At, nil)
	assert.False(t, ok)
}

func TestNext_SkipExceptionRemovesExactlyOneOccurrence(t *testing.T) {
	calc := NewCalculator(nil)
	s := dailySchedule(date(2025, 11, 4, 9, 0), 1)

	exceptions := []*models.Exception{{
		Type:      models.ExceptionSkip,
		StartDate: date(2025, 11, 5, 0, 0),
		EndDate:   date(2025, 11, 5, 23, 59),
		CreatedAt: date(2025, 11, 1, 0, 0),
	}}

	occ, ok := calc.Next(s, date(2025, 11, 4, 10, 0), exceptions)

	require.True(t, ok)
	assert.Equal(t, date(2025, 11, 6, 9, 0), occ.At)
}

func TestNext_ModifyExceptionKeepsTimestampCarriesOverride(t *testing.T) {
	calc := NewCalculator(nil)
	s := dailySchedule(date(2025, 11, 4, 9, 0), 1)

	exceptions := []*models.Exception{{
		Type:      models.ExceptionModify,
		StartDate: date(2025, 11, 5, 0, 0),
		EndDate:   date(2025, 11, 5, 23, 59),
		Override:  map[string]any{"rate_limit_per_hour": 100},
		CreatedAt: date(2025, 11, 1, 0, 0),
	}}

	occ, ok := calc.Next(s, date(2025, 11, 4, 10, 0), exceptions)

	require.True(t, ok)
	assert.Equal(t, date(2025, 11, 5, 9, 0), occ.At)
	assert.Equal(t, map[string]any{"rate_limit_per_hour": 100}, occ.Override)
}

func TestNext_RescheduleExceptionReplacesTimestamp(t *testing.T) {
	calc := NewCalculator(nil)
	s := dailySchedule(date(2025, 11, 4, 9, 0), 1)

	rescheduled := date(2025, 11, 5, 15, 0)
	exceptions := []*models.Exception{{
		Type:          models.ExceptionReschedule,
		StartDate:     date(2025, 11, 5, 0, 0),
		EndDate:       date(2025, 11, 5, 23, 59),
		RescheduledTo: &rescheduled,
		CreatedAt:     date(2025, 11, 1, 0, 0),
	}}

	occ, ok := calc.Next(s, date(2025, 11, 4, 10, 0), exceptions)

	require.True(t, ok)
	assert.Equal(t, rescheduled, occ.At)
	assert.Nil(t, occ.Override)
}

func TestNext_RescheduleRangeAlreadyFiredAdvancesPastIt(t *testing.T) {
	calc := NewCalculator(nil)
	s := dailySchedule(date(2025, 11, 1, 9, 0), 1)

	// A three-day range rescheduled to a single time. After that time has
	// fired, every remaining base occurrence in the range is consumed.
	rescheduled := date(2025, 11, 2, 8, 0)
	exceptions := []*models.Exception{{
		Type:          models.ExceptionReschedule,
		StartDate:     date(2025, 11, 2, 0, 0),
		EndDate:       date(2025, 11, 4, 23, 59),
		RescheduledTo: &rescheduled,
		CreatedAt:     date(2025, 11, 1, 0, 0),
	}}

	occ, ok := calc.Next(s, rescheduled, exceptions)

	require.True(t, ok)
	assert.True(t, occ.At.After(rescheduled))
	assert.Equal(t, date(2025, 11, 5, 9, 0), occ.At)
}

func TestNext_WeeklySameDayLaterClock(t *testing.T) {
	calc := NewCalculator(nil)
	s := &models.Schedule{
		Type: models.RecurrenceWeekly,
		Config: models.RecurrenceConfig{
			Days: []time.Weekday{time.Monday},
		},
		StartDate: date(2025, 11, 3, 9, 0), // Monday
		Active:    true,
	}

	occ, ok := calc.Next(s, date(2025, 11, 10, 8, 0), nil) // Monday 08:00

	require.True(t, ok)
	assert.Equal(t, date(2025, 11, 10, 9, 0), occ.At) // same Monday 09:00
}

func TestNext_MostRecentlyCreatedExceptionWins(t *testing.T) {
	calc := NewCalculator(nil)
	s := dailySchedule(date(2025, 11, 4, 9, 0), 1)

	exceptions := []*models.Exception{
		{
			Type:      models.ExceptionSkip,
			StartDate: date(2025, 11, 5, 0, 0),
			EndDate:   date(2025, 11, 5, 23, 59),
			CreatedAt: date(2025, 11, 1, 0, 0),
		},
		{
			Type:      models.ExceptionModify,
			StartDate: date(2025, 11, 5, 0, 0),
			EndDate:   date(2025, 11, 5, 23, 59),
			Override:  map[string]any{"max_retries": 1},
			CreatedAt: date(2025, 11, 2, 0, 0),
		},
	}

	occ, ok := calc.Next(s, date(2025, 11, 4, 10, 0), exceptions)

	require.True(t, ok)
	assert.Equal(t, date(2025, 11, 5, 9, 0), occ.At)
	assert.Equal(t, map[string]any{"max_retries": 1}, occ.Override)
}

func TestNext_SkipEverythingForeverHitsAdvanceCap(t *testing.T) {
	calc := NewCalculator(nil)
	s := dailySchedule(date(2025, 11, 4, 9, 0), 1)

	exceptions := []*models.Exception{{
		Type:      models.ExceptionSkip,
		StartDate: date(2025, 1, 1, 0, 0),
		EndDate:   date(2030, 1, 1, 0, 0),
		CreatedAt: date(2025, 11, 1, 0, 0),
	}}

	_, ok := calc.Next(s, date(2025, 11, 4, 10, 0), exceptions)

	assert.False(t, ok)
}

func TestPreview_MatchesSequentialNextCalls(t *testing.T) {
	calc := NewCalculator(nil)
	s := dailySchedule(date(2025, 11, 3, 9, 0), 1)
	s.SkipWeekends = true

	after := date(2025, 11, 3, 10, 0)
	preview := calc.Preview(s, after, 5, 30*24*time.Hour, nil)

	require.Len(t, preview, 5)

	cursor := after
	for i := range 5 {
		occ, ok := calc.Next(s, cursor, nil)
		require.True(t, ok)
		assert.Equal(t, occ.At, preview[i], "preview index %d drifted from firing", i)
		cursor = occ.At
	}
}

func TestPreview_HonorsHorizon(t *testing.T) {
	calc := NewCalculator(nil)
	s := dailySchedule(date(2025, 11, 3, 9, 0), 1)

	preview := calc.Preview(s, date(2025, 11, 3, 10, 0), 100, 3*24*time.Hour, nil)

	assert.Len(t, preview, 3)
}
