// Package recurrence computes next occurrence times for schedules. The
// calculator is pure: the same schedule state always yields the same
// occurrence, which is what keeps the preview endpoint and actual firing
// in lockstep.
package recurrence

import (
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/outflowhq/outflow/pkg/models"
	"github.com/outflowhq/outflow/pkg/protocol"
)

// maxAdvances bounds the filter loop so a "skip everything forever"
// misconfiguration yields no occurrence instead of hanging.
const maxAdvances = 366

// Occurrence is one qualifying firing time. Override carries the partial
// config from a matching modify exception through to the dispatcher.
type Occurrence struct {
	At       time.Time
	Override map[string]any
}

type Calculator struct {
	calendar protocol.HolidayCalendar
}

func NewCalculator(calendar protocol.HolidayCalendar) *Calculator {
	if calendar == nil {
		calendar = protocol.NoHolidays{}
	}

	return &Calculator{calendar: calendar}
}

// Next returns the first qualifying occurrence strictly after the given
// time, or ok=false when the schedule is exhausted or every candidate
// within the advance cap was filtered out.
func (c *Calculator) Next(s *models.Schedule, after time.Time, exceptions []*models.Exception) (Occurrence, bool) {
	candidate, ok := c.rawNext(s, after)

	for advances := 0; ok && advances < maxAdvances; advances++ {
		if s.SkipWeekends && isWeekend(candidate) {
			candidate, ok = c.rawNext(s, candidate)

			continue
		}

		if s.SkipHolidays && c.calendar.IsHoliday(candidate, s.Region) {
			candidate, ok = c.rawNext(s, candidate)

			continue
		}

		exc := matchException(exceptions, candidate)
		if exc != nil {
			switch exc.Type {
			case models.ExceptionSkip:
				candidate, ok = c.rawNext(s, candidate)

				continue
			case models.ExceptionReschedule:
				// The replacement time is used as-is; it is not run
				// back through the filter chain for its own slot. Once
				// the replacement has passed, the covered candidate is
				// spent and the scan advances past it like a skip.
				if exc.RescheduledTo.After(after) {
					return Occurrence{At: *exc.RescheduledTo}, true
				}

				candidate, ok = c.rawNext(s, candidate)

				continue
			case models.ExceptionModify:
				return Occurrence{At: candidate, Override: exc.Override}, true
			}
		}

		return Occurrence{At: candidate}, true
	}

	return Occurrence{}, false
}

// Preview returns up to count upcoming occurrence times within the
// horizon. It runs the exact code path production firing uses, including
// the schedule's exceptions.
func (c *Calculator) Preview(s *models.Schedule, after time.Time, count int, horizon time.Duration, exceptions []*models.Exception) []time.Time {
	limit := after.Add(horizon)

	var out []time.Time

	cursor := after
	for len(out) < count {
		occ, ok := c.Next(s, cursor, exceptions)
		if !ok || occ.At.After(limit) {
			break
		}

		out = append(out, occ.At)
		cursor = occ.At
	}

	return out
}

// rawNext generates the next candidate strictly after the given time from
// the base rule, before any filtering.
func (c *Calculator) rawNext(s *models.Schedule, after time.Time) (time.Time, bool) {
	if !s.StartDate.IsZero() && after.Before(s.StartDate) {
		// Back up so the first candidate at or after StartDate is
		// produced.
		after = s.StartDate.Add(-time.Second)
	}

	switch s.Type {
	case models.RecurrenceDaily:
		return nextDaily(s, after)
	case models.RecurrenceWeekly:
		return nextWeekly(s, after)
	case models.RecurrenceMonthly:
		return nextMonthly(s, after)
	case models.RecurrenceCron:
		return nextCron(s, after)
	case models.RecurrenceCustom:
		return nextCustom(s, after)
	default:
		return time.Time{}, false
	}
}

func nextDaily(s *models.Schedule, after time.Time) (time.Time, bool) {
	interval := s.Config.Interval
	if interval <= 0 {
		interval = 1
	}

	start := s.StartDate
	if start.IsZero() {
		start = after
	}

	if start.After(after) {
		return start, true
	}

	elapsed := int(after.Sub(start).Hours() / 24)
	steps := elapsed/interval + 1

	candidate := start.AddDate(0, 0, steps*interval)
	for !candidate.After(after) {
		candidate = candidate.AddDate(0, 0, interval)
	}

	return candidate, true
}

func nextWeekly(s *models.Schedule, after time.Time) (time.Time, bool) {
	if len(s.Config.Days) == 0 {
		return time.Time{}, false
	}

	interval := s.Config.Interval
	if interval <= 0 {
		interval = 1
	}

	days := make(map[time.Weekday]bool, len(s.Config.Days))
	for _, d := range s.Config.Days {
		days[d] = true
	}

	start := s.StartDate
	if start.IsZero() {
		start = after
	}

	// Walk day by day at the schedule's start-of-day clock, matching
	// configured weekdays in qualifying weeks.
	candidate := atClock(after, start)
	if start.After(after) {
		candidate = start
	}

	for scanned := 0; scanned < 7*interval*maxAdvances; scanned++ {
		if days[candidate.Weekday()] && weeksBetween(start, candidate)%interval == 0 && candidate.After(after) {
			return candidate, true
		}

		candidate = candidate.AddDate(0, 0, 1)
	}

	return time.Time{}, false
}

func nextMonthly(s *models.Schedule, after time.Time) (time.Time, bool) {
	interval := s.Config.Interval
	if interval <= 0 {
		interval = 1
	}

	day := s.Config.Day
	if day <= 0 {
		day = 1
	}

	start := s.StartDate
	if start.IsZero() {
		start = after
	}

	year, month, _ := start.Date()

	for step := 0; step < maxAdvances; step++ {
		m := time.Date(year, month, 1, start.Hour(), start.Minute(), 0, 0, start.Location()).AddDate(0, step*interval, 0)

		// Clamp to the month's last valid day rather than skipping
		// the month (e.g. day 31 in February fires on the 28th/29th).
		dom := day
		if last := lastDayOfMonth(m); dom > last {
			dom = last
		}

		candidate := time.Date(m.Year(), m.Month(), dom, start.Hour(), start.Minute(), 0, 0, start.Location())
		if candidate.After(after) && !candidate.Before(start) {
			return candidate, true
		}
	}

	return time.Time{}, false
}

func nextCron(s *models.Schedule, after time.Time) (time.Time, bool) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	schedule, err := parser.Parse(s.Config.Expression)
	if err != nil {
		return time.Time{}, false
	}

	next := schedule.Next(after)
	if next.IsZero() {
		return time.Time{}, false
	}

	return next, true
}

func nextCustom(s *models.Schedule, after time.Time) (time.Time, bool) {
	dates := make([]time.Time, len(s.Config.Dates))
	copy(dates, s.Config.Dates)
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	for _, d := range dates {
		if d.After(after) {
			return d, true
		}
	}

	// Exhausted once the last date is passed.
	return time.Time{}, false
}

// OverrideFor returns the modify-exception override applying to an
// already-computed occurrence time, if any. The scheduler uses it at
// firing time since the cached next_scheduled_at stores only the
// timestamp.
func OverrideFor(exceptions []*models.Exception, at time.Time) map[string]any {
	exc := matchException(exceptions, at)
	if exc == nil || exc.Type != models.ExceptionModify {
		return nil
	}

	return exc.Override
}

// matchException returns the exception covering the candidate, ties
// broken by most recent creation.
func matchException(exceptions []*models.Exception, candidate time.Time) *models.Exception {
	var match *models.Exception

	for _, e := range exceptions {
		if !e.Contains(candidate) {
			continue
		}

		if match == nil || e.CreatedAt.After(match.CreatedAt) {
			match = e
		}
	}

	return match
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

func lastDayOfMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, -1).Day()
}

// atClock returns t's date at the reference time's clock.
func atClock(t, ref time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), ref.Hour(), ref.Minute(), 0, 0, ref.Location())
}

// weeksBetween counts whole weeks between the start of a's week and b.
func weeksBetween(a, b time.Time) int {
	a = startOfWeek(a)
	b = startOfWeek(b)

	return int(b.Sub(a).Hours() / (24 * 7))
}

func startOfWeek(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7 // Monday-based weeks

	return day.AddDate(0, 0, -offset)
}
