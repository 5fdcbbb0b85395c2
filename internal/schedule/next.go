package schedule

import "time"

// defaultHorizon is the fallback when a config carries no usable constraint.
const defaultHorizon = time.Hour

// Next computes the next fire instant strictly after now (except for the
// documented monthly degenerate fallback, which can resolve to a past
// instant when no sub-rule is set). It is pure and never fails: missing
// fields fall back to a default horizon.
//
// KindCron is not resolved here; the scheduler computes cron occurrences
// with its own parser. Next treats it like KindUnset.
func Next(cfg Config, now time.Time) time.Time {
	switch cfg.Kind {
	case KindDaily:
		return nextDaily(cfg, now)
	case KindWeekdays:
		return nextOnDays(cfg, now, weekendSet)
	case KindWeekends:
		return nextOnDays(cfg, now, weekdaySet)
	case KindWeekly:
		return nextWeekly(cfg, now)
	case KindMonthly:
		return nextMonthly(cfg, now)
	case KindInterval:
		if cfg.Interval > 0 {
			return now.Add(cfg.Interval)
		}
		return now.Add(defaultHorizon)
	case KindOnce:
		return nextOnce(cfg, now)
	case KindRange:
		return nextRange(cfg, now)
	default:
		return now.Add(defaultHorizon)
	}
}

// targetTime resolves the wall-clock target: the configured time, or now's
// own time-of-day when unset.
func targetTime(cfg Config, now time.Time) TimeOfDay {
	if cfg.Time != nil {
		return *cfg.Time
	}
	return TimeOfDay{Hour: now.Hour(), Minute: now.Minute()}
}

func nextDaily(cfg Config, now time.Time) time.Time {
	candidate := targetTime(cfg, now).On(now)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

var (
	weekendSet = func() WeekdaySet { var s WeekdaySet; s.Add(time.Saturday); s.Add(time.Sunday); return s }()
	weekdaySet = func() WeekdaySet {
		var s WeekdaySet
		for d := time.Monday; d <= time.Friday; d++ {
			s.Add(d)
		}
		return s
	}()
)

// nextOnDays walks forward one day at a time until the candidate is in the
// future and not on an excluded weekday. The loop is bounded: it advances at
// most eight days.
func nextOnDays(cfg Config, now time.Time, exclude WeekdaySet) time.Time {
	candidate := targetTime(cfg, now).On(now)
	for !candidate.After(now) || exclude.Has(candidate.Weekday()) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func nextWeekly(cfg Config, now time.Time) time.Time {
	if cfg.Days.Empty() {
		return now.AddDate(0, 0, 1)
	}
	candidate := targetTime(cfg, now).On(now)
	for !candidate.After(now) || !cfg.Days.Has(candidate.Weekday()) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// nextMonthly resolves the target date by sub-rule priority: last day of
// month, then explicit day (clamped to the month's length), then first
// weekday, then last weekday. With no sub-rule set the target date is today
// (degenerate fallback, kept for compatibility). Advancing a stale
// candidate clamps rather than normalizes, so Jan 31 steps to Feb 28/29.
func nextMonthly(cfg Config, now time.Time) time.Time {
	year, month, _ := now.Date()
	day := now.Day()

	switch {
	case cfg.LastDayOfMonth:
		day = daysIn(year, month)
	case cfg.DayOfMonth > 0:
		day = min(cfg.DayOfMonth, daysIn(year, month))
	case cfg.FirstWeekdayOfMonth != nil:
		day = firstInMonth(year, month, *cfg.FirstWeekdayOfMonth)
	case cfg.LastWeekdayOfMonth != nil:
		day = lastInMonth(year, month, *cfg.LastWeekdayOfMonth)
	}

	tod := targetTime(cfg, now)
	candidate := time.Date(year, month, day, tod.Hour, tod.Minute, 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = addMonths(candidate, 1)
	}
	return candidate
}

func nextOnce(cfg Config, now time.Time) time.Time {
	if cfg.Date != nil {
		return cfg.Date.At(targetTime(cfg, now), now.Location())
	}
	return now.Add(time.Minute)
}

func nextRange(cfg Config, now time.Time) time.Time {
	if cfg.Start != nil && cfg.End != nil {
		start := cfg.Start.On(now)
		end := cfg.End.On(now)

		switch {
		case now.Before(start):
			return start
		case now.After(end):
			return start.AddDate(0, 0, 1)
		case cfg.RangeInterval > 0:
			return now.Add(cfg.RangeInterval)
		}
	}
	return now.Add(defaultHorizon)
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// firstInMonth returns the day-of-month of the first occurrence of weekday.
func firstInMonth(year int, month time.Month, weekday time.Weekday) int {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	return 1 + offset
}

// lastInMonth returns the day-of-month of the last occurrence of weekday.
func lastInMonth(year int, month time.Month, weekday time.Weekday) int {
	last := daysIn(year, month)
	lastWd := time.Date(year, month, last, 0, 0, 0, 0, time.UTC).Weekday()
	offset := (int(lastWd) - int(weekday) + 7) % 7
	return last - offset
}

// addMonths steps by whole months with day-of-month clamping, so Jan 31
// plus one month is Feb 28 (or 29). time.Time.AddDate would normalize and
// roll into March instead.
func addMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	total := year*12 + int(month) - 1 + n
	y := total / 12
	m := time.Month(total%12 + 1)
	d := min(day, daysIn(y, m))
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
