package schedule

import (
	"fmt"
	"time"
)

// Kind is the categorical shape of a schedule.
type Kind int

const (
	KindUnset Kind = iota
	KindDaily
	KindWeekdays
	KindWeekends
	KindWeekly
	KindMonthly
	KindInterval
	KindOnce
	KindRange
	KindCron
)

func (k Kind) String() string {
	switch k {
	case KindDaily:
		return "daily"
	case KindWeekdays:
		return "weekdays"
	case KindWeekends:
		return "weekends"
	case KindWeekly:
		return "weekly"
	case KindMonthly:
		return "monthly"
	case KindInterval:
		return "interval"
	case KindOnce:
		return "once"
	case KindRange:
		return "range"
	case KindCron:
		return "cron"
	default:
		return "unset"
	}
}

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// On returns the instant at this time-of-day on d's calendar date,
// in d's location.
func (t TimeOfDay) On(d time.Time) time.Time {
	year, month, day := d.Date()
	return time.Date(year, month, day, t.Hour, t.Minute, 0, 0, d.Location())
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// WeekdaySet is a small set of weekdays.
type WeekdaySet uint8

func (s WeekdaySet) Has(d time.Weekday) bool { return s&(1<<uint(d)) != 0 }
func (s *WeekdaySet) Add(d time.Weekday)     { *s |= 1 << uint(d) }
func (s WeekdaySet) Empty() bool             { return s == 0 }

// Days lists the set members in Sunday-first order.
func (s WeekdaySet) Days() []time.Weekday {
	var out []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// Date is a calendar date without a time component.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// At returns the instant at the given time-of-day on this date.
func (d Date) At(t TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, 0, 0, loc)
}

// Config is the structured form of one schedule string. It is produced once
// by Parse and read-only thereafter. Kind is always set after a successful
// parse; every other field defaults to unset and Next applies documented
// fallbacks.
type Config struct {
	Kind Kind

	// Time applies to every kind; unset means "now's time-of-day at each
	// evaluation".
	Time *TimeOfDay

	// Weekly.
	Days WeekdaySet

	// Monthly. The parser sets these by pattern-match priority, not mutual
	// exclusion; Next picks the first that is set.
	DayOfMonth          int
	LastDayOfMonth      bool
	FirstWeekdayOfMonth *time.Weekday
	LastWeekdayOfMonth  *time.Weekday

	// Interval.
	Interval time.Duration

	// Once.
	Date *Date

	// Range.
	Start         *TimeOfDay
	End           *TimeOfDay
	RangeInterval time.Duration

	// Cron. The expression is handed to the scheduler's cron parser; this
	// package does not interpret it.
	CronExpr string
}
