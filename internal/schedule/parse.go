package schedule

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	reTime     = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	reDate     = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	reInterval = regexp.MustCompile(`EVERY (\d+) (DAYS?|HOURS?|MINUTES?|MIN)`)
	reRange    = regexp.MustCompile(`BETWEEN (\d{1,2}):(\d{2})-(\d{1,2}):(\d{2})`)
)

// Parse turns a schedule string into a Config. It is total: malformed input
// never fails, it yields a Config with KindUnset which registration rejects.
func Parse(raw string) Config {
	trimmed := strings.TrimSpace(raw)
	s := strings.ToUpper(trimmed)

	var cfg Config

	// The time scan runs before and independently of the kind dispatch, so
	// every branch may carry a wall-clock time. An out-of-range match
	// (e.g. "99:99") is ignored rather than failing the parse.
	if m := reTime.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour <= 23 && minute <= 59 {
			cfg.Time = &TimeOfDay{Hour: hour, Minute: minute}
		}
	}

	switch {
	case strings.HasPrefix(s, "EVERYDAY"):
		cfg.Kind = KindDaily
	case strings.HasPrefix(s, "WEEKDAYS"):
		cfg.Kind = KindWeekdays
	case strings.HasPrefix(s, "WEEKENDS"):
		cfg.Kind = KindWeekends
	case strings.Contains(s, "EVERY") && strings.Contains(s, "@"):
		parseWeekly(s, &cfg)
	case strings.Contains(s, "EVERY") && containsAny(s, "ST", "ND", "TH"):
		parseMonthly(s, &cfg)
	case reInterval.MatchString(s):
		parseInterval(s, &cfg)
	case strings.HasPrefix(s, "ONCE"):
		parseOnce(s, &cfg)
	case strings.Contains(s, "BETWEEN"):
		parseRange(s, &cfg)
	case strings.HasPrefix(s, "CRON "):
		cfg.Kind = KindCron
		// Keep the expression's original case: cron descriptors such as
		// "@every 5m" are case-sensitive.
		cfg.CronExpr = strings.TrimSpace(trimmed[len("CRON "):])
	}

	return cfg
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// parseWeekly collects every three-letter weekday abbreviation found
// anywhere in the string. The search is substring-based, not word-boundary
// aware: "SUNDAY" matches SUN, and so would a coincidental substring.
func parseWeekly(s string, cfg *Config) {
	cfg.Kind = KindWeekly

	for abbr, day := range weekdayAbbrs {
		if strings.Contains(s, abbr) {
			cfg.Days.Add(day)
		}
	}
}

var weekdayAbbrs = map[string]time.Weekday{
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
	"SAT": time.Saturday,
	"SUN": time.Sunday,
}

// parseMonthly applies the first matching sub-rule only. Note that "1ST" is
// checked before "1ST MON", so "EVERY 1ST MON" resolves to day 1, never to
// first-Monday; the order is part of the grammar surface.
func parseMonthly(s string, cfg *Config) {
	cfg.Kind = KindMonthly

	switch {
	case strings.Contains(s, "1ST"):
		cfg.DayOfMonth = 1
	case strings.Contains(s, "15TH"):
		cfg.DayOfMonth = 15
	case strings.Contains(s, "LAST DAY"):
		cfg.LastDayOfMonth = true
	case strings.Contains(s, "1ST MON"):
		cfg.FirstWeekdayOfMonth = weekdayPtr(time.Monday)
	case strings.Contains(s, "LAST FRI"):
		cfg.LastWeekdayOfMonth = weekdayPtr(time.Friday)
	}
}

func weekdayPtr(d time.Weekday) *time.Weekday { return &d }

func parseInterval(s string, cfg *Config) {
	m := reInterval.FindStringSubmatch(s)
	if m == nil {
		return
	}
	cfg.Kind = KindInterval
	value, _ := strconv.Atoi(m[1])

	// Prefix match on the unit word: DAY/DAYS, HOUR/HOURS, MIN/MINUTE/MINUTES.
	switch unit := m[2]; {
	case strings.HasPrefix(unit, "DAY"):
		cfg.Interval = time.Duration(value) * 24 * time.Hour
	case strings.HasPrefix(unit, "HOUR"):
		cfg.Interval = time.Duration(value) * time.Hour
	case strings.HasPrefix(unit, "MIN"):
		cfg.Interval = time.Duration(value) * time.Minute
	}
}

func parseOnce(s string, cfg *Config) {
	cfg.Kind = KindOnce

	if m := reDate.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			cfg.Date = &Date{Year: year, Month: time.Month(month), Day: day}
		}
	}
}

func parseRange(s string, cfg *Config) {
	cfg.Kind = KindRange

	m := reRange.FindStringSubmatch(s)
	if m == nil {
		return
	}
	sh, _ := strconv.Atoi(m[1])
	sm, _ := strconv.Atoi(m[2])
	eh, _ := strconv.Atoi(m[3])
	em, _ := strconv.Atoi(m[4])
	if sh > 23 || sm > 59 || eh > 23 || em > 59 {
		return
	}
	cfg.Start = &TimeOfDay{Hour: sh, Minute: sm}
	cfg.End = &TimeOfDay{Hour: eh, Minute: em}

	if strings.Contains(s, "EVERY HOUR") {
		cfg.RangeInterval = time.Hour
	}
}
