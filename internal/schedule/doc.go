// Package schedule parses human-readable schedule strings and computes next
// occurrences.
//
// # Grammar
//
// Schedule strings are trimmed and upper-cased before matching. Supported
// forms (first match wins, in this order):
//
//   - "EVERYDAY @ 18:00"              daily at a wall-clock time
//   - "WEEKDAYS @ 09:00"              Monday through Friday
//   - "WEEKENDS @ 10:30"              Saturday and Sunday
//   - "EVERY MON WED @ 09:00"         weekly on the listed days
//   - "EVERY 1ST @ 08:00"             monthly (1ST, 15TH, LAST DAY, LAST FRI)
//   - "EVERY 15 MINUTES"              fixed interval (MIN/MINUTES/HOURS/DAYS)
//   - "ONCE 2025-03-10 @ 08:00"       one-shot at a specific date
//   - "BETWEEN 09:00-17:00 EVERY HOUR" hourly inside a daily window
//   - "CRON */5 * * * *"              robfig cron expression (scheduler-side)
//
// A HH:MM token anywhere in the string sets the wall-clock time for any
// form. An unmatched string yields a Config with KindUnset; Parse itself
// never fails.
//
// # Occurrence calculation
//
// Next is pure: given the same Config and now it always returns the same
// instant. Candidates equal to now are advanced (now is the instant already
// observed, not a pending fire). When Config.Time is unset the target
// time-of-day is now's time-of-day at each evaluation, which can make the
// very next check count as already due; callers relying on a fixed default
// should always supply a time. All arithmetic is on the naive local clock.
package schedule
