package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"chronod/internal/schedule"
)

// ValidateSchedule checks a schedule string without registering anything.
// Cron expressions go through the same parser options the engine uses, so
// acceptance here guarantees acceptance at registration.
func ValidateSchedule(raw string) error {
	cfg := schedule.Parse(raw)
	if cfg.Kind == schedule.KindUnset {
		return fmt.Errorf("%w: %q", ErrUnrecognizedSchedule, raw)
	}
	if cfg.Kind == schedule.KindCron {
		p := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := p.Parse(cfg.CronExpr); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", cfg.CronExpr, err)
		}
	}
	return nil
}
