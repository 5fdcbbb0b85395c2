package config

import (
	"fmt"
	"strings"
)

// Validate checks structural invariants that don't require domain knowledge
// (schedule grammar validation is layered on top via Manager.SetValidator).
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	if _, err := ParseDurationField("scheduler.sweep_interval", c.Scheduler.SweepInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.shutdown_grace", c.Scheduler.ShutdownGrace); err != nil {
		return err
	}
	if c.Scheduler.Workers < 0 {
		return fmt.Errorf("scheduler.workers must be >= 0")
	}
	if c.Scheduler.QueueSize < 0 {
		return fmt.Errorf("scheduler.queue_size must be >= 0")
	}

	if c.History != nil {
		if c.History.Enabled && strings.TrimSpace(c.History.Path) == "" {
			return fmt.Errorf("history.path is required when history is enabled")
		}
		if _, err := ParseDurationField("history.busy_timeout", c.History.BusyTimeout); err != nil {
			return err
		}
	}

	seen := make(map[string]struct{}, len(c.Tasks))
	for i, t := range c.Tasks {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return fmt.Errorf("tasks[%d]: name is required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("tasks[%d]: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}
		if strings.TrimSpace(t.Schedule) == "" {
			return fmt.Errorf("tasks[%d] (%s): schedule is required", i, name)
		}
		if strings.TrimSpace(t.Command) == "" {
			return fmt.Errorf("tasks[%d] (%s): command is required", i, name)
		}
		if _, err := ParseDurationField(fmt.Sprintf("tasks[%d].timeout", i), t.Timeout); err != nil {
			return err
		}
	}
	return nil
}
