package config

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// History controls the optional run-history database.
	// If omitted, no execution records are persisted.
	History *HistoryConfig `json:"history,omitempty"`

	// Tasks is the static task table registered at startup (and re-registered
	// on config reload). Each entry runs a command on its schedule.
	Tasks []TaskConfig `json:"tasks,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls sweep cadence and the async worker pool.
//
// All durations are Go duration strings (e.g. "500ms", "30s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - sweep_interval: "30s"
//   - workers: 4
//   - queue_size: 256
//   - shutdown_grace: "5s"
type SchedulerConfig struct {
	SweepInterval string `json:"sweep_interval,omitempty"`
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	ShutdownGrace string `json:"shutdown_grace,omitempty"`
}

// HistoryConfig controls the run-history database.
//
// Example:
//
//	"history": { "enabled": true, "path": "./chronod_runs.db" }
type HistoryConfig struct {
	Enabled     bool   `json:"enabled"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
	MaxRows     int    `json:"max_rows,omitempty"`
}

// TaskConfig is one entry of the task table.
//
//   - Name must be unique across the table; reloads match entries by name.
//   - Schedule is a schedule expression (e.g. "EVERYDAY @ 18:00",
//     "EVERY 15 MINUTES", "CRON */5 * * * *").
//   - Command/Args are executed via the host shell-less exec path.
//   - Timeout is a Go duration string; "0s" or omitted means no timeout.
type TaskConfig struct {
	Name     string   `json:"name"`
	Schedule string   `json:"schedule"`
	Async    bool     `json:"async,omitempty"`
	Command  string   `json:"command"`
	Args     []string `json:"args,omitempty"`
	Timeout  string   `json:"timeout,omitempty"`
}
