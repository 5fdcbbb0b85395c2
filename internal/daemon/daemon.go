// Package daemon wires the scheduling engine into a long-running process:
// config loading and hot reload, structured logging, the task table, run
// history, and service-manager readiness notifications.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdaemon "github.com/coreos/go-systemd/v22/daemon"

	"chronod/internal/config"
	"chronod/internal/eventbus"
	"chronod/internal/history"
	"chronod/internal/scheduler"
	"chronod/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	logSvc *logx.Service
	log    logx.Logger

	bus   eventbus.Bus
	sched *scheduler.Scheduler
	hist  *history.Store

	// taskIDs maps task-table names to live scheduler task IDs so config
	// reloads can cancel and re-register by name.
	taskMu  sync.Mutex
	taskIDs map[string]string

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	updates chan *config.Config
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "daemon"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	hist, err := history.Open(historyConfigFrom(cfg), log.With(logx.String("comp", "history")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open history: %w", err)
	}

	schedCfg, err := schedulerConfigFrom(cfg)
	if err != nil {
		_ = hist.Close()
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()
	sched := scheduler.New(schedCfg, log.With(logx.String("comp", "scheduler")), bus)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		logSvc:  logSvc,
		log:     log,
		bus:     bus,
		sched:   sched,
		hist:    hist,
		taskIDs: map[string]string{},
	}, nil
}

// Start registers the task table and launches the background plumbing:
// run-history recording, config watch, and reload application. It returns
// once the daemon is serving; cancellation of ctx stops the plumbing but
// orderly teardown is Stop's job.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	cfg := a.cfgm.Get()
	if err := a.applyTasks(cfg.Tasks); err != nil {
		cancel()
		return err
	}

	if a.hist != nil {
		a.startRecorder(runCtx)
	}

	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})
	a.updates = a.cfgm.Subscribe(4)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.reloadLoop(runCtx)
	}()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watch exited", logx.Err(err))
		}
	}()

	if sent, err := sdaemon.SdNotify(false, sdaemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("daemon started",
		logx.Int("tasks", len(cfg.Tasks)),
		logx.String("config", a.cfgPath))
	return nil
}

// Stop tears the daemon down in dependency order: engine first (so nothing
// publishes after the recorder is gone), then background plumbing, then the
// history store and log sinks.
func (a *App) Stop(ctx context.Context) error {
	if sent, err := sdaemon.SdNotify(false, sdaemon.SdNotifyStopping); err == nil && sent {
		a.log.Debug("sd_notify stopping sent")
	}

	a.sched.Shutdown(ctx)

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	if a.updates != nil {
		a.cfgm.Unsubscribe(a.updates)
		a.updates = nil
	}

	if err := a.hist.Close(); err != nil {
		a.log.Warn("history close failed", logx.Err(err))
	}
	a.log.Info("daemon stopped")
	return a.logSvc.Close()
}

// Scheduler exposes the engine for diagnostics (snapshot dumps).
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// validateConfig layers schedule-grammar checks on top of the structural
// ones, so a reload with a broken schedule is rejected before any task is
// touched.
func validateConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	for i, t := range cfg.Tasks {
		if err := scheduler.ValidateSchedule(t.Schedule); err != nil {
			return fmt.Errorf("tasks[%d] (%s): %w", i, t.Name, err)
		}
	}
	return nil
}

func historyConfigFrom(cfg *config.Config) history.Config {
	if cfg.History == nil {
		return history.Config{}
	}
	busy, _ := config.ParseDurationField("history.busy_timeout", cfg.History.BusyTimeout)
	return history.Config{
		Enabled:     cfg.History.Enabled,
		Path:        cfg.History.Path,
		BusyTimeout: busy,
		MaxRows:     cfg.History.MaxRows,
	}
}

func schedulerConfigFrom(cfg *config.Config) (scheduler.Config, error) {
	sweep, err := config.ParseDurationField("scheduler.sweep_interval", cfg.Scheduler.SweepInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	grace, err := config.ParseDurationField("scheduler.shutdown_grace", cfg.Scheduler.ShutdownGrace)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		SweepInterval: sweep,
		Workers:       cfg.Scheduler.Workers,
		QueueSize:     cfg.Scheduler.QueueSize,
		ShutdownGrace: grace,
	}, nil
}

// startRecorder copies task completion events into the run-history store.
// The subscription is buffered and lossy under pressure, matching the bus
// contract; history is an operator aid, not an audit log.
func (a *App) startRecorder(ctx context.Context) {
	ch, unsubscribe := a.bus.Subscribe(128)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				te, ok := ev.Data.(scheduler.TaskEvent)
				if !ok {
					continue
				}
				var run history.Run
				switch ev.Type {
				case eventbus.TypeTaskFinished:
					run = history.Run{TaskID: te.ID, Schedule: te.Schedule, Started: te.Started, Duration: te.Duration, OK: true}
				case eventbus.TypeTaskFailed:
					run = history.Run{TaskID: te.ID, Schedule: te.Schedule, Started: te.Started, Duration: te.Duration, Error: te.Error}
				default:
					continue
				}
				actx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				if err := a.hist.Append(actx, run); err != nil {
					a.log.Warn("history append failed", logx.String("task", te.ID), logx.Err(err))
				}
				cancel()
			}
		}
	}()
}

// reloadLoop applies committed config updates: log sinks swap in place,
// changed task-table entries are cancelled and re-registered by name.
// Engine sizing (workers, queue, sweep cadence) is fixed at startup.
func (a *App) reloadLoop(ctx context.Context) {
	// The manager commits before publishing, so the previous config has to
	// be tracked here.
	prev := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-a.updates:
			if !ok {
				return
			}
			changed, attrs, taskNames := config.SummarizeConfigChange(prev, newCfg)
			prev = newCfg
			if len(changed) == 0 {
				continue
			}
			a.log.Info("config reloaded", append([]logx.Field{logx.Any("sections", changed)}, attrs...)...)

			for _, section := range changed {
				switch section {
				case "logging":
					a.logSvc.Apply(logx.Config{
						Level:   newCfg.Logging.Level,
						Console: newCfg.Logging.Console,
						File: logx.FileConfig{
							Enabled: newCfg.Logging.File.Enabled,
							Path:    newCfg.Logging.File.Path,
						},
					})
				case "scheduler":
					a.log.Warn("scheduler sizing changes require a restart")
				case "history":
					a.log.Warn("history changes require a restart")
				case "tasks":
					if err := a.applyTaskChanges(newCfg.Tasks, taskNames); err != nil {
						a.log.Warn("task reload incomplete", logx.Err(err))
					}
				}
			}
		}
	}
}

// applyTasks registers every entry of the task table. On the first failure
// it unwinds the registrations made so far, so startup is all-or-nothing.
func (a *App) applyTasks(tasks []config.TaskConfig) error {
	registered := make([]string, 0, len(tasks))
	for _, tc := range tasks {
		if _, err := a.registerTask(tc); err != nil {
			for _, name := range registered {
				a.cancelTask(name)
			}
			return fmt.Errorf("register task %q: %w", tc.Name, err)
		}
		registered = append(registered, tc.Name)
	}
	return nil
}

// applyTaskChanges re-registers only the named entries. The validator has
// already accepted the whole table, so failures here are unexpected; the
// first one aborts the pass and is surfaced to the caller.
func (a *App) applyTaskChanges(tasks []config.TaskConfig, names []string) error {
	byName := make(map[string]config.TaskConfig, len(tasks))
	for _, tc := range tasks {
		byName[tc.Name] = tc
	}
	for _, name := range names {
		a.cancelTask(name)
		tc, present := byName[name]
		if !present {
			a.log.Info("task removed", logx.String("name", name))
			continue
		}
		if _, err := a.registerTask(tc); err != nil {
			return fmt.Errorf("re-register task %q: %w", name, err)
		}
	}
	return nil
}

func (a *App) registerTask(tc config.TaskConfig) (string, error) {
	action, err := commandAction(tc)
	if err != nil {
		return "", err
	}
	t, err := a.sched.Register(tc.Schedule, action, tc.Async)
	if err != nil {
		return "", err
	}
	a.taskMu.Lock()
	a.taskIDs[tc.Name] = t.ID()
	a.taskMu.Unlock()
	a.log.Info("task armed",
		logx.String("name", tc.Name),
		logx.String("task", t.ID()),
		logx.String("schedule", tc.Schedule),
		logx.Time("next", t.NextExecution()))
	return t.ID(), nil
}

func (a *App) cancelTask(name string) {
	a.taskMu.Lock()
	id, present := a.taskIDs[name]
	delete(a.taskIDs, name)
	a.taskMu.Unlock()
	if present {
		a.sched.Cancel(id)
	}
}
