package cron

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/plugin"
	"github.com/cwarwicker/elbp/core/setting"
)

// Task names
const (
	TaskAlertsAuto  = "alerts:auto"
	TaskAlertsQueue = "alerts:queue"
	TaskAlertsGC    = "alerts:gc"
	TaskPlugins     = "plugins"
)

type (
	Alerts interface {
		ProcessAuto(ctx context.Context) (int, error)
		ProcessQueue(ctx context.Context, n int) (int, error)
		GC(ctx context.Context, retention time.Duration) (int, error)
	}

	Plugins interface {
		Loaded(ctx context.Context) ([]plugin.Plugin, error)
	}

	Settings interface {
		GetBool(ctx context.Context, key string, scope setting.Scope) (bool, error)
	}

	Task struct {
		Name     string
		Interval time.Duration
		Run      func(ctx context.Context) error
	}

	Scheduler struct {
		alerts   Alerts
		plugins  Plugins
		settings Settings
		conf     *core.Config
		logger   core.Logger
		tasks    map[string]Task
		sched    gocron.Scheduler
	}
)

func NewScheduler(alerts Alerts, plugins Plugins, settings Settings, conf *core.Config, logger core.Logger) *Scheduler {
	vala.BeginValidation().Validate(
		vala.IsNotNil(alerts, "alerts"),
		vala.IsNotNil(plugins, "plugins"),
		vala.IsNotNil(settings, "settings"),
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	s := &Scheduler{alerts: alerts, plugins: plugins, settings: settings, conf: conf, logger: logger}
	s.tasks = map[string]Task{
		TaskAlertsAuto:  {Name: TaskAlertsAuto, Interval: conf.Alerts.AutoInterval, Run: s.alertsAuto},
		TaskAlertsQueue: {Name: TaskAlertsQueue, Interval: conf.Alerts.QueueInterval, Run: s.alertsQueue},
		TaskAlertsGC:    {Name: TaskAlertsGC, Interval: conf.Alerts.GCInterval, Run: s.alertsGC},
		TaskPlugins:     {Name: TaskPlugins, Interval: conf.Plugins.CronInterval, Run: s.pluginsCron},
	}
	return s
}

// Tasks returns the task names, sorted.
func (s *Scheduler) Tasks() []string {
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunOnce runs the named task now, outside of the schedule.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	task, ok := s.tasks[name]
	if !ok {
		return errors.Errorf("unknown task %q", name)
	}
	return task.Run(ctx)
}

// Start schedules every task with a positive interval. Runs of one task never overlap.
func (s *Scheduler) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC), gocron.WithLogger(s.logger))
	if err != nil {
		return errors.Wrap(err, "creating scheduler")
	}
	for _, name := range s.Tasks() {
		task := s.tasks[name]
		if task.Interval <= 0 {
			s.logger.Info(fmt.Sprintf("cron: %s is not scheduled", name))
			continue
		}
		_, err = sched.NewJob(
			gocron.DurationJob(task.Interval),
			gocron.NewTask(s.guard(ctx, task)),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return errors.Wrapf(err, "scheduling %s", name)
		}
	}
	sched.Start()
	s.sched = sched
	return nil
}

func (s *Scheduler) Shutdown() error {
	if s.sched == nil {
		return nil
	}
	return errors.Wrap(s.sched.Shutdown(), "shutting down scheduler")
}

// guard logs the task's errors and panics instead of letting them reach the scheduler.
func (s *Scheduler) guard(ctx context.Context, task Task) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error(fmt.Sprintf("cron: %s panicked: %v", task.Name, r))
			}
		}()
		if err := task.Run(ctx); err != nil {
			s.logger.Error(fmt.Sprintf("cron: %s: %v", task.Name, err), err)
		}
	}
}

func (s *Scheduler) alertsEnabled(ctx context.Context) (bool, error) {
	return s.settings.GetBool(ctx, setting.KeyAlertsEnabled, setting.Scope{})
}

func (s *Scheduler) alertsAuto(ctx context.Context) error {
	enabled, err := s.alertsEnabled(ctx)
	if err != nil || !enabled {
		return err
	}
	n, err := s.alerts.ProcessAuto(ctx)
	if n > 0 {
		s.logger.Info(fmt.Sprintf("cron: %d alert(s) queued", n))
	}
	return err
}

func (s *Scheduler) alertsQueue(ctx context.Context) error {
	enabled, err := s.alertsEnabled(ctx)
	if err != nil || !enabled {
		return err
	}
	n, err := s.alerts.ProcessQueue(ctx, s.conf.Alerts.BatchSize)
	if n > 0 {
		s.logger.Info(fmt.Sprintf("cron: %d queued alert(s) processed", n))
	}
	return err
}

func (s *Scheduler) alertsGC(ctx context.Context) error {
	n, err := s.alerts.GC(ctx, s.conf.Alerts.Retention)
	if n > 0 {
		s.logger.Info(fmt.Sprintf("cron: %d old alert(s) removed", n))
	}
	return err
}

// pluginsCron runs every loaded plugin's Cron. A failing plugin is logged and the others still run.
func (s *Scheduler) pluginsCron(ctx context.Context) error {
	plugins, err := s.plugins.Loaded(ctx)
	if err != nil {
		return err
	}
	var failed []string
	for _, p := range plugins {
		if err := runPlugin(ctx, p); err != nil {
			s.logger.Error(fmt.Sprintf("cron: plugin %s: %v", p.Name(), err), err)
			failed = append(failed, p.Name())
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("%d plugin(s) failed: %v", len(failed), failed)
	}
	return nil
}

func runPlugin(ctx context.Context, p plugin.Plugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return p.Cron(ctx)
}
