package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/plugin"
	"github.com/cwarwicker/elbp/core/setting"
	testutil "github.com/cwarwicker/elbp/tests"
)

type fakeAlerts struct {
	auto, queue, gc int32
	batch           int
	retention       time.Duration
}

func (a *fakeAlerts) ProcessAuto(context.Context) (int, error) {
	atomic.AddInt32(&a.auto, 1)
	return 2, nil
}

func (a *fakeAlerts) ProcessQueue(_ context.Context, n int) (int, error) {
	atomic.AddInt32(&a.queue, 1)
	a.batch = n
	return n, nil
}

func (a *fakeAlerts) GC(_ context.Context, retention time.Duration) (int, error) {
	atomic.AddInt32(&a.gc, 1)
	a.retention = retention
	return 0, nil
}

type fakeSettings struct {
	alertsEnabled bool
}

func (s *fakeSettings) GetBool(_ context.Context, key string, _ setting.Scope) (bool, error) {
	if key != setting.KeyAlertsEnabled {
		return false, errors.Errorf("unexpected key %s", key)
	}
	return s.alertsEnabled, nil
}

type cronPlugin struct {
	name string
	run  func() error
	ran  *int32
}

func (p cronPlugin) Name() string                   { return p.name }
func (p cronPlugin) Title() string                  { return p.name }
func (p cronPlugin) Version() int                   { return 0 }
func (p cronPlugin) Migrations() []plugin.Migration { return nil }

func (p cronPlugin) Uninstall(context.Context, core.DBExecutor) error { return nil }

func (p cronPlugin) Summary(context.Context, plugin.View) (map[string]interface{}, error) {
	return nil, nil
}

func (p cronPlugin) Ajax(context.Context, plugin.View, string, *gabs.Container) (interface{}, error) {
	return nil, nil
}

func (p cronPlugin) Cron(context.Context) error {
	atomic.AddInt32(p.ran, 1)
	return p.run()
}

type fakePlugins []plugin.Plugin

func (fp fakePlugins) Loaded(context.Context) ([]plugin.Plugin, error) { return fp, nil }

func TestScheduler_RunOnce(t *testing.T) {
	ctx := context.Background()
	conf := core.NewTestConfig(t.TempDir())

	var ran int32
	plugins := fakePlugins{
		cronPlugin{name: "first", run: func() error { return nil }, ran: &ran},
		cronPlugin{name: "failing", run: func() error { return errors.New("db down") }, ran: &ran},
		cronPlugin{name: "panicking", run: func() error { panic("oops") }, ran: &ran},
		cronPlugin{name: "last", run: func() error { return nil }, ran: &ran},
	}

	tests := []struct {
		name          string
		task          string
		alertsEnabled bool
		wantErr       bool
		check         func(t *testing.T, a *fakeAlerts)
	}{
		{
			name: "auto", task: TaskAlertsAuto, alertsEnabled: true,
			check: func(t *testing.T, a *fakeAlerts) { assert.Equal(t, int32(1), a.auto) },
		},
		{
			name: "auto disabled", task: TaskAlertsAuto,
			check: func(t *testing.T, a *fakeAlerts) { assert.Equal(t, int32(0), a.auto) },
		},
		{
			name: "queue uses batch size", task: TaskAlertsQueue, alertsEnabled: true,
			check: func(t *testing.T, a *fakeAlerts) { assert.Equal(t, conf.Alerts.BatchSize, a.batch) },
		},
		{
			name: "gc runs even when alerts are disabled", task: TaskAlertsGC,
			check: func(t *testing.T, a *fakeAlerts) { assert.Equal(t, conf.Alerts.Retention, a.retention) },
		},
		{name: "unknown task", task: "nope", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := &fakeAlerts{}
			s := NewScheduler(alerts, plugins, &fakeSettings{alertsEnabled: tt.alertsEnabled}, conf, &testutil.Logger{})
			err := s.RunOnce(ctx, tt.task)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, alerts)
		})
	}

	t.Run("plugins isolated", func(t *testing.T) {
		logger := &testutil.Logger{}
		s := NewScheduler(&fakeAlerts{}, plugins, &fakeSettings{}, conf, logger)
		err := s.RunOnce(ctx, TaskPlugins)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "2 plugin(s) failed")
		assert.Equal(t, int32(4), atomic.LoadInt32(&ran), "every plugin ran")
		assert.Len(t, logger.Messages, 2)
	})
}

func TestScheduler_Start(t *testing.T) {
	conf := core.NewTestConfig(t.TempDir())
	conf.Alerts.AutoInterval = 20 * time.Millisecond
	conf.Alerts.QueueInterval = 0
	conf.Alerts.GCInterval = 0
	conf.Plugins.CronInterval = 0

	alerts := &fakeAlerts{}
	s := NewScheduler(alerts, fakePlugins{}, &fakeSettings{alertsEnabled: true}, conf, &testutil.Logger{})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Shutdown() })

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&alerts.auto) >= 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&alerts.queue))
	assert.Equal(t, []string{TaskAlertsAuto, TaskAlertsGC, TaskAlertsQueue, TaskPlugins}, s.Tasks())
}
