package plugins_test

import (
	"context"
	"testing"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/alert"
	"github.com/cwarwicker/elbp/core/permission"
	"github.com/cwarwicker/elbp/core/plugin"
	"github.com/cwarwicker/elbp/core/setting"
	"github.com/cwarwicker/elbp/core/user"
	"github.com/cwarwicker/elbp/plugins"
	"github.com/cwarwicker/elbp/plugins/attendance"
	"github.com/cwarwicker/elbp/plugins/reports"
	"github.com/cwarwicker/elbp/plugins/targets"
	"github.com/cwarwicker/elbp/plugins/tutorials"
	sqlxrepos "github.com/cwarwicker/elbp/storage/database/sqlx"
	testutil "github.com/cwarwicker/elbp/tests"
)

type evaluators map[string]alert.Evaluator

func (e evaluators) RegisterEvaluator(event string, ev alert.Evaluator) { e[event] = ev }

type fixture struct {
	db         *sqlx.DB
	mgr        *plugin.Manager
	settings   *setting.Service
	evaluators evaluators
	tutor      plugin.View
}

func setup(t *testing.T) fixture {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	settings := setting.NewService(sqlxrepos.NewSettingRepository(db), setting.DefaultSchema())

	reg := plugin.NewRegistry()
	plugins.RegisterBuiltins(reg)
	mgr := plugin.NewManager(sqlxrepos.NewPluginRepository(db), reg, plugin.Deps{DB: db, Logger: &testutil.Logger{}, Settings: settings})
	evs := evaluators{}
	mgr.Bootstrap(evs)

	for _, name := range reg.Names() {
		_, err := mgr.Install(ctx, name)
		require.NoError(t, err)
		require.NoError(t, mgr.Enable(ctx, name))
	}

	return fixture{
		db:         db,
		mgr:        mgr,
		settings:   settings,
		evaluators: evs,
		tutor: plugin.View{
			Viewer:    user.User{ID: 2},
			StudentID: 10,
			Caps:      permission.Set(0).With(permission.CapViewDashboard, permission.CapAddRecords, permission.CapEditRecords, permission.CapDeleteRecords),
		},
	}
}

func (f fixture) ajax(t *testing.T, name, action string, params map[string]interface{}) (interface{}, error) {
	t.Helper()
	p, err := f.mgr.LoadedByName(context.Background(), name)
	require.NoError(t, err)
	c := gabs.New()
	for k, v := range params {
		_, _ = c.Set(v, k)
	}
	return p.Ajax(context.Background(), f.tutor, action, c)
}

func (f fixture) summary(t *testing.T, name string) map[string]interface{} {
	t.Helper()
	p, err := f.mgr.LoadedByName(context.Background(), name)
	require.NoError(t, err)
	s, err := p.Summary(context.Background(), f.tutor)
	require.NoError(t, err)
	return s
}

func tableExists(t *testing.T, db *sqlx.DB, table string) bool {
	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table))
	return n == 1
}

func TestBuiltins_ReinstallAfterForcedUninstall(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	for _, name := range []string{attendance.Name, targets.Name, tutorials.Name, reports.Name} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, f.mgr.Uninstall(ctx, name, true))
			assert.True(t, tableExists(t, f.db, "plugin_"+name))

			reg, err := f.mgr.Install(ctx, name)
			require.NoError(t, err)
			p, err := f.mgr.Instantiate(name)
			require.NoError(t, err)
			assert.Equal(t, p.Version(), reg.Version)
		})
	}
}

func TestBuiltins_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	regs, err := f.mgr.List(ctx, true)
	require.NoError(t, err)
	versions := map[string]int{}
	for _, reg := range regs {
		versions[reg.Name] = reg.Version
	}
	assert.Equal(t, map[string]int{attendance.Name: 2, targets.Name: 1, tutorials.Name: 2, reports.Name: 1}, versions)

	loaded, err := f.mgr.Loaded(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 4)
	assert.Equal(t, attendance.Name, loaded[0].Name())

	events := make([]string, 0, len(f.evaluators))
	for event := range f.evaluators {
		events = append(events, event)
	}
	assert.ElementsMatch(t, []string{alert.EventAttendanceBelow, alert.EventTargetsOverdue, alert.EventTutorialAdded}, events)
	_, declared := f.settings.Schema().Lookup(attendance.KeyThreshold)
	assert.True(t, declared)

	for _, table := range []string{"plugin_attendance", "plugin_targets", "plugin_tutorials", "plugin_reports"} {
		assert.True(t, tableExists(t, f.db, table), table)
	}
	require.NoError(t, f.mgr.Uninstall(ctx, tutorials.Name, false))
	assert.False(t, tableExists(t, f.db, "plugin_tutorials"))
	require.NoError(t, f.mgr.Uninstall(ctx, reports.Name, true))
	assert.True(t, tableExists(t, f.db, "plugin_reports"), "force leaves the tables behind")
}

func TestAttendance(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.ajax(t, attendance.Name, "record", map[string]interface{}{"period": "2024-09", "attended": 18, "possible": 20})
	require.NoError(t, err)
	_, err = f.ajax(t, attendance.Name, "record", map[string]interface{}{"period": "2024-10", "attended": 14, "possible": 20, "punctual": 7})
	require.NoError(t, err)
	// re-recording a period replaces it
	_, err = f.ajax(t, attendance.Name, "record", map[string]interface{}{"period": "2024-10", "attended": 16, "possible": 20, "punctual": 8})
	require.NoError(t, err)

	_, err = f.ajax(t, attendance.Name, "record", map[string]interface{}{"period": "2024-11", "attended": 21, "possible": 20})
	assert.True(t, core.IsPluginError(err))

	summary := f.summary(t, attendance.Name)
	assert.Equal(t, 85.0, summary["attendance"])
	assert.Equal(t, 40, summary["possible"])
	assert.Equal(t, false, summary["below_target"])

	require.NoError(t, f.settings.Set(ctx, attendance.KeyThreshold, setting.Scope{Plugin: attendance.Name}, 90))
	summary = f.summary(t, attendance.Name)
	assert.Equal(t, true, summary["below_target"])

	matches, err := f.evaluators[alert.EventAttendanceBelow](ctx, alert.Subscription{Threshold: 86})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(10), matches[0].StudentID)

	matches, err = f.evaluators[alert.EventAttendanceBelow](ctx, alert.Subscription{Threshold: 80})
	require.NoError(t, err)
	assert.Empty(t, matches)

	// rolling back to version 1 drops punctuality, upgrading brings it back
	rolled, err := f.mgr.Rollback(ctx, attendance.Name, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rolled)
	applied, err := f.mgr.Upgrade(ctx, attendance.Name)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
}

func TestTargets(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = orig })

	res, err := f.ajax(t, targets.Name, "add", map[string]interface{}{"name": "Finish essay", "deadline": "2024-05-20"})
	require.NoError(t, err)
	overdueID := res.(targets.Target).ID
	_, err = f.ajax(t, targets.Name, "add", map[string]interface{}{"name": "Revise", "deadline": "2024-07-01"})
	require.NoError(t, err)

	summary := f.summary(t, targets.Name)
	assert.Equal(t, 2, summary[targets.StatusOpen])
	assert.Equal(t, 1, summary["overdue"])

	matches, err := f.evaluators[alert.EventTargetsOverdue](ctx, alert.Subscription{})
	require.NoError(t, err)
	assert.Len(t, matches, 1)
	matches, err = f.evaluators[alert.EventTargetsOverdue](ctx, alert.Subscription{Threshold: 2})
	require.NoError(t, err)
	assert.Empty(t, matches)

	// the grace period pushes the cutoff back
	require.NoError(t, f.settings.Set(ctx, targets.KeyGraceDays, setting.Scope{Plugin: targets.Name}, 30))
	assert.Equal(t, 0, f.summary(t, targets.Name)["overdue"])
	require.NoError(t, f.settings.Unset(ctx, targets.KeyGraceDays, setting.Scope{Plugin: targets.Name}))

	_, err = f.ajax(t, targets.Name, "set_status", map[string]interface{}{"id": overdueID, "status": targets.StatusAchieved})
	require.NoError(t, err)
	summary = f.summary(t, targets.Name)
	assert.Equal(t, 1, summary[targets.StatusAchieved])
	assert.Equal(t, 0, summary["overdue"])

	_, err = f.ajax(t, targets.Name, "set_status", map[string]interface{}{"id": overdueID, "status": "lost"})
	assert.True(t, core.IsPluginError(err))
}

func TestTutorials(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	sub := alert.Subscription{CreatedAt: core.NowFunc().Add(-time.Hour)}
	_, err := f.ajax(t, tutorials.Name, "add", map[string]interface{}{"date": "2024-03-04", "notes": "Discussed UCAS", "location": "Room 4"})
	require.NoError(t, err)
	_, err = f.ajax(t, tutorials.Name, "add", map[string]interface{}{"date": "2024-03-04"})
	assert.True(t, core.IsPluginError(err), "notes are required")

	summary := f.summary(t, tutorials.Name)
	assert.Equal(t, 1, summary["count"])
	assert.Equal(t, "2024-03-04", summary["last"])

	matches, err := f.evaluators[alert.EventTutorialAdded](ctx, sub)
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	sub.LastTriggered = core.NowFunc().Add(time.Hour)
	matches, err = f.evaluators[alert.EventTutorialAdded](ctx, sub)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestReports(t *testing.T) {
	f := setup(t)

	_, err := f.ajax(t, reports.Name, "add", map[string]interface{}{"title": "Autumn", "rank": 9})
	assert.True(t, core.IsPluginError(err), "unknown rank")

	_, err = f.ajax(t, reports.Name, "add", map[string]interface{}{"title": "Autumn", "period": "Term 1", "rank": 3})
	require.NoError(t, err)

	summary := f.summary(t, reports.Name)
	assert.Equal(t, 1, summary["count"])
	assert.Equal(t, "On target", summary["rank"])
	assert.Equal(t, "#5cb85c", summary["colour"])

	student := f.tutor
	student.Caps = permission.Set(0).With(permission.CapViewDashboard, permission.CapViewOwn)
	p, err := f.mgr.LoadedByName(context.Background(), reports.Name)
	require.NoError(t, err)
	_, err = p.Ajax(context.Background(), student, "add", gabs.New())
	assert.True(t, core.IsPluginError(err), "students cannot add reports")
}
