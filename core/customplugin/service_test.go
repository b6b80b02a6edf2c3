package customplugin_test

import (
	"context"
	"testing"

	"github.com/Jeffail/gabs/v2"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/customplugin"
	"github.com/cwarwicker/elbp/core/permission"
	"github.com/cwarwicker/elbp/core/plugin"
	"github.com/cwarwicker/elbp/core/user"
	sqlxrepos "github.com/cwarwicker/elbp/storage/database/sqlx"
	testutil "github.com/cwarwicker/elbp/tests"
)

func newValidate() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	customplugin.InitValidators(validate, translator)
	return validate
}

func setup(t *testing.T) (*sqlx.DB, *customplugin.Service) {
	db := testutil.PrepareDB(t)
	reg := plugin.NewRegistry()
	reg.Register("attendance", func(plugin.Deps) plugin.Plugin { return nil })

	pluginRepo := sqlxrepos.NewPluginRepository(db)
	_, err := pluginRepo.CreateRegistration(context.Background(), plugin.Registration{Name: "legacy", Title: "Legacy", InstalledAt: core.NowFunc()})
	require.NoError(t, err)

	svc := customplugin.NewService(sqlxrepos.NewCustomPluginRepository(db), db, pluginRepo, reg)
	return db, svc
}

func countCustom(t *testing.T, db *sqlx.DB) int {
	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM custom_plugins"))
	return n
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	validate := newValidate()
	db, svc := setup(t)

	goals, err := svc.Create(ctx, validate, customplugin.NewCustomPlugin{
		Name:       "goals",
		Attributes: []customplugin.Attribute{{Label: "Goal", Type: customplugin.TypeText}},
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, "Goals", goals.Title)
	assert.False(t, goals.Enabled)
	assert.Equal(t, "goal", goals.Attributes[0].Name)

	tests := []struct {
		name        string
		ncp         customplugin.NewCustomPlugin
		pluginError bool
	}{
		{name: "built-in name", ncp: customplugin.NewCustomPlugin{Name: "attendance"}, pluginError: true},
		{name: "installed name", ncp: customplugin.NewCustomPlugin{Name: "legacy"}, pluginError: true},
		{name: "custom name", ncp: customplugin.NewCustomPlugin{Name: "goals"}, pluginError: true},
		{name: "invalid name", ncp: customplugin.NewCustomPlugin{Name: "Bad Name"}},
		{name: "invalid attribute type", ncp: customplugin.NewCustomPlugin{Name: "notes", Attributes: []customplugin.Attribute{{Label: "X", Type: "blob"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, validate, tt.ncp, 1)
			require.Error(t, err)
			assert.Equal(t, tt.pluginError, core.IsPluginError(err))
			assert.Equal(t, 1, countCustom(t, db))
		})
	}
}

func TestService_EnabledPlugins(t *testing.T) {
	ctx := context.Background()
	validate := newValidate()
	_, svc := setup(t)

	for _, name := range []string{"zeta", "alpha"} {
		_, err := svc.Create(ctx, validate, customplugin.NewCustomPlugin{Name: name}, 1)
		require.NoError(t, err)
	}
	require.NoError(t, svc.Enable(ctx, "zeta"))

	plugins, err := svc.EnabledPlugins(ctx)
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, "zeta", plugins[0].Name())

	require.NoError(t, svc.Delete(ctx, "zeta"))
	_, err = svc.Get(ctx, "zeta")
	assert.True(t, core.IsNotFound(err))
}

func TestAdapter_Ajax(t *testing.T) {
	ctx := context.Background()
	validate := newValidate()
	_, svc := setup(t)

	_, err := svc.Create(ctx, validate, customplugin.NewCustomPlugin{
		Name: "goals",
		Attributes: []customplugin.Attribute{
			{Label: "Goal", Type: customplugin.TypeText, Zone: customplugin.ZoneSummary, Rules: customplugin.Rules{Required: true}},
			{Label: "Done", Type: customplugin.TypeCheckbox},
		},
	}, 1)
	require.NoError(t, err)
	require.NoError(t, svc.Enable(ctx, "goals"))
	plugins, err := svc.EnabledPlugins(ctx)
	require.NoError(t, err)
	goals := plugins[0]

	tutor := plugin.View{
		Viewer:    user.User{ID: 2},
		StudentID: 10,
		Caps:      permission.Set(0).With(permission.CapViewDashboard, permission.CapAddRecords, permission.CapEditRecords),
	}

	params := gabs.New()
	_, _ = params.Set("Finish coursework", "values", "goal")
	_, _ = params.Set(true, "values", "done")
	res, err := goals.Ajax(ctx, tutor, "add", params)
	require.NoError(t, err)
	item := res.(customplugin.Item)
	assert.Equal(t, map[string]string{"goal": "Finish coursework", "done": "1"}, item.Values)
	assert.Equal(t, int64(2), item.AuthorID)

	// required value missing
	empty := gabs.New()
	_, _ = empty.Set("1", "values", "done")
	_, err = goals.Ajax(ctx, tutor, "add", empty)
	_, isValidation := err.(*core.ValidationError)
	assert.True(t, isValidation)

	update := gabs.New()
	_, _ = update.Set(item.ID, "id")
	_, _ = update.Set("Finish coursework early", "values", "goal")
	_, err = goals.Ajax(ctx, tutor, "update", update)
	require.NoError(t, err)

	summary, err := goals.Summary(ctx, tutor)
	require.NoError(t, err)
	assert.Equal(t, 1, summary["count"])
	assert.Equal(t, map[string]string{"Goal": "Finish coursework early"}, summary["latest"])

	// another student's view cannot touch the item
	other := tutor
	other.StudentID = 11
	_, err = goals.Ajax(ctx, other, "update", update)
	assert.True(t, core.IsPluginError(err))

	del := gabs.New()
	_, _ = del.Set(item.ID, "id")
	_, err = goals.Ajax(ctx, tutor, "delete", del)
	assert.True(t, core.IsPluginError(err), "deleting needs the delete capability")

	_, err = goals.Ajax(ctx, tutor, "explode", nil)
	assert.True(t, core.IsPluginError(err))
}
