package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/cwarwicker/elbp/apps/api/echo"
	"github.com/cwarwicker/elbp/core/plugin"
)

func Test_pluginApi(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodGet, "/v1/plugins", &f.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var overview echoapi.PluginsResponse
	decode(t, rec, &overview)
	assert.Empty(t, overview.Installed)
	assert.Equal(t, []string{"attendance", "targets", "tutorials", "reports"}, overview.Available)

	rec = f.do(t, http.MethodPost, "/v1/plugins", &f.admin, echoapi.InstallRequest{Name: "tutorials"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reg plugin.Registration
	decode(t, rec, &reg)
	assert.Equal(t, "Tutorials", reg.Title)
	assert.Equal(t, 2, reg.Version)
	assert.False(t, reg.Enabled)
	assert.Equal(t, 1, reg.Ordernum)

	f.run(t, []httpTest{
		{name: "teacher", path: "/v1/plugins", usr: &f.teacher, wantCode: http.StatusForbidden},
		{
			name: "already installed", method: http.MethodPost, path: "/v1/plugins", usr: &f.admin,
			body:     echoapi.InstallRequest{Name: "tutorials"},
			wantCode: http.StatusUnprocessableEntity, wantData: httpErr{Error: "a plugin with this name already exists"},
		},
		{
			name: "unknown plugin", method: http.MethodPost, path: "/v1/plugins", usr: &f.admin,
			body:     echoapi.InstallRequest{Name: "horoscopes"},
			wantCode: http.StatusUnprocessableEntity, wantData: httpErr{Error: "plugin not found"},
		},
		{
			name: "not installed", path: "/v1/plugins/targets", usr: &f.admin,
			wantCode: http.StatusUnprocessableEntity, wantData: httpErr{Error: "plugin is not installed"},
		},
		{name: "enable", method: http.MethodPost, path: "/v1/plugins/tutorials/enable", usr: &f.admin, wantCode: http.StatusOK},
		{
			name: "order", method: http.MethodPut, path: "/v1/plugins/tutorials/order", usr: &f.admin,
			body: echoapi.OrderRequest{Ordernum: 5}, wantCode: http.StatusOK,
		},
	})

	rec = f.do(t, http.MethodGet, "/v1/plugins/tutorials", &f.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &reg)
	assert.True(t, reg.Enabled)
	assert.Equal(t, 5, reg.Ordernum)

	t.Run("migrations", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/plugins/tutorials/rollback", &f.admin, echoapi.RollbackRequest{Version: 1})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var migrated echoapi.MigratedResponse
		decode(t, rec, &migrated)
		assert.Equal(t, 1, migrated.Applied)
		assert.Equal(t, 1, migrated.Registration.Version)

		rec = f.do(t, http.MethodPost, "/v1/plugins/tutorials/upgrade", &f.admin)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &migrated)
		assert.Equal(t, 1, migrated.Applied)
		assert.Equal(t, 2, migrated.Registration.Version)

		rec = f.do(t, http.MethodPost, "/v1/plugins/tutorials/upgrade", &f.admin)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &migrated)
		assert.Equal(t, 0, migrated.Applied)
	})

	t.Run("uninstall", func(t *testing.T) {
		f.run(t, []httpTest{
			{name: "uninstall", method: http.MethodDelete, path: "/v1/plugins/tutorials", usr: &f.admin, wantCode: http.StatusNoContent},
			{name: "again", method: http.MethodDelete, path: "/v1/plugins/tutorials", usr: &f.admin, wantCode: http.StatusUnprocessableEntity},
		})

		rec := f.do(t, http.MethodGet, "/v1/plugins", &f.admin)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &overview)
		assert.Empty(t, overview.Installed)
		assert.Len(t, overview.Available, 4)
	})
}
