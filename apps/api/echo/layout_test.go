package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/cwarwicker/elbp/apps/api/echo"
	"github.com/cwarwicker/elbp/core/dashboard"
	"github.com/cwarwicker/elbp/core/layout"
)

func Test_layoutApi(t *testing.T) {
	f := setup(t)

	f.run(t, []httpTest{
		{name: "none yet", path: "/v1/layouts", usr: &f.student, wantCode: http.StatusOK, wantData: []layout.Layout{}},
		{name: "no default", path: "/v1/layouts/default", usr: &f.student, wantCode: http.StatusNotFound},
		{name: "teacher cannot save", method: http.MethodPut, path: "/v1/layouts", usr: &f.teacher, body: []layout.Form{}, wantCode: http.StatusForbidden},
		{
			name: "name required", method: http.MethodPut, path: "/v1/layouts", usr: &f.admin,
			body: []layout.Form{{Enabled: true}}, wantCode: http.StatusBadRequest,
		},
	})

	forms := []layout.Form{
		{Name: "Pastoral", Enabled: true, Groups: []layout.GroupForm{{Name: "Support", Plugins: []string{"tutorials"}}}},
		{Name: "Academic", Enabled: true, IsDefault: true, Groups: []layout.GroupForm{
			{Name: "Progress", Plugins: []string{"targets"}},
			{Name: "Meetings", Plugins: []string{"tutorials"}},
		}},
		{Name: "Spare", IsDefault: true},
	}
	rec := f.do(t, http.MethodPut, "/v1/layouts", &f.admin, forms)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var saved []layout.Layout
	decode(t, rec, &saved)
	require.Len(t, saved, 3)
	assert.False(t, saved[0].IsDefault)
	assert.True(t, saved[1].IsDefault)
	assert.False(t, saved[2].IsDefault)

	rec = f.do(t, http.MethodGet, "/v1/layouts/default", &f.student)
	require.Equal(t, http.StatusOK, rec.Code)
	var def layout.Layout
	decode(t, rec, &def)
	assert.Equal(t, "Academic", def.Name)
	require.Len(t, def.Groups, 2)
	assert.Equal(t, "Meetings", def.Groups[1].Name)

	t.Run("dashboard follows the layout", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/v1/plugins", &f.admin, echoapi.InstallRequest{Name: "tutorials"})
		require.Equal(t, http.StatusCreated, rec.Code)
		rec = f.do(t, http.MethodPost, "/v1/plugins/tutorials/enable", &f.admin)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(t, http.MethodGet, "/v1/students/"+id(f.student.ID), &f.student)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var view dashboard.View
		decode(t, rec, &view)
		assert.Equal(t, "Academic", view.Layout)
		// targets is not installed so its group is dropped
		require.Len(t, view.Groups, 1)
		assert.Equal(t, "Meetings", view.Groups[0].Name)

		// a user's own layout choice wins over the default
		rec = f.do(t, http.MethodPut, "/v1/settings/layout?user="+id(f.student.ID), &f.student, saved[0].ID)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		rec = f.do(t, http.MethodGet, "/v1/students/"+id(f.student.ID), &f.student)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &view)
		assert.Equal(t, "Pastoral", view.Layout)
	})

	f.run(t, []httpTest{
		{
			name: "default cannot be deleted", method: http.MethodDelete, path: "/v1/layouts/" + id(saved[1].ID), usr: &f.admin,
			wantCode: http.StatusBadRequest, wantData: map[string]string{"id": layout.ErrDeleteDefault.Error()},
		},
		{name: "teacher cannot delete", method: http.MethodDelete, path: "/v1/layouts/" + id(saved[2].ID), usr: &f.teacher, wantCode: http.StatusForbidden},
		{name: "delete", method: http.MethodDelete, path: "/v1/layouts/" + id(saved[2].ID), usr: &f.admin, wantCode: http.StatusNoContent},
		{name: "gone", path: "/v1/layouts/" + id(saved[2].ID), usr: &f.admin, wantCode: http.StatusNotFound},
	})

	t.Run("save drops unlisted layouts", func(t *testing.T) {
		keep := layout.Form{ID: saved[0].ID, Name: "Pastoral", Enabled: true}
		rec := f.do(t, http.MethodPut, "/v1/layouts", &f.admin, []layout.Form{keep})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = f.do(t, http.MethodGet, "/v1/layouts", &f.admin)
		require.Equal(t, http.StatusOK, rec.Code)
		var layouts []layout.Layout
		decode(t, rec, &layouts)
		require.Len(t, layouts, 1)
		assert.Equal(t, saved[0].ID, layouts[0].ID)
		assert.True(t, layouts[0].IsDefault)
	})
}
