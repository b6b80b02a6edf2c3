package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_settingApi(t *testing.T) {
	f := setup(t)
	own := "?user=" + id(f.student.ID)

	f.run(t, []httpTest{
		{
			name: "default", path: "/v1/settings/dashboard_title", usr: &f.student,
			wantCode: http.StatusOK, wantData: echo.Map{"key": "dashboard_title", "value": "Electronic Learning Blue Print"},
		},
		{
			name: "set global", method: http.MethodPut, path: "/v1/settings/dashboard_title", usr: &f.admin,
			body: "Student Profile", wantCode: http.StatusOK, wantData: echo.Map{"key": "dashboard_title", "value": "Student Profile"},
		},
		{
			name: "unknown key", method: http.MethodPut, path: "/v1/settings/bogus", usr: &f.admin,
			body: 1, wantCode: http.StatusNotFound, wantData: httpErr{Error: "bogus: unknown setting"},
		},
		{
			name: "out of range", method: http.MethodPut, path: "/v1/settings/per_page", usr: &f.admin,
			body: 500, wantCode: http.StatusBadRequest, wantData: map[string]string{"per_page": "must be between 1 and 200"},
		},
		{
			name: "wrong type", method: http.MethodPut, path: "/v1/settings/student_access", usr: &f.admin,
			body: "yes", wantCode: http.StatusBadRequest,
		},
		{
			name: "student writes global", method: http.MethodPut, path: "/v1/settings/layout", usr: &f.student,
			body: 2, wantCode: http.StatusForbidden,
		},
		{
			name: "student writes own scope", method: http.MethodPut, path: "/v1/settings/layout" + own, usr: &f.student,
			body: 2, wantCode: http.StatusOK, wantData: echo.Map{"key": "layout", "value": 2},
		},
		{
			name: "student reads another scope", path: "/v1/settings/layout?user=" + id(f.tutor.ID), usr: &f.student,
			wantCode: http.StatusForbidden,
		},
		{
			name: "global read falls back", path: "/v1/settings/layout", usr: &f.student,
			wantCode: http.StatusOK, wantData: echo.Map{"key": "layout", "value": 0},
		},
		{name: "stored is managers only", path: "/v1/settings/stored", usr: &f.teacher, wantCode: http.StatusForbidden},
	})

	t.Run("resolved", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/settings"+own, &f.student)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var values map[string]interface{}
		decode(t, rec, &values)
		assert.EqualValues(t, 2, values["layout"])
		assert.Equal(t, "Student Profile", values["dashboard_title"])
		assert.Equal(t, true, values["student_access"])
		assert.Len(t, values["rank_colours"], 3)
	})

	t.Run("stored", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/settings/stored", &f.admin)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var rows []map[string]interface{}
		decode(t, rec, &rows)
		assert.Len(t, rows, 2)
	})

	f.run(t, []httpTest{
		{name: "unset own", method: http.MethodDelete, path: "/v1/settings/layout" + own, usr: &f.student, wantCode: http.StatusNoContent},
		{
			name: "unset falls back", path: "/v1/settings/layout" + own, usr: &f.student,
			wantCode: http.StatusOK, wantData: echo.Map{"key": "layout", "value": 0},
		},
		{name: "unset unknown", method: http.MethodDelete, path: "/v1/settings/bogus", usr: &f.admin, wantCode: http.StatusNotFound},
	})
}
