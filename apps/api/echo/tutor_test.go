package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwarwicker/elbp/core/tutor"
)

func Test_tutorApi_import(t *testing.T) {
	f := setup(t)
	csv := "Student_ID,Tutor_ID,Tutor_Name\nsam,tia,Tia Tutor\nghost,tia,Tia Tutor\n"

	rec := f.upload(t, "/v1/tutors/import", f.teacher, "tutors.csv", []byte(csv))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.upload(t, "/v1/tutors/import", f.admin, "tutors.csv", []byte("Student,Tutor\nsam,tia\n"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var fldErrs map[string]string
	decode(t, rec, &fldErrs)
	assert.Equal(t, tutor.ErrBadHeader.Error(), fldErrs["file"])

	rec = f.upload(t, "/v1/tutors/import", f.admin, "tutors.csv", []byte(csv))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res tutor.ImportResult
	decode(t, rec, &res)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, []tutor.ImportError{{Line: 3, Message: `unknown student "ghost"`}}, res.Errors)

	t.Run("export", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/tutors/export", &f.admin)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get(echo.HeaderContentType))
		assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "tutors.csv")
		assert.Equal(t, "Student_ID,Tutor_ID,Tutor_Name\nsam,tia,Tia Tutor\n", rec.Body.String())

		rec = f.do(t, http.MethodGet, "/v1/tutors/export", &f.tutor)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("listing", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/v1/tutors/"+id(f.tutor.ID)+"/tutees", &f.tutor)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var page struct {
			Items []tutor.Entry `json:"items"`
			Total int           `json:"total"`
		}
		decode(t, rec, &page)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "sam", page.Items[0].Username)

		rec = f.do(t, http.MethodGet, "/v1/students/"+id(f.student.ID)+"/tutors", &f.student)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var tutors []tutor.Entry
		decode(t, rec, &tutors)
		require.Len(t, tutors, 1)
		assert.Equal(t, f.tutor.ID, tutors[0].UserID)

		f.run(t, []httpTest{
			{name: "other tutees", path: "/v1/tutors/" + id(f.tutor.ID) + "/tutees", usr: &f.teacher, wantCode: http.StatusForbidden},
			{name: "other student", path: "/v1/students/" + id(f.student.ID) + "/tutors", usr: &f.teacher, wantCode: http.StatusForbidden},
		})
	})

	f.run(t, []httpTest{
		{
			name: "assign self", method: http.MethodPost, path: "/v1/tutors", usr: &f.admin,
			body: tutor.NewAssignment{TutorID: f.tutor.ID, StudentID: f.tutor.ID}, wantCode: http.StatusBadRequest,
		},
		{
			name: "assign unknown", method: http.MethodPost, path: "/v1/tutors", usr: &f.admin,
			body: tutor.NewAssignment{TutorID: f.tutor.ID, StudentID: 999}, wantCode: http.StatusNotFound,
		},
		{name: "unassign needs ids", method: http.MethodDelete, path: "/v1/tutors?tutor=" + id(f.tutor.ID), usr: &f.admin, wantCode: http.StatusBadRequest},
		{
			name: "unassign", method: http.MethodDelete, usr: &f.admin,
			path: "/v1/tutors?tutor=" + id(f.tutor.ID) + "&student=" + id(f.student.ID), wantCode: http.StatusNoContent,
		},
		{
			name: "tutor loses access", method: http.MethodGet, path: "/v1/students/" + id(f.student.ID),
			usr: &f.tutor, wantCode: http.StatusForbidden,
		},
	})
}
