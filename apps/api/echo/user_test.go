package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwarwicker/elbp/core/user"
	testutil "github.com/cwarwicker/elbp/tests"
)

func Test_userApi_login(t *testing.T) {
	f := setup(t)
	testutil.CreateUser(t, f.usrRepo, "Gone", "gone", "gone@example.com", "Sup3r-s3cret!", []string{user.RoleTeacher}, false)

	f.run(t, []httpTest{
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/users/login",
			body:     LoginBody{Username: "ada", Password: "nope"},
			wantCode: http.StatusBadRequest, wantData: httpErr{Error: "authentication failed"},
		},
		{
			name: "unknown user", method: http.MethodPost, path: "/v1/users/login",
			body:     LoginBody{Username: "nobody", Password: "Sup3r-s3cret!"},
			wantCode: http.StatusBadRequest, wantData: httpErr{Error: "authentication failed"},
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/v1/users/login",
			body:     LoginBody{Username: "gone", Password: "Sup3r-s3cret!"},
			wantCode: http.StatusForbidden, wantData: httpErr{Error: "account deactivated"},
		},
		{
			name: "missing password", method: http.MethodPost, path: "/v1/users/login",
			body:     LoginBody{Username: "ada"},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "malformed body", method: http.MethodPost, path: "/v1/users/login",
			body:     []byte("{"),
			wantCode: http.StatusBadRequest, wantData: httpErr{Error: "invalid credentials"},
		},
	})

	// username is case insensitive; the token authenticates further requests
	rec := f.do(t, http.MethodPost, "/v1/users/login", nil, LoginBody{Username: "ADA", Password: "Sup3r-s3cret!"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login struct {
		Token string `json:"token"`
	}
	decode(t, rec, &login)
	require.NotEmpty(t, login.Token)

	req, rec := newAuthRequest(http.MethodGet, "/v1/users/me", login.Token)
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var me user.User
	decode(t, rec, &me)
	assert.Equal(t, f.admin.ID, me.ID)
	assert.False(t, me.LastLogin.IsZero())

	req, rec = newAuthRequest(http.MethodPost, "/v1/users/token-refresh", login.Token)
	f.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type LoginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func Test_userApi_auth(t *testing.T) {
	f := setup(t)
	gone := testutil.CreateUser(t, f.usrRepo, "Gone", "gone", "gone@example.com", "", []string{user.RoleTeacher}, false)
	ghost := user.User{ID: 9999, Username: "ghost"}

	f.run(t, []httpTest{
		{name: "token required", path: "/v1/users/me", wantCode: http.StatusUnauthorized, wantData: errMissingToken},
		{name: "deactivated", path: "/v1/users/me", usr: &gone, wantCode: http.StatusForbidden, wantData: httpErr{Error: "account deactivated"}},
		{name: "deleted user", path: "/v1/users/me", usr: &ghost, wantCode: http.StatusUnauthorized, wantData: httpErr{Error: "user not authenticated"}},
		{name: "admin only", path: "/v1/users", usr: &f.student, wantCode: http.StatusForbidden, wantData: httpErr{Error: "permission denied"}},
		{name: "roles", path: "/v1/users/roles", usr: &f.admin, wantCode: http.StatusOK, wantData: user.Roles},
	})
}

func Test_userApi_crud(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// create
	rec := f.do(t, http.MethodPost, "/v1/users/register", &f.admin, user.NewUser{
		Name: "Nia New", Username: "nia", Email: "nia@example.com",
		Password: "c0rrect-Horse-battery", PasswordConfirm: "c0rrect-Horse-battery",
		Roles: []string{user.RoleTutor},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var nia user.User
	decode(t, rec, &nia)
	assert.Equal(t, "nia", nia.Username)

	rec = f.do(t, http.MethodPost, "/v1/users/register", &f.admin, user.NewUser{
		Name: "Nia Again", Username: "nia", Password: "c0rrect-Horse-battery", PasswordConfirm: "c0rrect-Horse-battery",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var fldErrs map[string]string
	decode(t, rec, &fldErrs)
	assert.Contains(t, fldErrs, "username")

	// query
	rec = f.do(t, http.MethodGet, "/v1/users?ordering=username", &f.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []user.User
	decode(t, rec, &users)
	unames := make([]string, 0, len(users))
	for _, u := range users {
		unames = append(unames, u.Username)
	}
	assert.Equal(t, []string{"ada", "nia", "sam", "tia", "tom"}, unames)

	// a user updates their own name only
	f.run(t, []httpTest{
		{
			name: "own name", method: http.MethodPut, path: "/v1/users/" + id(f.student.ID), usr: &f.student,
			body: user.UpdateUser{Name: "Sammy"}, wantCode: http.StatusOK,
		},
		{
			name: "own roles", method: http.MethodPut, path: "/v1/users/" + id(f.student.ID), usr: &f.student,
			body: user.UpdateUser{Roles: []string{user.RoleAdmin}}, wantCode: http.StatusForbidden,
		},
		{name: "someone else", path: "/v1/users/" + id(f.admin.ID), usr: &f.student, wantCode: http.StatusNotFound},
		{name: "bad id", path: "/v1/users/abc", usr: &f.admin, wantCode: http.StatusNotFound},
		{name: "self delete", method: http.MethodDelete, path: "/v1/users/" + id(f.admin.ID), usr: &f.admin, wantCode: http.StatusForbidden},
		{name: "delete", method: http.MethodDelete, path: "/v1/users/" + id(nia.ID), usr: &f.admin, wantCode: http.StatusNoContent},
		{
			name: "delete many with self", method: http.MethodDelete,
			path: "/v1/users?id=" + id(f.teacher.ID) + "&id=" + id(f.admin.ID), usr: &f.admin, wantCode: http.StatusForbidden,
		},
		{name: "delete many", method: http.MethodDelete, path: "/v1/users?id=" + id(f.teacher.ID), usr: &f.admin, wantCode: http.StatusNoContent},
	})

	sam, err := f.c.Users.GetByID(ctx, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sammy", sam.Name)
	_, err = f.c.Users.GetByID(ctx, f.teacher.ID)
	assert.Error(t, err)
}
