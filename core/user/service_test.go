package user_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/user"
	inmemdb "github.com/cwarwicker/elbp/storage/database/inmem"
)

func newService(t *testing.T) *user.Service {
	t.Helper()
	svc := user.NewService(inmemdb.NewUserRepository(inmemdb.NewDB()))
	ctx := context.Background()
	for _, nu := range []user.NewUser{
		{Name: "Ada Admin", Username: "ada", Email: "ada@example.com", Password: "Sup3r-s3cret!", Roles: []string{user.RoleAdmin}},
		{Name: "Tia Tutor", Username: "tia", Email: "tia@example.com", Password: "Sup3r-s3cret!", Roles: []string{user.RoleTutor}},
		{Name: "Sam Student", Username: "sam", Email: "sam@example.com", Password: "Sup3r-s3cret!", Roles: []string{user.RoleStudent}},
	} {
		_, err := svc.Create(ctx, nu)
		require.NoError(t, err)
	}
	return svc
}

func TestService_CheckUniqueness(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	sam, err := svc.GetByUsername(ctx, "sam")
	require.NoError(t, err)

	tests := []struct {
		name      string
		uname     string
		email     string
		excl      []user.User
		wantField string
	}{
		{name: "free", uname: "zoe", email: "zoe@example.com"},
		{name: "username taken", uname: "sam", email: "zoe@example.com", wantField: "username"},
		{name: "email taken", uname: "zoe", email: "sam@example.com", wantField: "email"},
		{name: "taken by the excluded user", uname: "sam", email: "sam@example.com", excl: []user.User{sam}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.CheckUniqueness(ctx, tt.uname, tt.email, tt.excl...)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *core.ValidationError
			require.True(t, errors.As(err, &verr))
			require.Len(t, verr.Fields, 1)
			assert.Equal(t, tt.wantField, verr.Fields[0].Field)
		})
	}
}

func TestService_Query(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	active := true

	tests := []struct {
		name     string
		filter   *user.QueryFilter
		ordering []core.DBOrdering
		want     []string
	}{
		{name: "all by id", want: []string{"ada", "tia", "sam"}},
		{name: "by username", ordering: []core.DBOrdering{{Field: "username", Ascending: true}}, want: []string{"ada", "sam", "tia"}},
		{name: "by name desc", ordering: []core.DBOrdering{{Field: "name"}}, want: []string{"tia", "sam", "ada"}},
		{name: "search", filter: &user.QueryFilter{Search: "TUTOR"}, want: []string{"tia"}},
		{name: "roles", filter: &user.QueryFilter{Roles: []string{user.RoleStudent, user.RoleAdmin}}, want: []string{"ada", "sam"}},
		{name: "active", filter: &user.QueryFilter{IsActive: &active, Search: "example"}, want: []string{"ada", "tia", "sam"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := svc.Query(ctx, tt.filter, tt.ordering)
			require.NoError(t, err)
			got := make([]string, 0, len(users))
			for _, u := range users {
				got = append(got, u.Username)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_lookups(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	usr, err := svc.GetByUsernameOrEmail(ctx, " SAM@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "sam", usr.Username)

	_, err = svc.GetByUsername(ctx, "ghost")
	assert.True(t, core.IsNotFound(err))

	users, err := svc.MapByUsername(ctx, []string{" Sam", "ghost", "", "TIA"})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, "Tia Tutor", users["tia"].Name)

	users, err = svc.MapByUsername(ctx, []string{" "})
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestService_Update(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	sam, err := svc.GetByUsername(ctx, "sam")
	require.NoError(t, err)

	inactive := false
	updated, err := svc.Update(ctx, sam, user.UpdateUser{
		Name:     "Samuel Student",
		Username: "sam",
		Email:    "samuel@example.com",
		IsActive: &inactive,
		Password: "N3w-s3cret!",
	})
	require.NoError(t, err)
	assert.Equal(t, "Samuel Student", updated.Name)
	assert.False(t, updated.IsActive)
	assert.Equal(t, []string{user.RoleStudent}, updated.Roles)
	assert.NoError(t, updated.CheckPassword("N3w-s3cret!"))

	updated, err = svc.SetLastLogin(ctx, updated)
	require.NoError(t, err)
	assert.False(t, updated.LastLogin.IsZero())

	require.NoError(t, svc.ResetPassword(ctx, "samuel@example.com", "R3set-s3cret!"))
	refreshed, err := svc.GetByID(ctx, sam.ID)
	require.NoError(t, err)
	assert.NoError(t, refreshed.CheckPassword("R3set-s3cret!"))

	assert.True(t, core.IsNotFound(svc.ResetPassword(ctx, "ghost", "whatever")))
}

func TestService_UpdateOrCreate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	created, err := svc.UpdateOrCreate(ctx, user.User{Name: "Zoe", Username: "zoe", IsActive: true})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	updated, err := svc.UpdateOrCreate(ctx, user.User{Name: "Zoe Z", Username: "zoe", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Zoe Z", updated.Name)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
}

func TestService_Delete(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	tia, err := svc.GetByUsername(ctx, "tia")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, tia.ID, 999))
	_, err = svc.GetByID(ctx, tia.ID)
	assert.True(t, core.IsNotFound(err))

	users, err := svc.Query(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}
