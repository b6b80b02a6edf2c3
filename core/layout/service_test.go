package layout_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/layout"
	sqlxrepos "github.com/cwarwicker/elbp/storage/database/sqlx"
	testutil "github.com/cwarwicker/elbp/tests"
)

func newValidate() *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	return validate
}

func defaults(layouts []layout.Layout) []string {
	var names []string
	for _, l := range layouts {
		if l.IsDefault {
			names = append(names, l.Name)
		}
	}
	return names
}

func TestService_SaveAll(t *testing.T) {
	ctx := context.Background()
	validate := newValidate()

	tests := []struct {
		name        string
		forms       []layout.Form
		wantDefault string
	}{
		{
			name: "first submitted default wins",
			forms: []layout.Form{
				{Name: "Staff", Enabled: true},
				{Name: "Students", Enabled: true, IsDefault: true},
				{Name: "Tutors", Enabled: true, IsDefault: true},
			},
			wantDefault: "Students",
		},
		{
			name: "first enabled when none submitted",
			forms: []layout.Form{
				{Name: "Archive"},
				{Name: "Staff", Enabled: true},
			},
			wantDefault: "Staff",
		},
		{
			name:        "first when none enabled",
			forms:       []layout.Form{{Name: "Archive"}, {Name: "Old"}},
			wantDefault: "Archive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.PrepareDB(t)
			svc := layout.NewService(sqlxrepos.NewLayoutRepository(db), db)

			_, err := svc.SaveAll(ctx, validate, tt.forms)
			require.NoError(t, err)

			layouts, err := svc.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.wantDefault}, defaults(layouts))

			def, err := svc.Default(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDefault, def.Name)
		})
	}
}

func TestService_SaveAllReplaces(t *testing.T) {
	ctx := context.Background()
	validate := newValidate()
	db := testutil.PrepareDB(t)
	svc := layout.NewService(sqlxrepos.NewLayoutRepository(db), db)

	saved, err := svc.SaveAll(ctx, validate, []layout.Form{
		{Name: "Main", Enabled: true, IsDefault: true, Groups: []layout.GroupForm{
			{Name: "Progress", Plugins: []string{"attendance", "targets"}},
			{Name: "Pastoral", Plugins: []string{"tutorials"}},
		}},
		{Name: "Spare", Enabled: true},
	})
	require.NoError(t, err)
	require.Len(t, saved, 2)

	// keep Main, drop Spare, add New
	kept := saved[0]
	_, err = svc.SaveAll(ctx, validate, []layout.Form{
		{ID: kept.ID, Name: "Main", Enabled: true, Groups: []layout.GroupForm{{Name: "Everything", Plugins: []string{"reports"}}}},
		{Name: "New", Enabled: true, IsDefault: true},
	})
	require.NoError(t, err)

	layouts, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, layouts, 2)
	assert.Equal(t, []string{"New"}, defaults(layouts))

	got, err := svc.Get(ctx, kept.ID)
	require.NoError(t, err)
	require.Len(t, got.Groups, 1)
	assert.Equal(t, []string{"reports"}, got.Groups[0].Plugins)
	assert.True(t, got.HasPlugin("reports"))
	assert.False(t, got.HasPlugin("attendance"))

	_, err = svc.Get(ctx, saved[1].ID)
	assert.True(t, core.IsNotFound(err))

	// unknown id rolls the whole save back
	_, err = svc.SaveAll(ctx, validate, []layout.Form{{ID: 999, Name: "Ghost", Enabled: true}})
	assert.True(t, core.IsNotFound(err))
	layouts, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, layouts, 2)

	// invalid plugin name in a group
	_, err = svc.SaveAll(ctx, validate, []layout.Form{{Name: "Bad", Groups: []layout.GroupForm{{Name: "G", Plugins: []string{"Not Valid"}}}}})
	assert.Error(t, err)
}

func TestService_SaveAllDuplicateID(t *testing.T) {
	ctx := context.Background()
	validate := newValidate()
	db := testutil.PrepareDB(t)
	svc := layout.NewService(sqlxrepos.NewLayoutRepository(db), db)

	saved, err := svc.SaveAll(ctx, validate, []layout.Form{{Name: "Main", Enabled: true, IsDefault: true}})
	require.NoError(t, err)
	id := saved[0].ID

	_, err = svc.SaveAll(ctx, validate, []layout.Form{
		{ID: id, Name: "Main", Enabled: true, IsDefault: true},
		{ID: id, Name: "Copy", Enabled: true},
	})
	require.Error(t, err)
	verr, ok := err.(*core.ValidationError)
	require.True(t, ok)
	assert.Equal(t, []core.FieldError{{Field: "id", Error: layout.ErrDuplicateID.Error()}}, verr.Fields)

	// nothing changed
	layouts, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Main"}, defaults(layouts))
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	svc := layout.NewService(sqlxrepos.NewLayoutRepository(db), db)

	saved, err := svc.SaveAll(ctx, newValidate(), []layout.Form{{Name: "A", Enabled: true}, {Name: "B", Enabled: true}})
	require.NoError(t, err)

	err = svc.Delete(ctx, saved[0].ID)
	_, ok := err.(*core.ValidationError)
	assert.True(t, ok, "the default layout cannot be deleted")

	require.NoError(t, svc.Delete(ctx, saved[1].ID))
	assert.True(t, core.IsNotFound(svc.Delete(ctx, saved[1].ID)))

	l, err := svc.ForUser(ctx, saved[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "A", l.Name)
}
