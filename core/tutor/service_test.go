package tutor_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/tutor"
	"github.com/cwarwicker/elbp/core/user"
	sqlxrepos "github.com/cwarwicker/elbp/storage/database/sqlx"
	testutil "github.com/cwarwicker/elbp/tests"
)

type fixture struct {
	db      *sqlx.DB
	svc     *tutor.Service
	alice   user.User
	bob     user.User
	mrsmith user.User
}

func setup(t *testing.T) fixture {
	db := testutil.PrepareDB(t)
	userRepo := sqlxrepos.NewUserRepository(db)
	f := fixture{
		db:      db,
		svc:     tutor.NewService(sqlxrepos.NewTutorRepository(db), user.NewService(userRepo)),
		alice:   testutil.CreateUser(t, userRepo, "Alice", "alice", "alice@example.com", "", []string{user.RoleStudent}, true),
		bob:     testutil.CreateUser(t, userRepo, "Bob", "bob", "bob@example.com", "", []string{user.RoleStudent}, true),
		mrsmith: testutil.CreateUser(t, userRepo, "Mr Smith", "msmith", "smith@example.com", "", []string{user.RoleTutor}, true),
	}
	return f
}

func countAssignments(t *testing.T, db *sqlx.DB) int {
	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM tutor_assignments"))
	return n
}

func TestService_ImportHeader(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	tests := []struct {
		name string
		csv  string
	}{
		{name: "empty file", csv: ""},
		{name: "wrong case", csv: "student_id,tutor_id,tutor_name\nalice,msmith,Mr Smith\n"},
		{name: "missing column", csv: "Student_ID,Tutor_ID\nalice,msmith\n"},
		{name: "extra column", csv: "Student_ID,Tutor_ID,Tutor_Name,Course\nalice,msmith,Mr Smith,MATH\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Import(ctx, strings.NewReader(tt.csv))
			require.Error(t, err)
			assert.Equal(t, tutor.ErrBadHeader, validationCause(err))
			assert.Equal(t, 0, countAssignments(t, f.db))
		})
	}
}

func validationCause(err error) error {
	if verr, ok := err.(*core.ValidationError); ok {
		return verr.Err
	}
	return err
}

func TestService_ImportSkipsUnknownUsers(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	csv := "\ufeffStudent_ID,Tutor_ID,Tutor_Name\n" + // BOM written by spreadsheet apps
		"alice,msmith,Mr Smith\n" + // line 2
		"ghost,msmith,Mr Smith\n" + // line 3: unknown student
		"BOB,msmith,Mr Smith\n" + // line 4
		"bob,nobody,Nobody\n" + // line 5: unknown tutor
		"bob\n" // line 6: missing fields

	res, err := f.svc.Import(ctx, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	require.Len(t, res.Errors, 3)
	lines := []int{res.Errors[0].Line, res.Errors[1].Line, res.Errors[2].Line}
	assert.ElementsMatch(t, []int{3, 5, 6}, lines)
	assert.Equal(t, 2, countAssignments(t, f.db))

	// importing the same file again adds nothing
	res, err = f.svc.Import(ctx, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 2, countAssignments(t, f.db))

	tutees, err := f.svc.ListTutees(ctx, f.mrsmith.ID, core.Page{Number: 1, PerPage: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, tutees.Total)
	assert.Equal(t, 2, tutees.TotalPages)
	assert.Equal(t, "Alice", tutees.Items.([]tutor.Entry)[0].Name)
}

func TestService_Export(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	validate := validator.New()

	for _, student := range []user.User{f.bob, f.alice} {
		_, err := f.svc.Assign(ctx, validate, tutor.NewAssignment{TutorID: f.mrsmith.ID, StudentID: student.ID})
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, f.svc.Export(ctx, &buf))
	assert.Equal(t, "Student_ID,Tutor_ID,Tutor_Name\nalice,msmith,Mr Smith\nbob,msmith,Mr Smith\n", buf.String())

	// what is exported can be imported back
	res, err := f.svc.Import(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Empty(t, res.Errors)
}

func TestService_AssignUnassign(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	validate := validator.New()

	_, err := f.svc.Assign(ctx, validate, tutor.NewAssignment{TutorID: f.alice.ID, StudentID: f.alice.ID})
	assert.Error(t, err, "self assignment")

	_, err = f.svc.Assign(ctx, validate, tutor.NewAssignment{TutorID: 999, StudentID: f.alice.ID})
	assert.True(t, core.IsNotFound(err))

	a, err := f.svc.Assign(ctx, validate, tutor.NewAssignment{TutorID: f.mrsmith.ID, StudentID: f.alice.ID, CourseID: 3})
	require.NoError(t, err)
	assert.NotZero(t, a.ID)

	tutors, err := f.svc.ListTutors(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, tutors, 1)
	assert.Equal(t, "msmith", tutors[0].Username)
	assert.Equal(t, int64(3), tutors[0].CourseID)

	require.NoError(t, f.svc.Unassign(ctx, f.mrsmith.ID, f.alice.ID, 3))
	assert.True(t, core.IsNotFound(f.svc.Unassign(ctx, f.mrsmith.ID, f.alice.ID, 3)))
}
