package permission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwarwicker/elbp/core/user"
)

type fakeSource struct {
	tutors   map[[2]int64]bool
	teachers map[[3]int64]bool
}

func (f fakeSource) IsPersonalTutor(_ context.Context, tutorID, studentID int64) (bool, error) {
	return f.tutors[[2]int64{tutorID, studentID}], nil
}

func (f fakeSource) IsCourseTeacher(_ context.Context, teacherID, studentID, courseID int64) (bool, error) {
	return f.teachers[[3]int64{teacherID, studentID, courseID}], nil
}

func TestResolve(t *testing.T) {
	src := &fakeSource{
		tutors:   map[[2]int64]bool{{2, 10}: true},
		teachers: map[[3]int64]bool{{3, 10, 7}: true},
	}
	r := NewResolver(src)

	admin := user.User{ID: 1, Roles: []string{user.RoleAdmin}}
	tutor := user.User{ID: 2, Roles: []string{user.RoleTutor}}
	teacher := user.User{ID: 3, Roles: []string{user.RoleTeacher}}
	student := user.User{ID: 10, Roles: []string{user.RoleStudent}}
	other := user.User{ID: 11, Roles: []string{user.RoleStudent}}

	tests := []struct {
		name     string
		viewer   user.User
		course   int64
		wantHas  []Capability
		wantMiss []Capability
	}{
		{name: "admin", viewer: admin, wantHas: []Capability{CapViewAllStudents, CapManagePlugins, CapMIS}},
		{name: "personal tutor", viewer: tutor, wantHas: []Capability{CapViewDashboard, CapDeleteRecords}, wantMiss: []Capability{CapManagePlugins}},
		{name: "teacher on course", viewer: teacher, course: 7, wantHas: []Capability{CapViewDashboard, CapAddRecords}, wantMiss: []Capability{CapDeleteRecords}},
		{name: "teacher on other course", viewer: teacher, course: 8, wantMiss: []Capability{CapViewDashboard}},
		{name: "self", viewer: student, wantHas: []Capability{CapViewDashboard, CapViewOwn}, wantMiss: []Capability{CapAddRecords}},
		{name: "other student", viewer: other, wantHas: []Capability{CapViewOwn}, wantMiss: []Capability{CapViewDashboard}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := r.Resolve(context.Background(), tt.viewer, student.ID, tt.course)
			require.NoError(t, err)
			for _, c := range tt.wantHas {
				assert.True(t, set.Has(c), "missing %s", capNames[c])
			}
			for _, c := range tt.wantMiss {
				assert.False(t, set.Has(c), "unexpected %s", capNames[c])
			}
		})
	}
}

func TestSetNames(t *testing.T) {
	s := Set(0).With(CapViewOwn, CapMIS)
	assert.Equal(t, []string{"view_own", "mis"}, s.Names())
	assert.True(t, s.Has(CapViewOwn, CapMIS))
	assert.False(t, s.Has(CapViewOwn, CapAddRecords))
}
