package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/course"
	"github.com/cwarwicker/elbp/core/permission"
)

type permissionSource struct {
	baseRepo
}

var _ permission.ContextSource = (*permissionSource)(nil) // interface compliance check

func NewPermissionSource(db core.DB) *permissionSource {
	return &permissionSource{baseRepo{db: db}}
}

func (src permissionSource) IsPersonalTutor(ctx context.Context, tutorID, studentID int64) (bool, error) {
	var count int
	q := src.db.Rebind("SELECT COUNT(*) FROM tutor_assignments WHERE tutor_id = ? AND student_id = ?")
	if err := src.db.GetContext(ctx, &count, q, tutorID, studentID); err != nil {
		return false, errors.Wrap(err, "checking tutor assignment")
	}
	return count > 0, nil
}

func (src permissionSource) IsCourseTeacher(ctx context.Context, teacherID, studentID, courseID int64) (bool, error) {
	q := `SELECT COUNT(*) FROM enrolments t JOIN enrolments s ON s.course_id = t.course_id
		WHERE t.user_id = ? AND t.role = ? AND s.user_id = ? AND s.role = ?`
	args := []interface{}{teacherID, course.RoleTeacher, studentID, course.RoleStudent}
	if courseID != 0 {
		q += " AND t.course_id = ?"
		args = append(args, courseID)
	}
	var count int
	if err := src.db.GetContext(ctx, &count, src.db.Rebind(q), args...); err != nil {
		return false, errors.Wrap(err, "checking course teacher")
	}
	return count > 0, nil
}
