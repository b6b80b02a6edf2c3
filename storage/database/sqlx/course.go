package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/course"
)

type courseRow struct {
	ID        int64  `db:"id"`
	Shortname string `db:"shortname"`
	Fullname  string `db:"fullname"`
	CreatedAt int64  `db:"created_at"`
}

func (row courseRow) course() course.Course {
	return course.Course{ID: row.ID, Shortname: row.Shortname, Fullname: row.Fullname, CreatedAt: core.FromUnix(row.CreatedAt)}
}

type enrolmentRow struct {
	ID        int64  `db:"id"`
	CourseID  int64  `db:"course_id"`
	UserID    int64  `db:"user_id"`
	Role      string `db:"role"`
	CreatedAt int64  `db:"created_at"`
}

type courseRepository struct {
	baseRepo
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db core.DB) *courseRepository {
	return &courseRepository{baseRepo{db: db}}
}

func (repo courseRepository) CourseExists(ctx context.Context, shortname string, exec ...core.DBExecutor) (bool, error) {
	db := repo.getExec(exec)
	var count int
	if err := db.GetContext(ctx, &count, db.Rebind("SELECT COUNT(*) FROM courses WHERE shortname = ?"), shortname); err != nil {
		return false, errors.Wrap(err, "checking course")
	}
	return count > 0, nil
}

func (repo courseRepository) CreateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	id, err := insert(ctx, repo.getExec(exec),
		"INSERT INTO courses (shortname, fullname, created_at) VALUES (?, ?, ?)",
		crs.Shortname, crs.Fullname, core.ToUnix(crs.CreatedAt))
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	crs.ID = id
	return crs, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id int64, exec ...core.DBExecutor) (course.Course, error) {
	db := repo.getExec(exec)
	var row courseRow
	if err := db.GetContext(ctx, &row, db.Rebind("SELECT id, shortname, fullname, created_at FROM courses WHERE id = ?"), id); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "selecting course")
	}
	return row.course(), nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, search string, page core.Page, exec ...core.DBExecutor) ([]course.Course, int, error) {
	db := repo.getExec(exec)
	where := ""
	var args []interface{}
	if search != "" {
		where = " WHERE LOWER(shortname) LIKE ? OR LOWER(fullname) LIKE ?"
		args = append(args, likeArg(search), likeArg(search))
	}

	var total int
	if err := db.GetContext(ctx, &total, db.Rebind("SELECT COUNT(*) FROM courses"+where), args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting courses")
	}

	var rows []courseRow
	q := "SELECT id, shortname, fullname, created_at FROM courses" + where + " ORDER BY shortname ASC LIMIT ? OFFSET ?"
	if err := db.SelectContext(ctx, &rows, db.Rebind(q), append(args, page.Limit(), page.Offset())...); err != nil {
		return nil, 0, errors.Wrap(err, "selecting courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.course())
	}
	return courses, total, nil
}

func (repo courseRepository) DeleteCourse(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	n, err := execAffected(ctx, repo.getExec(exec), "DELETE FROM courses WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	if n == 0 {
		return course.ErrNotFound
	}
	return nil
}

func (repo courseRepository) Enrol(ctx context.Context, enr course.Enrolment, exec ...core.DBExecutor) error {
	_, err := execAffected(ctx, repo.getExec(exec),
		`INSERT INTO enrolments (course_id, user_id, role, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (course_id, user_id, role) DO NOTHING`,
		enr.CourseID, enr.UserID, enr.Role, core.ToUnix(enr.CreatedAt))
	return errors.Wrap(err, "inserting enrolment")
}

func (repo courseRepository) Unenrol(ctx context.Context, courseID, userID int64, role string, exec ...core.DBExecutor) error {
	_, err := execAffected(ctx, repo.getExec(exec),
		"DELETE FROM enrolments WHERE course_id = ? AND user_id = ? AND role = ?", courseID, userID, role)
	return errors.Wrap(err, "deleting enrolment")
}

func (repo courseRepository) ListEnrolments(ctx context.Context, courseID int64, exec ...core.DBExecutor) ([]course.Enrolment, error) {
	db := repo.getExec(exec)
	var rows []enrolmentRow
	q := "SELECT id, course_id, user_id, role, created_at FROM enrolments WHERE course_id = ? ORDER BY role, user_id"
	if err := db.SelectContext(ctx, &rows, db.Rebind(q), courseID); err != nil {
		return nil, errors.Wrap(err, "selecting enrolments")
	}
	enrolments := make([]course.Enrolment, 0, len(rows))
	for _, row := range rows {
		enrolments = append(enrolments, course.Enrolment{
			ID: row.ID, CourseID: row.CourseID, UserID: row.UserID, Role: row.Role, CreatedAt: core.FromUnix(row.CreatedAt),
		})
	}
	return enrolments, nil
}

func (repo courseRepository) UserCourses(ctx context.Context, userID int64, exec ...core.DBExecutor) ([]course.Course, error) {
	db := repo.getExec(exec)
	var rows []courseRow
	q := `SELECT DISTINCT c.id, c.shortname, c.fullname, c.created_at FROM courses c
		JOIN enrolments e ON e.course_id = c.id WHERE e.user_id = ? ORDER BY c.shortname`
	if err := db.SelectContext(ctx, &rows, db.Rebind(q), userID); err != nil {
		return nil, errors.Wrap(err, "selecting user courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.course())
	}
	return courses, nil
}
