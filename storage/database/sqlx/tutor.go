package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/tutor"
)

type tutorEntryRow struct {
	UserID    int64  `db:"user_id"`
	Username  string `db:"username"`
	Name      string `db:"name"`
	CourseID  int64  `db:"course_id"`
	CreatedAt int64  `db:"created_at"`
}

func (row tutorEntryRow) entry() tutor.Entry {
	return tutor.Entry{
		UserID:     row.UserID,
		Username:   row.Username,
		Name:       row.Name,
		CourseID:   row.CourseID,
		AssignedAt: core.FromUnix(row.CreatedAt),
	}
}

type tutorRepository struct {
	baseRepo
}

var _ tutor.Repository = (*tutorRepository)(nil) // interface compliance check

func NewTutorRepository(db core.DB) *tutorRepository {
	return &tutorRepository{baseRepo{db: db}}
}

func (repo tutorRepository) Assign(ctx context.Context, a tutor.Assignment, exec ...core.DBExecutor) (tutor.Assignment, error) {
	db := repo.getExec(exec)
	_, err := execAffected(ctx, db,
		`INSERT INTO tutor_assignments (tutor_id, student_id, course_id, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (tutor_id, student_id, course_id) DO NOTHING`,
		a.TutorID, a.StudentID, a.CourseID, core.ToUnix(a.CreatedAt))
	if err != nil {
		return a, errors.Wrap(err, "inserting tutor assignment")
	}

	var row struct {
		ID        int64 `db:"id"`
		CreatedAt int64 `db:"created_at"`
	}
	q := db.Rebind("SELECT id, created_at FROM tutor_assignments WHERE tutor_id = ? AND student_id = ? AND course_id = ?")
	if err = db.GetContext(ctx, &row, q, a.TutorID, a.StudentID, a.CourseID); err != nil {
		return a, trapNoRowsErr(err, tutor.ErrNotFound, "selecting tutor assignment")
	}
	a.ID, a.CreatedAt = row.ID, core.FromUnix(row.CreatedAt)
	return a, nil
}

func (repo tutorRepository) Unassign(ctx context.Context, tutorID, studentID, courseID int64, exec ...core.DBExecutor) error {
	n, err := execAffected(ctx, repo.getExec(exec),
		"DELETE FROM tutor_assignments WHERE tutor_id = ? AND student_id = ? AND course_id = ?", tutorID, studentID, courseID)
	if err != nil {
		return errors.Wrap(err, "deleting tutor assignment")
	}
	if n == 0 {
		return tutor.ErrNotFound
	}
	return nil
}

func (repo tutorRepository) ListTutees(ctx context.Context, tutorID int64, page core.Page, exec ...core.DBExecutor) ([]tutor.Entry, int, error) {
	db := repo.getExec(exec)
	var total int
	if err := db.GetContext(ctx, &total, db.Rebind("SELECT COUNT(*) FROM tutor_assignments WHERE tutor_id = ?"), tutorID); err != nil {
		return nil, 0, errors.Wrap(err, "counting tutees")
	}

	var rows []tutorEntryRow
	q := db.Rebind(`SELECT u.id AS user_id, COALESCE(u.username, '') AS username, u.name, ta.course_id, ta.created_at
		FROM tutor_assignments ta JOIN users u ON u.id = ta.student_id
		WHERE ta.tutor_id = ? ORDER BY u.name, u.id, ta.course_id LIMIT ? OFFSET ?`)
	if err := db.SelectContext(ctx, &rows, q, tutorID, page.Limit(), page.Offset()); err != nil {
		return nil, 0, errors.Wrap(err, "selecting tutees")
	}
	entries := make([]tutor.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.entry())
	}
	return entries, total, nil
}

func (repo tutorRepository) ListTutors(ctx context.Context, studentID int64, exec ...core.DBExecutor) ([]tutor.Entry, error) {
	db := repo.getExec(exec)
	var rows []tutorEntryRow
	q := db.Rebind(`SELECT u.id AS user_id, COALESCE(u.username, '') AS username, u.name, ta.course_id, ta.created_at
		FROM tutor_assignments ta JOIN users u ON u.id = ta.tutor_id
		WHERE ta.student_id = ? ORDER BY u.name, u.id, ta.course_id`)
	if err := db.SelectContext(ctx, &rows, q, studentID); err != nil {
		return nil, errors.Wrap(err, "selecting tutors")
	}
	entries := make([]tutor.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.entry())
	}
	return entries, nil
}

func (repo tutorRepository) ExportRows(ctx context.Context, exec ...core.DBExecutor) ([]tutor.ExportRow, error) {
	db := repo.getExec(exec)
	var rows []struct {
		StudentUsername string `db:"student_username"`
		TutorUsername   string `db:"tutor_username"`
		TutorName       string `db:"tutor_name"`
	}
	q := `SELECT DISTINCT COALESCE(s.username, '') AS student_username, COALESCE(t.username, '') AS tutor_username, t.name AS tutor_name
		FROM tutor_assignments ta
		JOIN users s ON s.id = ta.student_id
		JOIN users t ON t.id = ta.tutor_id
		ORDER BY student_username, tutor_username`
	if err := db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting tutor assignments")
	}
	out := make([]tutor.ExportRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, tutor.ExportRow(row))
	}
	return out, nil
}
