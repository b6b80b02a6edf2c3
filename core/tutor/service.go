package tutor

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/user"
)

var (
	ErrNotFound  = errors.Wrap(core.ErrNotFound, "tutor assignment")
	ErrBadHeader = fmt.Errorf("the header must be exactly %s", strings.Join(CSVHeader, ","))
)

type (
	Repository interface {
		// Assign is a no-op returning the existing row when the assignment exists.
		Assign(ctx context.Context, a Assignment, exec ...core.DBExecutor) (Assignment, error)
		Unassign(ctx context.Context, tutorID, studentID, courseID int64, exec ...core.DBExecutor) error
		ListTutees(ctx context.Context, tutorID int64, page core.Page, exec ...core.DBExecutor) ([]Entry, int, error)
		ListTutors(ctx context.Context, studentID int64, exec ...core.DBExecutor) ([]Entry, error)
		// ExportRows is sorted by student then tutor username.
		ExportRows(ctx context.Context, exec ...core.DBExecutor) ([]ExportRow, error)
	}

	Users interface {
		GetByID(ctx context.Context, id int64) (user.User, error)
		MapByUsername(ctx context.Context, usernames []string) (map[string]user.User, error)
	}

	Service struct {
		repo  Repository
		users Users
	}
)

func NewService(repo Repository, users Users) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
	).CheckAndPanic()
	return &Service{repo: repo, users: users}
}

func (svc *Service) Assign(ctx context.Context, validate *validator.Validate, na NewAssignment) (Assignment, error) {
	if err := validate.Struct(na); err != nil {
		return Assignment{}, err
	}
	for _, id := range []int64{na.TutorID, na.StudentID} {
		if _, err := svc.users.GetByID(ctx, id); err != nil {
			return Assignment{}, err
		}
	}
	return svc.repo.Assign(ctx, Assignment{
		TutorID:   na.TutorID,
		StudentID: na.StudentID,
		CourseID:  na.CourseID,
		CreatedAt: core.NowFunc(),
	})
}

func (svc *Service) Unassign(ctx context.Context, tutorID, studentID, courseID int64) error {
	return svc.repo.Unassign(ctx, tutorID, studentID, courseID)
}

func (svc *Service) ListTutees(ctx context.Context, tutorID int64, page core.Page) (core.Paginated, error) {
	page = page.Clean()
	entries, total, err := svc.repo.ListTutees(ctx, tutorID, page)
	if err != nil {
		return core.Paginated{}, err
	}
	return core.NewPaginated(entries, page, total), nil
}

func (svc *Service) ListTutors(ctx context.Context, studentID int64) ([]Entry, error) {
	return svc.repo.ListTutors(ctx, studentID)
}

type importRow struct {
	line    int
	student string
	tutor   string
}

// Import reads tutor assignments from CSV. The whole file is rejected when the header is wrong.
// Rows naming unknown users are skipped and reported with their line number;
// the other rows are assigned one by one and stay assigned whatever happens to later rows.
func (svc *Service) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	res := ImportResult{Errors: []ImportError{}}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return res, core.NewValidationError(ErrBadHeader, core.FieldError{Field: "file", Error: ErrBadHeader.Error()})
	}
	if err != nil {
		return res, errors.Wrap(err, "reading header")
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	if !validHeader(header) {
		return res, core.NewValidationError(ErrBadHeader, core.FieldError{Field: "file", Error: ErrBadHeader.Error()})
	}

	var rows []importRow
	usernames := make([]string, 0)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if perr, ok := err.(*csv.ParseError); ok {
				res.Errors = append(res.Errors, ImportError{Line: perr.Line, Message: perr.Err.Error()})
				continue
			}
			return res, errors.Wrap(err, "reading csv")
		}
		line, _ := reader.FieldPos(0)
		if len(record) != len(CSVHeader) {
			res.Errors = append(res.Errors, ImportError{Line: line, Message: fmt.Sprintf("expected %d fields, got %d", len(CSVHeader), len(record))})
			continue
		}
		row := importRow{
			line:    line,
			student: core.CleanString(record[0], true /* lower */),
			tutor:   core.CleanString(record[1], true /* lower */),
		}
		if row.student == "" || row.tutor == "" {
			res.Errors = append(res.Errors, ImportError{Line: line, Message: "Student_ID and Tutor_ID are required"})
			continue
		}
		rows = append(rows, row)
		usernames = append(usernames, row.student, row.tutor)
	}

	users, err := svc.users.MapByUsername(ctx, usernames)
	if err != nil {
		return res, err
	}

	for _, row := range rows {
		student, ok := users[row.student]
		if !ok {
			res.Errors = append(res.Errors, ImportError{Line: row.line, Message: fmt.Sprintf("unknown student %q", row.student)})
			continue
		}
		tutor, ok := users[row.tutor]
		if !ok {
			res.Errors = append(res.Errors, ImportError{Line: row.line, Message: fmt.Sprintf("unknown tutor %q", row.tutor)})
			continue
		}
		if student.ID == tutor.ID {
			res.Errors = append(res.Errors, ImportError{Line: row.line, Message: "a student cannot be their own tutor"})
			continue
		}
		_, err = svc.repo.Assign(ctx, Assignment{TutorID: tutor.ID, StudentID: student.ID, CreatedAt: core.NowFunc()})
		if err != nil {
			res.Errors = append(res.Errors, ImportError{Line: row.line, Message: err.Error()})
			continue
		}
		res.Imported++
	}
	return res, nil
}

func validHeader(header []string) bool {
	if len(header) != len(CSVHeader) {
		return false
	}
	for i, col := range CSVHeader {
		if header[i] != col {
			return false
		}
	}
	return true
}

// Export writes every assignment as CSV, header first.
func (svc *Service) Export(ctx context.Context, w io.Writer) error {
	rows, err := svc.repo.ExportRows(ctx)
	if err != nil {
		return err
	}
	writer := csv.NewWriter(w)
	if err = writer.Write(CSVHeader); err != nil {
		return errors.Wrap(err, "writing header")
	}
	for _, row := range rows {
		if err = writer.Write([]string{row.StudentUsername, row.TutorUsername, row.TutorName}); err != nil {
			return errors.Wrap(err, "writing row")
		}
	}
	writer.Flush()
	return errors.Wrap(writer.Error(), "flushing csv")
}
