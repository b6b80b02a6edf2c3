package course

import (
	"context"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
)

var (
	ErrNotFound     = errors.Wrap(core.ErrNotFound, "course")
	ErrCourseExists = errors.New("a course with this shortname already exists")
)

type (
	Repository interface {
		CourseExists(ctx context.Context, shortname string, exec ...core.DBExecutor) (bool, error)
		CreateCourse(ctx context.Context, crs Course, exec ...core.DBExecutor) (Course, error)
		GetCourse(ctx context.Context, id int64, exec ...core.DBExecutor) (Course, error)
		QueryCourses(ctx context.Context, search string, page core.Page, exec ...core.DBExecutor) ([]Course, int, error)
		DeleteCourse(ctx context.Context, id int64, exec ...core.DBExecutor) error
		// Enrol is a no-op when the enrolment already exists.
		Enrol(ctx context.Context, enr Enrolment, exec ...core.DBExecutor) error
		Unenrol(ctx context.Context, courseID, userID int64, role string, exec ...core.DBExecutor) error
		ListEnrolments(ctx context.Context, courseID int64, exec ...core.DBExecutor) ([]Enrolment, error)
		// UserCourses returns the courses userID is enrolled on, with any role.
		UserCourses(ctx context.Context, userID int64, exec ...core.DBExecutor) ([]Course, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()
	return &Service{repo: repo}
}

func (svc *Service) CheckUniqueness(ctx context.Context, shortname string) error {
	exists, err := svc.repo.CourseExists(ctx, shortname)
	if err != nil {
		return err
	}
	if exists {
		return core.NewValidationError(ErrCourseExists, core.FieldError{Field: "shortname", Error: ErrCourseExists.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	return svc.repo.CreateCourse(ctx, Course{
		Shortname: nc.Shortname,
		Fullname:  nc.Fullname,
		CreatedAt: core.NowFunc(),
	})
}

func (svc *Service) Get(ctx context.Context, id int64) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *Service) Query(ctx context.Context, search string, page core.Page) (core.Paginated, error) {
	courses, total, err := svc.repo.QueryCourses(ctx, core.CleanString(search), page.Clean())
	if err != nil {
		return core.Paginated{}, err
	}
	return core.NewPaginated(courses, page, total), nil
}

func (svc *Service) Delete(ctx context.Context, id int64) error {
	return svc.repo.DeleteCourse(ctx, id)
}

func (svc *Service) Enrol(ctx context.Context, courseID int64, ne NewEnrolment) (Enrolment, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return Enrolment{}, err
	}
	enr := Enrolment{CourseID: courseID, UserID: ne.UserID, Role: ne.Role, CreatedAt: core.NowFunc()}
	if err := svc.repo.Enrol(ctx, enr); err != nil {
		return Enrolment{}, err
	}
	return enr, nil
}

func (svc *Service) Unenrol(ctx context.Context, courseID, userID int64, role string) error {
	return svc.repo.Unenrol(ctx, courseID, userID, role)
}

func (svc *Service) Enrolments(ctx context.Context, courseID int64) ([]Enrolment, error) {
	return svc.repo.ListEnrolments(ctx, courseID)
}

func (svc *Service) UserCourses(ctx context.Context, userID int64) ([]Course, error) {
	return svc.repo.UserCourses(ctx, userID)
}
