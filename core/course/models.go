package course

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cwarwicker/elbp/core"
)

// Enrolment roles
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

type Course struct {
	ID        int64     `json:"id"`
	Shortname string    `json:"shortname"`
	Fullname  string    `json:"fullname"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type Enrolment struct {
	ID        int64     `json:"id"`
	CourseID  int64     `json:"course_id"`
	UserID    int64     `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Shortname string `json:"shortname" validate:"required,max=100"`
	Fullname  string `json:"fullname" validate:"max=255"`
}

func (nc *NewCourse) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nc.Shortname = core.CleanString(nc.Shortname)
	nc.Fullname = core.CleanString(nc.Fullname)
	if err := validate.Struct(nc); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nc.Shortname)
}

// NewEnrolment enrols a user on a course.
type NewEnrolment struct {
	UserID int64  `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=teacher student"`
}
