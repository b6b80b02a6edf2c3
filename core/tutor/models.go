package tutor

import (
	"time"
)

// CSVHeader is the exact header of the import/export file.
var CSVHeader = []string{"Student_ID", "Tutor_ID", "Tutor_Name"}

type (
	// Assignment links a personal tutor to a student, optionally for one course (0 = all).
	Assignment struct {
		ID        int64     `json:"id"`
		TutorID   int64     `json:"tutor_id"`
		StudentID int64     `json:"student_id"`
		CourseID  int64     `json:"course_id"`
		CreatedAt time.Time `json:"created_at"` // UTC
	}

	NewAssignment struct {
		TutorID   int64 `json:"tutor_id" validate:"required,gt=0"`
		StudentID int64 `json:"student_id" validate:"required,gt=0,nefield=TutorID"`
		CourseID  int64 `json:"course_id" validate:"gte=0"`
	}

	// Entry is the other side of an assignment as listed for a tutor or a student.
	Entry struct {
		UserID     int64     `json:"user_id"`
		Username   string    `json:"username"`
		Name       string    `json:"name"`
		CourseID   int64     `json:"course_id"`
		AssignedAt time.Time `json:"assigned_at"` // UTC
	}

	ExportRow struct {
		StudentUsername string
		TutorUsername   string
		TutorName       string
	}

	ImportError struct {
		Line    int    `json:"line"`
		Message string `json:"message"`
	}

	ImportResult struct {
		Imported int           `json:"imported"`
		Errors   []ImportError `json:"errors"`
	}
)
