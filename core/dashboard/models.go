package dashboard

import (
	"github.com/goccy/go-json"

	"github.com/cwarwicker/elbp/core/user"
)

type (
	// Block is one plugin's summary on the dashboard.
	Block struct {
		Plugin  string                 `json:"plugin"`
		Title   string                 `json:"title"`
		Summary map[string]interface{} `json:"summary"`
		Error   string                 `json:"error,omitempty"`
	}

	Group struct {
		Name   string  `json:"name"`
		Blocks []Block `json:"blocks"`
	}

	View struct {
		Title        string    `json:"title"`
		Student      user.User `json:"student"`
		CourseID     int64     `json:"course_id"`
		Capabilities []string  `json:"capabilities"`
		Layout       string    `json:"layout"`
		Groups       []Group   `json:"groups"`
	}

	// Request is an asynchronous plugin call made from the dashboard.
	Request struct {
		Plugin    string          `json:"plugin" validate:"required"`
		Action    string          `json:"action" validate:"required"`
		StudentID int64           `json:"student" validate:"required,gt=0"`
		CourseID  int64           `json:"course" validate:"gte=0"`
		Params    json.RawMessage `json:"params"`
	}
)
