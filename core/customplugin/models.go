package customplugin

import (
	"time"
)

// Attribute types
const (
	TypeText     = "text"
	TypeTextarea = "textarea"
	TypeSelect   = "select"
	TypeCheckbox = "checkbox"
	TypeDate     = "date"
	TypeNumber   = "number"
	TypeEmail    = "email"
	TypeURL      = "url"
	TypeFile     = "file"
)

// Display zones
const (
	ZoneMain    = "main"
	ZoneSide    = "side"
	ZoneSummary = "summary"
)

var attrTypes = map[string]bool{
	TypeText: true, TypeTextarea: true, TypeSelect: true, TypeCheckbox: true, TypeDate: true,
	TypeNumber: true, TypeEmail: true, TypeURL: true, TypeFile: true,
}

// Rules are the validation rules applied to an attribute's values.
type Rules struct {
	Required  bool `json:"required"`
	MinLength int  `json:"min_length" validate:"gte=0"`
	MaxLength int  `json:"max_length" validate:"gte=0"`
	Numeric   bool `json:"numeric"`
	Email     bool `json:"email"`
	URL       bool `json:"url"`
	Date      bool `json:"date"`
}

// Attribute is one field of a custom plugin's schema.
type Attribute struct {
	Name    string   `json:"name" validate:"omitempty,max=50"`
	Label   string   `json:"label" validate:"required_without=Name,max=255"`
	Type    string   `json:"type" validate:"required,attr_type"`
	Zone    string   `json:"zone" validate:"omitempty,oneof=main side summary"`
	Rules   Rules    `json:"rules"`
	Options []string `json:"options,omitempty" validate:"required_if=Type select"`
	Default string   `json:"default,omitempty"`
}

type CustomPlugin struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Title      string      `json:"title"`
	Enabled    bool        `json:"enabled"`
	Attributes []Attribute `json:"attributes"`
	CreatedBy  int64       `json:"created_by"`
	CreatedAt  time.Time   `json:"created_at"` // UTC
}

// Attribute returns the attribute called name.
func (cp CustomPlugin) Attribute(name string) (Attribute, bool) {
	for _, attr := range cp.Attributes {
		if attr.Name == name {
			return attr, true
		}
	}
	return Attribute{}, false
}

type NewCustomPlugin struct {
	Name       string      `json:"name" validate:"required,plugin_name"`
	Title      string      `json:"title" validate:"max=255"`
	Attributes []Attribute `json:"attributes" validate:"dive"`
}

type UpdateSchema struct {
	Title      string      `json:"title" validate:"max=255"`
	Attributes []Attribute `json:"attributes" validate:"required,dive"`
}

// Item is one record of a custom plugin about a student.
type Item struct {
	ID        int64             `json:"id"`
	PluginID  int64             `json:"plugin_id"`
	StudentID int64             `json:"student_id"`
	CourseID  int64             `json:"course_id"`
	Values    map[string]string `json:"values"`
	AuthorID  int64             `json:"author_id"`
	CreatedAt time.Time         `json:"created_at"` // UTC
	UpdatedAt time.Time         `json:"updated_at"` // UTC
}
