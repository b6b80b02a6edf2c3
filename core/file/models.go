package file

import (
	"time"
)

// File is an uploaded file reachable through its download code.
type File struct {
	ID       int64  `json:"-"`
	Code     string `json:"code"`
	OwnerID  int64  `json:"owner_id"`
	Filename string `json:"filename"`
	// Path is relative to the data root.
	Path      string    `json:"-"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"` // UTC
}
