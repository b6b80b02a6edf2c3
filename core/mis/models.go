package mis

import (
	"net/url"
	"time"

	"github.com/goccy/go-json"
)

type (
	// Connection is an external (MIS) database the dashboard reads from.
	Connection struct {
		ID        int64     `json:"id"`
		Name      string    `json:"name"`
		Driver    string    `json:"driver"`
		DSN       string    `json:"-"`
		Enabled   bool      `json:"enabled"`
		CreatedAt time.Time `json:"created_at"` // UTC
	}

	NewConnection struct {
		Name    string `json:"name" validate:"required,alphanum_,max=100"`
		Driver  string `json:"driver" validate:"required"`
		DSN     string `json:"dsn" validate:"required"`
		Enabled bool   `json:"enabled"`
	}

	Column struct {
		Name     string `json:"name" db:"name"`
		Type     string `json:"type" db:"type"`
		Nullable bool   `json:"nullable" db:"nullable"`
	}

	Table struct {
		Name    string   `json:"name"`
		Columns []Column `json:"columns"`
	}
)

// RedactedDSN hides the password of URL shaped DSNs.
func (c Connection) RedactedDSN() string {
	u, err := url.Parse(c.DSN)
	if err != nil || u.Scheme == "" {
		return c.DSN
	}
	return u.Redacted()
}

func (c Connection) MarshalJSON() ([]byte, error) {
	type conn Connection
	return json.Marshal(struct {
		conn
		DSN string `json:"dsn"`
	}{conn(c), c.RedactedDSN()})
}
