package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/alert"
	"github.com/cwarwicker/elbp/core/permission"
	"github.com/cwarwicker/elbp/core/setting"
	"github.com/cwarwicker/elbp/core/user"
)

type (
	// Plugin is a dashboard component holding one kind of student record.
	Plugin interface {
		Name() string
		Title() string
		// Version is the latest migration version the plugin ships.
		Version() int
		Migrations() []Migration
		// Summary returns the key/value bag shown on the student dashboard.
		Summary(ctx context.Context, view View) (map[string]interface{}, error)
		// Ajax handles an asynchronous action. Unknown actions return a *core.PluginError.
		Ajax(ctx context.Context, view View, action string, params *gabs.Container) (interface{}, error)
		// Cron runs the plugin's periodic work.
		Cron(ctx context.Context) error
		// Uninstall drops everything the plugin's migrations created.
		Uninstall(ctx context.Context, exec core.DBExecutor) error
	}

	// SettingsDeclarer is implemented by plugins owning settings.
	SettingsDeclarer interface {
		Settings() []setting.Definition
	}

	// AlertSource is implemented by plugins able to evaluate alert events.
	AlertSource interface {
		AlertEvaluators() map[string]alert.Evaluator
	}

	// Deps are the services handed to plugin factories.
	Deps struct {
		DB       core.DB
		Logger   core.Logger
		Settings *setting.Service
	}

	Factory func(deps Deps) Plugin

	// View is the context a plugin renders in: who is looking at which student.
	View struct {
		Viewer    user.User
		StudentID int64
		CourseID  int64
		Caps      permission.Set
	}

	// Migration is one step of a plugin's schema ladder.
	Migration struct {
		Version int
		Up      func(ctx context.Context, exec core.DBExecutor) error
		Down    func(ctx context.Context, exec core.DBExecutor) error
	}

	// Registration is a plugin's row in the registry table.
	Registration struct {
		ID          int64     `json:"id"`
		Name        string    `json:"name"`
		Title       string    `json:"title"`
		Enabled     bool      `json:"enabled"`
		Ordernum    int       `json:"ordernum"`
		Version     int       `json:"version"`
		GroupID     int64     `json:"group_id"`
		InstalledAt time.Time `json:"installed_at"` // UTC
	}
)

// Require returns a *core.PluginError unless the view holds every one of caps.
func (v View) Require(plugin string, caps ...permission.Capability) error {
	if !v.Caps.Has(caps...) {
		return core.NewPluginError(plugin, "you do not have permission to do that")
	}
	return nil
}

// UnknownAction is the error returned for an Ajax action a plugin does not handle.
func UnknownAction(plugin, action string) error {
	return core.NewPluginError(plugin, fmt.Sprintf("unknown action %q", action))
}

// Dialect gives plugin migrations the DDL fragments that differ between engines.
type Dialect struct {
	sqlite bool
}

func DialectOf(exec core.DBExecutor) Dialect {
	return Dialect{sqlite: core.IsSQLite(exec)}
}

// PK is an auto-incrementing int64 primary key column type.
func (d Dialect) PK() string {
	if d.sqlite {
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return "BIGSERIAL PRIMARY KEY"
}

func (d Dialect) Float() string {
	if d.sqlite {
		return "REAL"
	}
	return "DOUBLE PRECISION"
}

// DropColumn drops a column; sqlite supports it since 3.35.
func (d Dialect) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, column)
}

// AddColumn adds column to table unless a previous install already left it there.
func (d Dialect) AddColumn(ctx context.Context, exec core.DBExecutor, table, column, def string) error {
	q := "SELECT COUNT(*) FROM information_schema.columns WHERE table_name = ? AND column_name = ?"
	if d.sqlite {
		q = "SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?"
	}
	var count int
	if err := exec.GetContext(ctx, &count, exec.Rebind(q), table, column); err != nil {
		return errors.Wrapf(err, "looking up %s.%s", table, column)
	}
	if count > 0 {
		return nil
	}
	_, err := exec.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, def))
	return err
}
