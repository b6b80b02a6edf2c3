package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/plugin"
)

const registrationColumns = "id, name, title, enabled, ordernum, version, group_id, installed_at"

type registrationRow struct {
	ID          int64         `db:"id"`
	Name        string        `db:"name"`
	Title       string        `db:"title"`
	Enabled     bool          `db:"enabled"`
	Ordernum    int           `db:"ordernum"`
	Version     int           `db:"version"`
	GroupID     sql.NullInt64 `db:"group_id"`
	InstalledAt int64         `db:"installed_at"`
}

func (row registrationRow) registration() plugin.Registration {
	return plugin.Registration{
		ID:          row.ID,
		Name:        row.Name,
		Title:       row.Title,
		Enabled:     row.Enabled,
		Ordernum:    row.Ordernum,
		Version:     row.Version,
		GroupID:     row.GroupID.Int64,
		InstalledAt: core.FromUnix(row.InstalledAt),
	}
}

type pluginRepository struct {
	baseRepo
}

var _ plugin.Repository = (*pluginRepository)(nil) // interface compliance check

func NewPluginRepository(db core.DB) *pluginRepository {
	return &pluginRepository{baseRepo{db: db}}
}

func (repo pluginRepository) NameTaken(ctx context.Context, name string, exec ...core.DBExecutor) (bool, error) {
	db := repo.getExec(exec)
	var count int
	q := db.Rebind(`SELECT (SELECT COUNT(*) FROM plugins WHERE name = ?) + (SELECT COUNT(*) FROM custom_plugins WHERE name = ?)`)
	if err := db.GetContext(ctx, &count, q, name, name); err != nil {
		return false, errors.Wrap(err, "checking plugin name")
	}
	return count > 0, nil
}

func (repo pluginRepository) CreateRegistration(ctx context.Context, reg plugin.Registration, exec ...core.DBExecutor) (plugin.Registration, error) {
	id, err := insert(ctx, repo.getExec(exec),
		`INSERT INTO plugins (name, title, enabled, ordernum, version, group_id, installed_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		reg.Name, reg.Title, reg.Enabled, reg.Ordernum, reg.Version,
		sql.NullInt64{Int64: reg.GroupID, Valid: reg.GroupID != 0}, core.ToUnix(reg.InstalledAt))
	if err != nil {
		return plugin.Registration{}, errors.Wrap(err, "inserting plugin")
	}
	reg.ID = id
	return reg, nil
}

func (repo pluginRepository) GetRegistration(ctx context.Context, name string, exec ...core.DBExecutor) (plugin.Registration, error) {
	db := repo.getExec(exec)
	var row registrationRow
	if err := db.GetContext(ctx, &row, db.Rebind("SELECT "+registrationColumns+" FROM plugins WHERE name = ?"), name); err != nil {
		return plugin.Registration{}, trapNoRowsErr(err, plugin.ErrNotFound, "selecting plugin")
	}
	return row.registration(), nil
}

func (repo pluginRepository) ListRegistrations(ctx context.Context, enabledOnly bool, exec ...core.DBExecutor) ([]plugin.Registration, error) {
	db := repo.getExec(exec)
	q := "SELECT " + registrationColumns + " FROM plugins"
	var args []interface{}
	if enabledOnly {
		q += " WHERE enabled = ?"
		args = append(args, true)
	}
	var rows []registrationRow
	if err := db.SelectContext(ctx, &rows, db.Rebind(q+" ORDER BY ordernum ASC, name ASC"), args...); err != nil {
		return nil, errors.Wrap(err, "selecting plugins")
	}
	regs := make([]plugin.Registration, 0, len(rows))
	for _, row := range rows {
		regs = append(regs, row.registration())
	}
	return regs, nil
}

func (repo pluginRepository) update(ctx context.Context, exec []core.DBExecutor, name, set string, arg interface{}) error {
	n, err := execAffected(ctx, repo.getExec(exec), "UPDATE plugins SET "+set+" = ? WHERE name = ?", arg, name)
	if err != nil {
		return errors.Wrap(err, "updating plugin")
	}
	if n == 0 {
		return plugin.ErrNotFound
	}
	return nil
}

func (repo pluginRepository) SetEnabled(ctx context.Context, name string, enabled bool, exec ...core.DBExecutor) error {
	return repo.update(ctx, exec, name, "enabled", enabled)
}

func (repo pluginRepository) SetOrder(ctx context.Context, name string, ordernum int, exec ...core.DBExecutor) error {
	return repo.update(ctx, exec, name, "ordernum", ordernum)
}

func (repo pluginRepository) SetVersion(ctx context.Context, name string, version int, exec ...core.DBExecutor) error {
	return repo.update(ctx, exec, name, "version", version)
}

func (repo pluginRepository) DeleteRegistration(ctx context.Context, name string, exec ...core.DBExecutor) error {
	_, err := execAffected(ctx, repo.getExec(exec), "DELETE FROM plugins WHERE name = ?", name)
	return errors.Wrap(err, "deleting plugin")
}

func (repo pluginRepository) RecordMigration(ctx context.Context, name string, version int, appliedAt time.Time, exec ...core.DBExecutor) error {
	_, err := execAffected(ctx, repo.getExec(exec),
		"INSERT INTO plugin_migrations (plugin, version, applied_at) VALUES (?, ?, ?)", name, version, core.ToUnix(appliedAt))
	return errors.Wrap(err, "recording plugin migration")
}

func (repo pluginRepository) DeleteMigration(ctx context.Context, name string, version int, exec ...core.DBExecutor) error {
	_, err := execAffected(ctx, repo.getExec(exec),
		"DELETE FROM plugin_migrations WHERE plugin = ? AND version = ?", name, version)
	return errors.Wrap(err, "deleting plugin migration")
}

func (repo pluginRepository) DeleteMigrations(ctx context.Context, name string, exec ...core.DBExecutor) error {
	_, err := execAffected(ctx, repo.getExec(exec), "DELETE FROM plugin_migrations WHERE plugin = ?", name)
	return errors.Wrap(err, "deleting plugin migrations")
}

func (repo pluginRepository) AppliedMigrations(ctx context.Context, name string, exec ...core.DBExecutor) ([]int, error) {
	db := repo.getExec(exec)
	var versions []int
	q := db.Rebind("SELECT version FROM plugin_migrations WHERE plugin = ? ORDER BY version")
	if err := db.SelectContext(ctx, &versions, q, name); err != nil {
		return nil, errors.Wrap(err, "selecting plugin migrations")
	}
	return versions, nil
}
