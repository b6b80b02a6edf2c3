package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/setting"
)

var errSettingNotFound = errors.Wrap(core.ErrNotFound, "setting")

type settingRow struct {
	Setting string `db:"setting"`
	Value   string `db:"value"`
	UserID  int64  `db:"user_id"`
	Plugin  string `db:"plugin"`
}

type settingRepository struct {
	baseRepo
}

var _ setting.Repository = (*settingRepository)(nil) // interface compliance check

func NewSettingRepository(db core.DB) *settingRepository {
	return &settingRepository{baseRepo{db: db}}
}

func (repo settingRepository) GetSetting(ctx context.Context, key string, scope setting.Scope, exec ...core.DBExecutor) (string, error) {
	db := repo.getExec(exec)
	var val string
	q := db.Rebind("SELECT value FROM settings WHERE setting = ? AND user_id = ? AND plugin = ?")
	if err := db.GetContext(ctx, &val, q, key, scope.UserID, scope.Plugin); err != nil {
		return "", trapNoRowsErr(err, errSettingNotFound, "selecting setting")
	}
	return val, nil
}

func (repo settingRepository) SetSetting(ctx context.Context, key string, scope setting.Scope, value string, exec ...core.DBExecutor) error {
	_, err := execAffected(ctx, repo.getExec(exec),
		`INSERT INTO settings (setting, value, user_id, plugin) VALUES (?, ?, ?, ?)
		ON CONFLICT (setting, user_id, plugin) DO UPDATE SET value = excluded.value`,
		key, value, scope.UserID, scope.Plugin)
	return errors.Wrap(err, "upserting setting")
}

func (repo settingRepository) DeleteSetting(ctx context.Context, key string, scope setting.Scope, exec ...core.DBExecutor) error {
	_, err := execAffected(ctx, repo.getExec(exec),
		"DELETE FROM settings WHERE setting = ? AND user_id = ? AND plugin = ?", key, scope.UserID, scope.Plugin)
	return errors.Wrap(err, "deleting setting")
}

func (repo settingRepository) ListSettings(ctx context.Context, exec ...core.DBExecutor) ([]setting.Row, error) {
	db := repo.getExec(exec)
	var rows []settingRow
	if err := db.SelectContext(ctx, &rows, "SELECT setting, value, user_id, plugin FROM settings ORDER BY setting, user_id, plugin"); err != nil {
		return nil, errors.Wrap(err, "selecting settings")
	}
	out := make([]setting.Row, 0, len(rows))
	for _, row := range rows {
		out = append(out, setting.Row{Setting: row.Setting, Value: row.Value, Scope: setting.Scope{UserID: row.UserID, Plugin: row.Plugin}})
	}
	return out, nil
}
