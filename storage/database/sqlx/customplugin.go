package sqlxrepos

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/customplugin"
)

type customPluginRow struct {
	ID         int64  `db:"id"`
	Name       string `db:"name"`
	Title      string `db:"title"`
	Enabled    bool   `db:"enabled"`
	Attributes string `db:"attributes"`
	CreatedBy  int64  `db:"created_by"`
	CreatedAt  int64  `db:"created_at"`
}

func (row customPluginRow) toModel() (customplugin.CustomPlugin, error) {
	cp := customplugin.CustomPlugin{
		ID:        row.ID,
		Name:      row.Name,
		Title:     row.Title,
		Enabled:   row.Enabled,
		CreatedBy: row.CreatedBy,
		CreatedAt: core.FromUnix(row.CreatedAt),
	}
	if err := json.Unmarshal([]byte(row.Attributes), &cp.Attributes); err != nil {
		return cp, errors.Wrapf(err, "decoding attributes of %s", row.Name)
	}
	return cp, nil
}

type customItemRow struct {
	ID        int64  `db:"id"`
	PluginID  int64  `db:"plugin_id"`
	StudentID int64  `db:"student_id"`
	CourseID  int64  `db:"course_id"`
	Data      string `db:"data"`
	AuthorID  int64  `db:"author_id"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (row customItemRow) toModel() (customplugin.Item, error) {
	item := customplugin.Item{
		ID:        row.ID,
		PluginID:  row.PluginID,
		StudentID: row.StudentID,
		CourseID:  row.CourseID,
		AuthorID:  row.AuthorID,
		CreatedAt: core.FromUnix(row.CreatedAt),
		UpdatedAt: core.FromUnix(row.UpdatedAt),
	}
	if err := json.Unmarshal([]byte(row.Data), &item.Values); err != nil {
		return item, errors.Wrapf(err, "decoding item %d", row.ID)
	}
	return item, nil
}

const (
	customPluginCols = "id, name, title, enabled, attributes, created_by, created_at"
	customItemCols   = "id, plugin_id, student_id, course_id, data, author_id, created_at, updated_at"
)

type customPluginRepository struct {
	baseRepo
}

var _ customplugin.Repository = (*customPluginRepository)(nil) // interface compliance check

func NewCustomPluginRepository(db core.DB) *customPluginRepository {
	return &customPluginRepository{baseRepo{db: db}}
}

func (repo customPluginRepository) CreatePlugin(ctx context.Context, cp customplugin.CustomPlugin, exec ...core.DBExecutor) (customplugin.CustomPlugin, error) {
	attrs, err := json.Marshal(cp.Attributes)
	if err != nil {
		return cp, errors.Wrap(err, "encoding attributes")
	}
	cp.ID, err = insert(ctx, repo.getExec(exec),
		"INSERT INTO custom_plugins (name, title, enabled, attributes, created_by, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		cp.Name, cp.Title, cp.Enabled, string(attrs), cp.CreatedBy, core.ToUnix(cp.CreatedAt))
	return cp, errors.Wrap(err, "inserting custom plugin")
}

func (repo customPluginRepository) GetPlugin(ctx context.Context, name string, exec ...core.DBExecutor) (customplugin.CustomPlugin, error) {
	db := repo.getExec(exec)
	var row customPluginRow
	q := db.Rebind("SELECT " + customPluginCols + " FROM custom_plugins WHERE name = ?")
	if err := db.GetContext(ctx, &row, q, name); err != nil {
		return customplugin.CustomPlugin{}, trapNoRowsErr(err, customplugin.ErrNotFound, "selecting custom plugin")
	}
	return row.toModel()
}

func (repo customPluginRepository) ListPlugins(ctx context.Context, enabledOnly bool, exec ...core.DBExecutor) ([]customplugin.CustomPlugin, error) {
	db := repo.getExec(exec)
	q := "SELECT " + customPluginCols + " FROM custom_plugins"
	var args []interface{}
	if enabledOnly {
		q += " WHERE enabled = ?"
		args = append(args, true)
	}
	var rows []customPluginRow
	if err := db.SelectContext(ctx, &rows, db.Rebind(q+" ORDER BY name"), args...); err != nil {
		return nil, errors.Wrap(err, "selecting custom plugins")
	}
	cps := make([]customplugin.CustomPlugin, 0, len(rows))
	for _, row := range rows {
		cp, err := row.toModel()
		if err != nil {
			return nil, err
		}
		cps = append(cps, cp)
	}
	return cps, nil
}

func (repo customPluginRepository) UpdatePlugin(ctx context.Context, cp customplugin.CustomPlugin, exec ...core.DBExecutor) error {
	attrs, err := json.Marshal(cp.Attributes)
	if err != nil {
		return errors.Wrap(err, "encoding attributes")
	}
	n, err := execAffected(ctx, repo.getExec(exec),
		"UPDATE custom_plugins SET title = ?, enabled = ?, attributes = ? WHERE id = ?",
		cp.Title, cp.Enabled, string(attrs), cp.ID)
	if err != nil {
		return errors.Wrap(err, "updating custom plugin")
	}
	if n == 0 {
		return customplugin.ErrNotFound
	}
	return nil
}

func (repo customPluginRepository) DeletePlugin(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	db := repo.getExec(exec)
	if _, err := execAffected(ctx, db, "DELETE FROM custom_plugin_items WHERE plugin_id = ?", id); err != nil {
		return errors.Wrap(err, "deleting custom plugin items")
	}
	n, err := execAffected(ctx, db, "DELETE FROM custom_plugins WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting custom plugin")
	}
	if n == 0 {
		return customplugin.ErrNotFound
	}
	return nil
}

func (repo customPluginRepository) CreateItem(ctx context.Context, item customplugin.Item, exec ...core.DBExecutor) (customplugin.Item, error) {
	data, err := json.Marshal(item.Values)
	if err != nil {
		return item, errors.Wrap(err, "encoding item values")
	}
	item.ID, err = insert(ctx, repo.getExec(exec),
		`INSERT INTO custom_plugin_items (plugin_id, student_id, course_id, data, author_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.PluginID, item.StudentID, item.CourseID, string(data), item.AuthorID,
		core.ToUnix(item.CreatedAt), core.ToUnix(item.UpdatedAt))
	return item, errors.Wrap(err, "inserting custom plugin item")
}

func (repo customPluginRepository) GetItem(ctx context.Context, pluginID, itemID int64, exec ...core.DBExecutor) (customplugin.Item, error) {
	db := repo.getExec(exec)
	var row customItemRow
	q := db.Rebind("SELECT " + customItemCols + " FROM custom_plugin_items WHERE plugin_id = ? AND id = ?")
	if err := db.GetContext(ctx, &row, q, pluginID, itemID); err != nil {
		return customplugin.Item{}, trapNoRowsErr(err, customplugin.ErrItemNotFound, "selecting custom plugin item")
	}
	return row.toModel()
}

func (repo customPluginRepository) UpdateItem(ctx context.Context, item customplugin.Item, exec ...core.DBExecutor) error {
	data, err := json.Marshal(item.Values)
	if err != nil {
		return errors.Wrap(err, "encoding item values")
	}
	n, err := execAffected(ctx, repo.getExec(exec),
		"UPDATE custom_plugin_items SET data = ?, updated_at = ? WHERE plugin_id = ? AND id = ?",
		string(data), core.ToUnix(item.UpdatedAt), item.PluginID, item.ID)
	if err != nil {
		return errors.Wrap(err, "updating custom plugin item")
	}
	if n == 0 {
		return customplugin.ErrItemNotFound
	}
	return nil
}

func (repo customPluginRepository) DeleteItem(ctx context.Context, pluginID, itemID int64, exec ...core.DBExecutor) error {
	n, err := execAffected(ctx, repo.getExec(exec),
		"DELETE FROM custom_plugin_items WHERE plugin_id = ? AND id = ?", pluginID, itemID)
	if err != nil {
		return errors.Wrap(err, "deleting custom plugin item")
	}
	if n == 0 {
		return customplugin.ErrItemNotFound
	}
	return nil
}

func (repo customPluginRepository) ListItems(ctx context.Context, pluginID, studentID int64, page core.Page, exec ...core.DBExecutor) ([]customplugin.Item, int, error) {
	db := repo.getExec(exec)
	var total int
	q := db.Rebind("SELECT COUNT(*) FROM custom_plugin_items WHERE plugin_id = ? AND student_id = ?")
	if err := db.GetContext(ctx, &total, q, pluginID, studentID); err != nil {
		return nil, 0, errors.Wrap(err, "counting custom plugin items")
	}

	var rows []customItemRow
	q = db.Rebind("SELECT " + customItemCols + ` FROM custom_plugin_items WHERE plugin_id = ? AND student_id = ?
		ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`)
	if err := db.SelectContext(ctx, &rows, q, pluginID, studentID, page.Limit(), page.Offset()); err != nil {
		return nil, 0, errors.Wrap(err, "selecting custom plugin items")
	}
	items := make([]customplugin.Item, 0, len(rows))
	for _, row := range rows {
		item, err := row.toModel()
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, nil
}
