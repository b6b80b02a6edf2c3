package sqlxrepos

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/layout"
)

type layoutRow struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	Enabled   bool   `db:"enabled"`
	IsDefault bool   `db:"is_default"`
}

type layoutGroupRow struct {
	ID       int64  `db:"id"`
	LayoutID int64  `db:"layout_id"`
	Name     string `db:"name"`
	Ordernum int    `db:"ordernum"`
	Plugins  string `db:"plugins"`
}

func (row layoutGroupRow) group() layout.Group {
	grp := layout.Group{ID: row.ID, LayoutID: row.LayoutID, Name: row.Name, Ordernum: row.Ordernum, Plugins: []string{}}
	if row.Plugins != "" {
		grp.Plugins = strings.Split(row.Plugins, ",")
	}
	return grp
}

type layoutRepository struct {
	baseRepo
}

var _ layout.Repository = (*layoutRepository)(nil) // interface compliance check

func NewLayoutRepository(db core.DB) *layoutRepository {
	return &layoutRepository{baseRepo{db: db}}
}

func (repo layoutRepository) withGroups(ctx context.Context, db core.DBExecutor, rows []layoutRow) ([]layout.Layout, error) {
	layouts := make([]layout.Layout, 0, len(rows))
	if len(rows) == 0 {
		return layouts, nil
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	q, args, err := expandIn(db, "SELECT id, layout_id, name, ordernum, plugins FROM layout_groups WHERE layout_id IN (?) ORDER BY ordernum, id", ids)
	if err != nil {
		return nil, errors.Wrap(err, "building layout groups query")
	}
	var grpRows []layoutGroupRow
	if err = db.SelectContext(ctx, &grpRows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting layout groups")
	}
	groups := make(map[int64][]layout.Group)
	for _, gr := range grpRows {
		groups[gr.LayoutID] = append(groups[gr.LayoutID], gr.group())
	}
	for _, row := range rows {
		l := layout.Layout{ID: row.ID, Name: row.Name, Enabled: row.Enabled, IsDefault: row.IsDefault, Groups: groups[row.ID]}
		if l.Groups == nil {
			l.Groups = []layout.Group{}
		}
		layouts = append(layouts, l)
	}
	return layouts, nil
}

func (repo layoutRepository) one(ctx context.Context, db core.DBExecutor, where string, args ...interface{}) (layout.Layout, error) {
	var row layoutRow
	if err := db.GetContext(ctx, &row, db.Rebind("SELECT id, name, enabled, is_default FROM layouts WHERE "+where), args...); err != nil {
		return layout.Layout{}, trapNoRowsErr(err, layout.ErrNotFound, "selecting layout")
	}
	layouts, err := repo.withGroups(ctx, db, []layoutRow{row})
	if err != nil {
		return layout.Layout{}, err
	}
	return layouts[0], nil
}

func (repo layoutRepository) ListLayouts(ctx context.Context, exec ...core.DBExecutor) ([]layout.Layout, error) {
	db := repo.getExec(exec)
	var rows []layoutRow
	if err := db.SelectContext(ctx, &rows, "SELECT id, name, enabled, is_default FROM layouts ORDER BY id"); err != nil {
		return nil, errors.Wrap(err, "selecting layouts")
	}
	return repo.withGroups(ctx, db, rows)
}

func (repo layoutRepository) GetLayout(ctx context.Context, id int64, exec ...core.DBExecutor) (layout.Layout, error) {
	return repo.one(ctx, repo.getExec(exec), "id = ?", id)
}

func (repo layoutRepository) GetDefaultLayout(ctx context.Context, exec ...core.DBExecutor) (layout.Layout, error) {
	return repo.one(ctx, repo.getExec(exec), "is_default = ? ORDER BY id LIMIT 1", true)
}

func (repo layoutRepository) insertGroups(ctx context.Context, db core.DBExecutor, l *layout.Layout) error {
	for i := range l.Groups {
		grp := &l.Groups[i]
		grp.LayoutID = l.ID
		id, err := insert(ctx, db,
			"INSERT INTO layout_groups (layout_id, name, ordernum, plugins) VALUES (?, ?, ?, ?)",
			l.ID, grp.Name, grp.Ordernum, strings.Join(grp.Plugins, ","))
		if err != nil {
			return errors.Wrap(err, "inserting layout group")
		}
		grp.ID = id
	}
	return nil
}

func (repo layoutRepository) CreateLayout(ctx context.Context, l layout.Layout, exec ...core.DBExecutor) (layout.Layout, error) {
	db := repo.getExec(exec)
	id, err := insert(ctx, db, "INSERT INTO layouts (name, enabled, is_default) VALUES (?, ?, ?)", l.Name, l.Enabled, l.IsDefault)
	if err != nil {
		return l, errors.Wrap(err, "inserting layout")
	}
	l.ID = id
	return l, repo.insertGroups(ctx, db, &l)
}

func (repo layoutRepository) UpdateLayout(ctx context.Context, l layout.Layout, exec ...core.DBExecutor) (layout.Layout, error) {
	db := repo.getExec(exec)
	n, err := execAffected(ctx, db, "UPDATE layouts SET name = ?, enabled = ?, is_default = ? WHERE id = ?", l.Name, l.Enabled, l.IsDefault, l.ID)
	if err != nil {
		return l, errors.Wrap(err, "updating layout")
	}
	if n == 0 {
		return l, layout.ErrNotFound
	}
	if _, err = execAffected(ctx, db, "DELETE FROM layout_groups WHERE layout_id = ?", l.ID); err != nil {
		return l, errors.Wrap(err, "deleting layout groups")
	}
	return l, repo.insertGroups(ctx, db, &l)
}

func (repo layoutRepository) DeleteLayout(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	db := repo.getExec(exec)
	if _, err := execAffected(ctx, db, "DELETE FROM layout_groups WHERE layout_id = ?", id); err != nil {
		return errors.Wrap(err, "deleting layout groups")
	}
	n, err := execAffected(ctx, db, "DELETE FROM layouts WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting layout")
	}
	if n == 0 {
		return layout.ErrNotFound
	}
	return nil
}
