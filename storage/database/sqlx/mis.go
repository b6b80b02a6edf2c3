package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/mis"
)

type misConnectionRow struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	Driver    string `db:"driver"`
	DSN       string `db:"dsn"`
	Enabled   bool   `db:"enabled"`
	CreatedAt int64  `db:"created_at"`
}

func (row misConnectionRow) connection() mis.Connection {
	return mis.Connection{
		ID:        row.ID,
		Name:      row.Name,
		Driver:    row.Driver,
		DSN:       row.DSN,
		Enabled:   row.Enabled,
		CreatedAt: core.FromUnix(row.CreatedAt),
	}
}

type misRepository struct {
	baseRepo
}

var _ mis.Repository = (*misRepository)(nil) // interface compliance check

func NewMISRepository(db core.DB) *misRepository {
	return &misRepository{baseRepo{db: db}}
}

func (repo misRepository) NameTaken(ctx context.Context, name string, exec ...core.DBExecutor) (bool, error) {
	db := repo.getExec(exec)
	var count int
	if err := db.GetContext(ctx, &count, db.Rebind("SELECT COUNT(*) FROM mis_connections WHERE name = ?"), name); err != nil {
		return false, errors.Wrap(err, "checking mis connection name")
	}
	return count > 0, nil
}

func (repo misRepository) CreateConnection(ctx context.Context, conn mis.Connection, exec ...core.DBExecutor) (mis.Connection, error) {
	id, err := insert(ctx, repo.getExec(exec),
		"INSERT INTO mis_connections (name, driver, dsn, enabled, created_at) VALUES (?, ?, ?, ?, ?)",
		conn.Name, conn.Driver, conn.DSN, conn.Enabled, core.ToUnix(conn.CreatedAt))
	if err != nil {
		return conn, errors.Wrap(err, "inserting mis connection")
	}
	conn.ID = id
	return conn, nil
}

func (repo misRepository) GetConnection(ctx context.Context, id int64, exec ...core.DBExecutor) (mis.Connection, error) {
	db := repo.getExec(exec)
	var row misConnectionRow
	q := db.Rebind("SELECT id, name, driver, dsn, enabled, created_at FROM mis_connections WHERE id = ?")
	if err := db.GetContext(ctx, &row, q, id); err != nil {
		return mis.Connection{}, trapNoRowsErr(err, mis.ErrNotFound, "selecting mis connection")
	}
	return row.connection(), nil
}

func (repo misRepository) ListConnections(ctx context.Context, exec ...core.DBExecutor) ([]mis.Connection, error) {
	db := repo.getExec(exec)
	var rows []misConnectionRow
	if err := db.SelectContext(ctx, &rows, "SELECT id, name, driver, dsn, enabled, created_at FROM mis_connections ORDER BY name"); err != nil {
		return nil, errors.Wrap(err, "selecting mis connections")
	}
	conns := make([]mis.Connection, 0, len(rows))
	for _, row := range rows {
		conns = append(conns, row.connection())
	}
	return conns, nil
}

func (repo misRepository) SetEnabled(ctx context.Context, id int64, enabled bool, exec ...core.DBExecutor) error {
	n, err := execAffected(ctx, repo.getExec(exec), "UPDATE mis_connections SET enabled = ? WHERE id = ?", enabled, id)
	if err != nil {
		return errors.Wrap(err, "updating mis connection")
	}
	if n == 0 {
		return mis.ErrNotFound
	}
	return nil
}

func (repo misRepository) DeleteConnection(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	n, err := execAffected(ctx, repo.getExec(exec), "DELETE FROM mis_connections WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting mis connection")
	}
	if n == 0 {
		return mis.ErrNotFound
	}
	return nil
}
