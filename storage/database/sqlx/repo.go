package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core"
)

type baseRepo struct {
	db core.DB
}

func (repo baseRepo) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.db
}

// trapNoRowsErr maps sql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// insert runs an INSERT ... RETURNING id statement and returns the new id.
func insert(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) (int64, error) {
	var id int64
	if err := exec.QueryRowxContext(ctx, exec.Rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// execAffected runs query and returns the number of affected rows.
func execAffected(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) (int, error) {
	res, err := exec.ExecContext(ctx, exec.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// expandIn expands `IN (?)` bindvars for slice arguments and rebinds the query.
func expandIn(exec core.DBExecutor, query string, args ...interface{}) (string, []interface{}, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return exec.Rebind(q), a, nil
}

// orderBy builds an ORDER BY clause restricted to the allowed columns.
func orderBy(ordering []core.DBOrdering, allowed map[string]string, fallback string) string {
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		parts = append(parts, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(parts) == 0 {
		return " ORDER BY " + fallback
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func likeArg(s string) string {
	return "%" + strings.ToLower(s) + "%"
}

func nullUnix(sec sql.NullInt64) int64 {
	if !sec.Valid {
		return 0
	}
	return sec.Int64
}
