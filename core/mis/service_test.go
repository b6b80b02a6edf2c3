package mis_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/mis"
	sqlxrepos "github.com/cwarwicker/elbp/storage/database/sqlx"
	testutil "github.com/cwarwicker/elbp/tests"
)

func newService(t *testing.T) (*mis.Service, *validator.Validate) {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	db := testutil.PrepareDB(t)
	return mis.NewService(sqlxrepos.NewMISRepository(db), mis.DefaultConnectors(), &testutil.Logger{}), validate
}

// externalDB creates a sqlite file standing in for the MIS database.
func externalDB(t *testing.T) string {
	dsn := "file:" + filepath.Join(t.TempDir(), "mis.db")
	db, err := sqlx.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db.Close()
	db.MustExec("CREATE TABLE students (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT)")
	db.MustExec("CREATE TABLE attendance (student_id INTEGER NOT NULL, pct REAL)")
	return dsn
}

func TestService_Environment(t *testing.T) {
	ctx := context.Background()
	svc, validate := newService(t)

	conn, err := svc.Create(ctx, validate, mis.NewConnection{Name: "College MIS", Driver: "SQLite", DSN: externalDB(t), Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", conn.Driver)

	require.NoError(t, svc.Test(ctx, conn.ID))

	tables, err := svc.Environment(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, []mis.Table{
		{Name: "attendance", Columns: []mis.Column{
			{Name: "student_id", Type: "INTEGER"},
			{Name: "pct", Type: "REAL", Nullable: true},
		}},
		{Name: "students", Columns: []mis.Column{
			{Name: "id", Type: "INTEGER"},
			{Name: "name", Type: "TEXT"},
			{Name: "email", Type: "TEXT", Nullable: true},
		}},
	}, tables)

	require.NoError(t, svc.SetEnabled(ctx, conn.ID, false))
	assert.Equal(t, mis.ErrDisabled, svc.Test(ctx, conn.ID))
}

func TestSQLiteConnector_ReadOnly(t *testing.T) {
	ctx := context.Background()
	conn, ok := mis.DefaultConnectors().Get("sqlite")
	require.True(t, ok)

	t.Run("missing file is not created", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "absent.db")
		db, err := conn.Open(path)
		require.NoError(t, err)
		defer db.Close()

		assert.Error(t, db.PingContext(ctx))
		_, err = os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("writes are refused", func(t *testing.T) {
		db, err := conn.Open(externalDB(t))
		require.NoError(t, err)
		defer db.Close()

		_, err = db.ExecContext(ctx, "CREATE TABLE extra (id INTEGER)")
		assert.Error(t, err)
		tables, err := conn.Tables(ctx, db)
		require.NoError(t, err)
		assert.Len(t, tables, 2)
	})
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	svc, validate := newService(t)

	_, err := svc.Create(ctx, validate, mis.NewConnection{Name: "mis", Driver: "sqlite", DSN: "file:x.db"})
	require.NoError(t, err)

	tests := []struct {
		name string
		nc   mis.NewConnection
	}{
		{name: "duplicate name", nc: mis.NewConnection{Name: "mis", Driver: "sqlite", DSN: "file:y.db"}},
		{name: "unknown driver", nc: mis.NewConnection{Name: "other", Driver: "oracle", DSN: "x"}},
		{name: "missing dsn", nc: mis.NewConnection{Name: "other", Driver: "postgres"}},
		{name: "bad name", nc: mis.NewConnection{Name: "no-dashes!", Driver: "postgres", DSN: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, validate, tt.nc)
			assert.Error(t, err)
		})
	}

	conns, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, conns, 1)

	require.NoError(t, svc.Delete(ctx, conns[0].ID))
	assert.True(t, core.IsNotFound(svc.Delete(ctx, conns[0].ID)))
}

func TestConnection_MarshalJSON(t *testing.T) {
	conn := mis.Connection{ID: 1, Name: "mis", Driver: "postgres", DSN: "postgres://reader:s3cret@db:5432/mis"}
	b, err := json.Marshal(conn)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(b), "s3cret"))
	assert.Contains(t, string(b), `"dsn":"postgres://reader:xxxxx@db:5432/mis"`)
}
