package mis

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// Connector opens and introspects one kind of external database.
type Connector interface {
	Open(dsn string) (*sqlx.DB, error)
	// Tables lists the tables with their columns, sorted by name.
	Tables(ctx context.Context, db *sqlx.DB) ([]Table, error)
}

type Connectors struct {
	mu  sync.RWMutex
	all map[string]Connector
}

func NewConnectors() *Connectors {
	return &Connectors{all: make(map[string]Connector)}
}

// DefaultConnectors knows postgres and sqlite.
func DefaultConnectors() *Connectors {
	c := NewConnectors()
	c.Register("postgres", postgresConnector{})
	c.Register("sqlite", sqliteConnector{})
	return c
}

func (c *Connectors) Register(driver string, conn Connector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all[driver] = conn
}

func (c *Connectors) Get(driver string) (Connector, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conn, ok := c.all[driver]
	return conn, ok
}

func (c *Connectors) Drivers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	drivers := make([]string, 0, len(c.all))
	for d := range c.all {
		drivers = append(drivers, d)
	}
	sort.Strings(drivers)
	return drivers
}

type columnRow struct {
	Table string `db:"table_name"`
	Column
}

func groupColumns(rows []columnRow) []Table {
	tables := make([]Table, 0)
	for _, row := range rows {
		if n := len(tables); n == 0 || tables[n-1].Name != row.Table {
			tables = append(tables, Table{Name: row.Table})
		}
		last := &tables[len(tables)-1]
		last.Columns = append(last.Columns, row.Column)
	}
	return tables
}

type postgresConnector struct{}

func (postgresConnector) Open(dsn string) (*sqlx.DB, error) {
	return sqlx.Open("postgres", dsn)
}

func (postgresConnector) Tables(ctx context.Context, db *sqlx.DB) ([]Table, error) {
	var rows []columnRow
	q := `SELECT table_name, column_name AS name, data_type AS type, is_nullable = 'YES' AS nullable
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		ORDER BY table_name, ordinal_position`
	if err := db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting columns")
	}
	return groupColumns(rows), nil
}

type sqliteConnector struct{}

// Open opens the file read-only; a missing file is an error rather than a new empty database.
func (sqliteConnector) Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", readOnlyDSN(dsn))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func (sqliteConnector) Tables(ctx context.Context, db *sqlx.DB) ([]Table, error) {
	var rows []columnRow
	q := `SELECT m.name AS table_name, p.name AS name, p.type AS type, p."notnull" = 0 AND p.pk = 0 AS nullable
		FROM sqlite_master m JOIN pragma_table_info(m.name) p
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, p.cid`
	if err := db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting columns")
	}
	return groupColumns(rows), nil
}

func readOnlyDSN(dsn string) string {
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "mode=ro"
}

func unknownDriver(driver string) error {
	return errors.Errorf("unknown driver %q", driver)
}
