package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/cwarwicker/elbp/core"
	appfs "github.com/cwarwicker/elbp/fs"
)

const (
	postgresDriver = "postgres"
	sqliteDriver   = "sqlite"
)

var pingTimeout = 30 * time.Second // mockable

func postgresDSN(dbName string, admin bool, conf *core.Config) string {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   postgresDriver,
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// SQLiteDSN returns a modernc.org/sqlite DSN with foreign keys enforced.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	if conf.Database.IsSQLite() {
		db, err := sqlx.Open(sqliteDriver, SQLiteDSN(conf.Database.Path))
		if err != nil {
			return nil, err
		}
		// sqlite serialises writers; a single connection also keeps `:memory:` databases alive.
		db.SetMaxOpenConns(1)
		return db, nil
	}
	return sqlx.Open(postgresDriver, postgresDSN(dbName, admin, conf))
}

// Open opens the application database and waits for it to answer.
func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = Ping(context.Background(), db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Ping waits for the database to be ready, backing off exponentially between attempts.
func Ping(ctx context.Context, db *sql.DB) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = pingTimeout

	if err := backoff.Retry(func() error { return db.PingContext(ctx) }, backoff.WithContext(bo, ctx)); err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func createAppUser(db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	var exists bool
	err := db.Get(&exists, "SELECT true FROM pg_roles WHERE rolname = $1", conf.Database.User)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "checking app user")
	}

	if !exists {
		q := fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD '%s'", conf.Database.User, conf.Database.Password)
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sqlx.DB, conf *core.Config) error {
	var exists bool
	err := db.Get(&exists, "SELECT true FROM pg_database WHERE datname = $1", conf.Database.Name)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "checking DB")
	}

	if !exists {
		if _, err = db.Exec(fmt.Sprintf("CREATE DATABASE %s", conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the postgres app user and database. sqlite files are created on open.
func CreateIfNotExist(conf *core.Config) error {
	if conf.Database.IsSQLite() {
		return nil
	}

	// connect as admin
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = Ping(context.Background(), db.DB); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return errors.Wrap(err, "creating app user")
	}

	// create DB as app user
	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()
	return createDB(appDB, conf)
}

// Dialect returns the goose dialect of db.
func Dialect(db *sqlx.DB) string {
	if db.DriverName() == sqliteDriver {
		return "sqlite3"
	}
	return "postgres"
}

// Engine returns the engine name of db, as used by appfs.MigrationsDir.
func Engine(db *sqlx.DB) string {
	if db.DriverName() == sqliteDriver {
		return sqliteDriver
	}
	return postgresDriver
}

// PrepareGoose points goose at the embedded migrations of db's dialect.
func PrepareGoose(db *sqlx.DB) (string, error) {
	goose.SetBaseFS(appfs.FS)
	if err := goose.SetDialect(Dialect(db)); err != nil {
		return "", errors.Wrap(err, "setting migration dialect")
	}
	return appfs.MigrationsDir(Engine(db)), nil
}

// Migrate applies every pending schema migration.
func Migrate(db *sqlx.DB) error {
	dir, err := PrepareGoose(db)
	if err != nil {
		return err
	}
	if err = goose.Up(db.DB, dir); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
