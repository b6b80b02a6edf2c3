package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/course"
	"github.com/cwarwicker/elbp/core/user"
	"github.com/cwarwicker/elbp/storage/database"
)

// PrepareDB opens a fresh in-memory sqlite database with every migration applied.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	goose.SetLogger(goose.NopLogger())

	db, err := sqlx.Open("sqlite", database.SQLiteDSN(":memory:"))
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(t *testing.T, repo course.Repository, shortname, fullname string) course.Course {
	t.Helper()
	crs, err := repo.CreateCourse(context.Background(), course.Course{
		Shortname: shortname,
		Fullname:  fullname,
		CreatedAt: core.NowFunc(),
	})
	if err != nil {
		t.Fatalf("createCourse() failed: %v", err)
	}
	return crs
}

func Enrol(t *testing.T, repo course.Repository, courseID, userID int64, role string) {
	t.Helper()
	if err := repo.Enrol(context.Background(), course.Enrolment{CourseID: courseID, UserID: userID, Role: role, CreatedAt: core.NowFunc()}); err != nil {
		t.Fatalf("enrol() failed: %v", err)
	}
}
