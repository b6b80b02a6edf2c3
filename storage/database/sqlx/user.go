package sqlxrepos

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/cwarwicker/elbp/core"
	"github.com/cwarwicker/elbp/core/user"
)

const userColumns = "id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login"

var userOrderings = map[string]string{
	"id":         "id",
	"name":       "name",
	"username":   "username",
	"email":      "email",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"last_login": "last_login",
}

type userRow struct {
	ID           int64       `db:"id"`
	Name         string      `db:"name"`
	Username     null.String `db:"username"`
	Email        null.String `db:"email"`
	IsActive     bool        `db:"is_active"`
	Roles        string      `db:"roles"`
	PasswordHash []byte      `db:"password_hash"`
	CreatedAt    int64       `db:"created_at"`
	UpdatedAt    int64       `db:"updated_at"`
	LastLogin    null.Int64  `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsActive:     usr.IsActive,
		Roles:        strings.Join(usr.Roles, ","),
		PasswordHash: usr.PasswordHash,
		CreatedAt:    core.ToUnix(usr.CreatedAt),
		UpdatedAt:    core.ToUnix(usr.UpdatedAt),
		LastLogin:    null.NewInt64(core.ToUnix(usr.LastLogin), !usr.LastLogin.IsZero()),
	}
}

func (row userRow) user() user.User {
	var roles []string
	if row.Roles != "" {
		roles = strings.Split(row.Roles, ",")
	}
	return user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email.String,
		IsActive:     row.IsActive,
		Roles:        roles,
		PasswordHash: row.PasswordHash,
		CreatedAt:    core.FromUnix(row.CreatedAt),
		UpdatedAt:    core.FromUnix(row.UpdatedAt),
		LastLogin:    core.FromUnix(row.LastLogin.Int64),
	}
}

type userRepository struct {
	baseRepo
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DB) *userRepository {
	return &userRepository{baseRepo{db: db}}
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	db := repo.getExec(exec)
	excluded := []int64{0}
	for _, u := range excludedUsers {
		excluded = append(excluded, u.ID)
	}

	check := func(column, value string, taken error) error {
		if value == "" {
			return nil
		}
		q, args, err := expandIn(db, "SELECT COUNT(*) FROM users WHERE "+column+" = ? AND id NOT IN (?)", value, excluded)
		if err != nil {
			return errors.Wrap(err, "checking user uniqueness")
		}
		var count int
		if err = db.GetContext(ctx, &count, q, args...); err != nil {
			return errors.Wrap(err, "checking user uniqueness")
		}
		if count > 0 {
			return taken
		}
		return nil
	}

	if err := check("username", username, user.ErrUsernameExists); err != nil {
		return err
	}
	return check("email", email, user.ErrEmailExists)
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	row := toUserRow(usr)
	id, err := insert(ctx, repo.getExec(exec),
		`INSERT INTO users (name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Name, row.Username, row.Email, row.IsActive, row.Roles, row.PasswordHash, row.CreatedAt, row.UpdatedAt, row.LastLogin,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	usr.ID = id
	return usr, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	db := repo.getExec(exec)
	var (
		where []string
		args  []interface{}
	)

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := likeArg(filter.Search)
			where = append(where, "(LOWER(name) LIKE ? OR LOWER(username) LIKE ? OR LOWER(email) LIKE ?)")
			args = append(args, val, val, val)
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			roleConds := make([]string, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				roleConds = append(roleConds, "(',' || roles) LIKE ?")
				args = append(args, "%,"+role+"%")
			}
			where = append(where, "("+strings.Join(roleConds, " OR ")+")")
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = ?")
			args = append(args, *filter.IsActive)
		}
	}

	q := "SELECT " + userColumns + " FROM users"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += orderBy(ordering, userOrderings, "id ASC")

	var rows []userRow
	if err := db.SelectContext(ctx, &rows, db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	db := repo.getExec(exec)
	q := "SELECT " + userColumns + " FROM users WHERE "
	var args []interface{}
	switch {
	case filter.ID != 0:
		q += "id = ?"
		args = append(args, filter.ID)
	case filter.Username != "":
		q += "username = ?"
		args = append(args, filter.Username)
	case filter.Email != "":
		q += "email = ?"
		args = append(args, filter.Email)
	case filter.UsernameOrEmail != "":
		q += "(username = ? OR email = ?)"
		args = append(args, filter.UsernameOrEmail, filter.UsernameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := db.GetContext(ctx, &row, db.Rebind(q+" LIMIT 1"), args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "selecting user")
	}
	return row.user(), nil
}

func (repo userRepository) GetUsersByUsername(ctx context.Context, usernames []string, exec ...core.DBExecutor) (map[string]user.User, error) {
	users := make(map[string]user.User, len(usernames))
	if len(usernames) == 0 {
		return users, nil
	}
	db := repo.getExec(exec)
	q, args, err := expandIn(db, "SELECT "+userColumns+" FROM users WHERE username IN (?)", usernames)
	if err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	var rows []userRow
	if err = db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	for _, row := range rows {
		users[row.Username.String] = row.user()
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	row := toUserRow(usr)
	n, err := execAffected(ctx, repo.getExec(exec),
		`UPDATE users SET name = ?, username = ?, email = ?, is_active = ?, roles = ?, password_hash = ?,
		updated_at = ?, last_login = ? WHERE id = ?`,
		row.Name, row.Username, row.Email, row.IsActive, row.Roles, row.PasswordHash, row.UpdatedAt, row.LastLogin, row.ID,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []int64, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	db := repo.getExec(exec)
	q, args, err := expandIn(db, "DELETE FROM users WHERE id IN (?)", ids)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	n, err := execAffected(ctx, db, q, args...)
	return n, errors.Wrap(err, "deleting users")
}
