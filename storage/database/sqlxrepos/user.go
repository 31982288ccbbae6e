package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/odinschool/odin/core"
	"github.com/odinschool/odin/core/user"
	"github.com/odinschool/odin/storage/database"
)

const userColumns = "id, email, first_name, surname, school_id, role, password_hash, is_active, created_at, updated_at, last_login"

var userOrderFields = map[string]bool{
	"email": true, "first_name": true, "surname": true, "school_id": true, "role": true,
	"created_at": true, "last_login": true,
}

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) user.Repository {
	return &userRepository{exec: exec}
}

// trapNoRowsErr maps "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUserUniqueness(ctx context.Context, email, schoolID string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	exe := core.GetExec(repo.exec, exec)

	excluded := make([]string, 0, len(excludedUsers)+1)
	excluded = append(excluded, "") // keeps NOT IN () valid
	for _, u := range excludedUsers {
		excluded = append(excluded, u.ID)
	}

	check := func(column, value string, errExists error) error {
		if value == "" {
			return nil
		}
		q, args, err := sqlx.In("SELECT COUNT(*) FROM users WHERE "+column+" = ? AND id NOT IN (?)", value, excluded)
		if err != nil {
			return errors.Wrap(err, "building uniqueness query")
		}
		var cnt int
		if err = sqlx.GetContext(ctx, exe, &cnt, exe.Rebind(q), args...); err != nil {
			return errors.Wrap(err, "checking user uniqueness")
		}
		if cnt > 0 {
			return errExists
		}
		return nil
	}

	if err := check("email", email, user.ErrEmailExists); err != nil {
		return err
	}
	return check("school_id", schoolID, user.ErrSchoolIDExists)
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := core.GetExec(repo.exec, exec)
	usr.ID = uuid.New().String()

	q := exe.Rebind(`INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := exe.ExecContext(ctx, q,
		usr.ID, usr.Email, usr.FirstName, usr.Surname, usr.SchoolID, usr.Role,
		string(usr.PasswordHash), usr.IsActive, usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(), usr.LastLogin)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	exe := core.GetExec(repo.exec, exec)

	var (
		conds []string
		args  []interface{}
	)
	if filter != nil {
		// users with FirstName, Surname, Email or SchoolID matching the search keyword
		if filter.Search != "" {
			val := "%" + strings.ToLower(filter.Search) + "%"
			conds = append(conds, "(LOWER(first_name) LIKE ? OR LOWER(surname) LIKE ? OR LOWER(email) LIKE ? OR LOWER(school_id) LIKE ?)")
			args = append(args, val, val, val, val)
		}
		if len(filter.Roles) > 0 {
			conds = append(conds, "role IN (?)")
			args = append(args, filter.Roles)
		}
		if filter.IsActive != nil {
			conds = append(conds, "is_active = ?")
			args = append(args, *filter.IsActive)
		}
	}

	q := "SELECT " + userColumns + " FROM users"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += orderBy(ordering, userOrderFields)

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building users query")
	}

	users := make([]user.User, 0)
	if err = sqlx.SelectContext(ctx, exe, &users, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	exe := core.GetExec(repo.exec, exec)

	var (
		column, value string
		usr           user.User
	)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		column, value = "id", filter.ID
	case filter.Email != "":
		column, value = "email", filter.Email
	default:
		return user.User{}, user.ErrNotFound
	}

	q := exe.Rebind("SELECT " + userColumns + " FROM users WHERE " + column + " = ?")
	if err := sqlx.GetContext(ctx, exe, &usr, q, value); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user")
	}
	return usr, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := core.GetExec(repo.exec, exec)

	q := exe.Rebind(`
		UPDATE users
		SET first_name = ?, surname = ?, school_id = ?, role = ?, password_hash = ?, is_active = ?, updated_at = ?, last_login = ?
		WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q,
		usr.FirstName, usr.Surname, usr.SchoolID, usr.Role, string(usr.PasswordHash), usr.IsActive,
		usr.UpdatedAt.UTC(), usr.LastLogin, usr.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return user.User{}, user.ErrSchoolIDExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}
