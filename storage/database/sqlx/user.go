package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/quota"
	"github.com/trezcool/kalamu/core/user"
)

const userColumns = "id, name, username, email, is_active, plan, password_hash, created_at, updated_at, last_login"

type userRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Username     null.String `db:"username"`
	Email        null.String `db:"email"`
	IsActive     bool        `db:"is_active"`
	Plan         string      `db:"plan"`
	PasswordHash string      `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	plan := usr.Plan
	if plan == "" {
		plan = quota.PlanFree
	}
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsActive:     usr.Active(),
		Plan:         string(plan),
		PasswordHash: string(usr.PasswordHash),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (r userRow) user() user.User {
	usr := user.User{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username.String,
		Email:        r.Email.String,
		Plan:         quota.Plan(r.Plan),
		PasswordHash: []byte(r.PasswordHash),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	usr.SetActive(r.IsActive)
	if r.LastLogin.Valid {
		usr.LastLogin = r.LastLogin.Time.UTC()
	}
	return usr
}

type userRepository struct {
	repository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{repository{exec: exec}}
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	query := "SELECT username, email FROM users WHERE (username = ? OR LOWER(email) = LOWER(?))"
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		query += " AND id NOT IN (?)"
		args = append(args, ids)
	}
	query, args, err := in(exe, query, args...)
	if err != nil {
		return errors.Wrap(err, "building query")
	}

	var taken []struct {
		Username null.String `db:"username"`
		Email    null.String `db:"email"`
	}
	if err = sqlx.SelectContext(ctx, exe, &taken, query, args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, t := range taken {
		if username != "" && t.Username.String == username {
			return user.ErrUsernameExists
		}
	}
	if len(taken) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	row := toUserRow(usr)
	_, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), `
		INSERT INTO users (`+userColumns+`)
		VALUES (:id, :name, :username, :email, :is_active, :plan, :password_hash, :created_at, :updated_at, :last_login)`,
		row)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return row.user(), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE "
	var args []interface{}
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		query += "id = ?"
		args = append(args, filter.ID)
	case filter.Username != "":
		query += "username = ?"
		args = append(args, filter.Username)
	case filter.Email != "":
		query += "LOWER(email) = LOWER(?)"
		args = append(args, filter.Email)
	case filter.UsernameOrEmail != "":
		query += "(username = ? OR LOWER(email) = LOWER(?))"
		args = append(args, filter.UsernameOrEmail, filter.UsernameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}

	exe := repo.getExec(exec)
	var row userRow
	if err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(query), args...); err != nil {
		if err = trapNoRows(err, user.ErrNotFound); err == user.ErrNotFound {
			return user.User{}, err
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.user(), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	row := toUserRow(usr)
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), `
		UPDATE users SET name = :name, username = :username, email = :email, is_active = :is_active,
			plan = :plan, password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`,
		row)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return row.user(), nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	exe := repo.getExec(exec)
	query, args, err := in(exe, "DELETE FROM users WHERE id IN (?)", ids)
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	_, err = exe.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "deleting users")
}
