package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/portal/core"
	"github.com/trezcool/portal/core/user"
)

const userColumns = `id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login`

type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     null.String    `db:"username"`
	Email        null.String    `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func (r userRow) user() user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username.String,
		Email:        r.Email.String,
		IsActive:     r.IsActive,
		Roles:        r.Roles,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    r.LastLogin.Time.UTC(),
	}
}

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) user.Repository {
	return &userRepository{exec: exec}
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo *userRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	excluded := make(pq.StringArray, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded = append(excluded, usr.ID)
	}

	var taken []struct {
		Username null.String `db:"username"`
		Email    null.String `db:"email"`
	}
	q := `SELECT username, email FROM users
		WHERE (username = NULLIF($1, '') OR email = NULLIF($2, '')) AND NOT (id::text = ANY($3))
		LIMIT 1`
	if err := repo.exec.SelectContext(ctx, &taken, q, username, email, excluded); err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	for _, row := range taken {
		if username != "" && row.Username.String == username {
			return user.ErrUsernameExists
		}
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `INSERT INTO users (id, name, username, email, is_active, roles, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + userColumns

	var row userRow
	err := repo.exec.GetContext(ctx, &row, q,
		usr.ID,
		usr.Name,
		null.NewString(usr.Username, usr.Username != ""),
		null.NewString(usr.Email, usr.Email != ""),
		usr.IsActive,
		pq.StringArray(usr.Roles),
		usr.PasswordHash,
		usr.CreatedAt.UTC(),
		usr.UpdatedAt.UTC(),
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return row.user(), nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	if filter.IsEmpty() {
		return user.User{}, user.ErrNotFound
	}

	conds := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)
	if filter.ID != "" {
		args = append(args, filter.ID)
		conds = append(conds, "id::text = ?")
	}
	if filter.Username != "" {
		args = append(args, filter.Username, filter.Username)
		conds = append(conds, "(username = ? OR email = ?)")
	}
	if filter.Email != "" {
		args = append(args, filter.Email)
		conds = append(conds, "email = ?")
	}
	q := repo.exec.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + strings.Join(conds, " AND ") + ` LIMIT 1`)

	var row userRow
	if err := repo.exec.GetContext(ctx, &row, q, args...); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "getting user")
	}
	return row.user(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive ...*bool) (user.User, error) {
	var active null.Bool
	if len(isActive) > 0 {
		active = null.BoolFromPtr(isActive[0])
	}
	var roles interface{}
	if usr.Roles != nil {
		roles = pq.StringArray(usr.Roles)
	}

	// only save set fields
	q := `UPDATE users SET
			name = COALESCE(NULLIF($2, ''), name),
			username = COALESCE(NULLIF($3, ''), username),
			email = COALESCE(NULLIF($4, ''), email),
			roles = COALESCE($5, roles),
			password_hash = COALESCE($6, password_hash),
			is_active = COALESCE($7, is_active),
			last_login = COALESCE($8, last_login),
			updated_at = COALESCE($9, updated_at)
		WHERE id::text = $1
		RETURNING ` + userColumns

	var row userRow
	err := repo.exec.GetContext(ctx, &row, q,
		usr.ID,
		usr.Name,
		usr.Username,
		usr.Email,
		roles,
		null.NewBytes(usr.PasswordHash, len(usr.PasswordHash) > 0),
		active,
		null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
		null.NewTime(usr.UpdatedAt.UTC(), !usr.UpdatedAt.IsZero()),
	)
	if err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "updating user")
	}
	return row.user(), nil
}
