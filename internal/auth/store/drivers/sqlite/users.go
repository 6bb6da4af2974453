package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/microstore/microstore/internal/auth/domain"
)

type usersRepo struct {
	db dbtx
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, roles, created_at, updated_at
		FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, roles, created_at, updated_at
		FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, roles, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, joinFields(u.Roles), now, now,
	)
	return err
}

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u     domain.User
		roles string
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &roles, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.Roles = splitFields(roles)
	return u, nil
}
