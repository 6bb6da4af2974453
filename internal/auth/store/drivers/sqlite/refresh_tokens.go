package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/microstore/microstore/internal/auth/domain"
	"github.com/microstore/microstore/internal/auth/store"
)

type refreshTokensRepo struct {
	db dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (
			id, user_id, client_id, token_hash, family_id, scopes, state,
			expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.ClientID, t.TokenHash, t.FamilyID,
		joinFields(t.Scopes), domain.RefreshStateActive, t.ExpiresAt, now, now,
	)
	return err
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, client_id, token_hash, family_id, scopes, state,
			expires_at, created_at, updated_at
		FROM refresh_tokens WHERE token_hash = ?`, hash)
	return scanRefreshToken(row)
}

// MarkRotated is the compare-and-swap step of rotation. Two concurrent
// refreshes with the same token race here; exactly one wins, the loser sees
// ErrStateConflict and the caller treats it as reuse.
func (r *refreshTokensRepo) MarkRotated(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET state = ?, updated_at = ?
		WHERE id = ? AND state = ?`,
		domain.RefreshStateRotated, time.Now().UTC(), id, domain.RefreshStateActive,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return store.ErrStateConflict
	}
	return nil
}

func (r *refreshTokensRepo) RevokeFamily(ctx context.Context, familyID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET state = ?, updated_at = ?
		WHERE family_id = ? AND state != ?`,
		domain.RefreshStateRevoked, time.Now().UTC(), familyID, domain.RefreshStateRevoked,
	)
	return err
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, expiredBefore time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < ?`, expiredBefore)
	return err
}

func scanRefreshToken(row *sql.Row) (domain.RefreshToken, error) {
	var (
		t      domain.RefreshToken
		scopes string
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.ClientID, &t.TokenHash, &t.FamilyID,
		&scopes, &t.State, &t.ExpiresAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.Scopes = splitFields(scopes)
	return t, nil
}
