package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/microstore/microstore/internal/auth/domain"
	"github.com/microstore/microstore/internal/auth/store"
)

type authorizationCodesRepo struct {
	db dbtx
}

func (r *authorizationCodesRepo) CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO authorization_codes (
			id, user_id, client_id, code_hash, redirect_uri, scopes,
			code_challenge, code_challenge_method, state, family_id,
			expires_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code.ID, code.UserID, code.ClientID, code.CodeHash, code.RedirectURI,
		joinFields(code.Scopes), code.CodeChallenge, code.CodeChallengeMethod,
		domain.CodeStateIssued, "", code.ExpiresAt, time.Now().UTC(),
	)
	return err
}

func (r *authorizationCodesRepo) GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, client_id, code_hash, redirect_uri, scopes,
			code_challenge, code_challenge_method, state, family_id,
			expires_at, consumed_at, created_at
		FROM authorization_codes WHERE code_hash = ?`, hash)
	return scanAuthorizationCode(row)
}

// ConsumeAuthorizationCode flips issued -> consumed and stamps the refresh
// family minted from the code. Concurrent exchanges of the same code race
// on the state predicate; exactly one wins.
func (r *authorizationCodesRepo) ConsumeAuthorizationCode(ctx context.Context, id, familyID string, consumedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE authorization_codes
		SET state = ?, family_id = ?, consumed_at = ?
		WHERE id = ? AND state = ?`,
		domain.CodeStateConsumed, familyID, consumedAt, id, domain.CodeStateIssued,
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

func (r *authorizationCodesRepo) DeleteExpiredAuthorizationCodes(ctx context.Context, expiredBefore time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM authorization_codes WHERE expires_at < ?`, expiredBefore)
	return err
}

func scanAuthorizationCode(row *sql.Row) (domain.AuthorizationCode, error) {
	var (
		c          domain.AuthorizationCode
		scopes     string
		consumedAt sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.UserID, &c.ClientID, &c.CodeHash, &c.RedirectURI,
		&scopes, &c.CodeChallenge, &c.CodeChallengeMethod, &c.State,
		&c.FamilyID, &c.ExpiresAt, &consumedAt, &c.CreatedAt,
	)
	if err != nil {
		return domain.AuthorizationCode{}, mapNotFound(err)
	}
	c.Scopes = splitFields(scopes)
	c.ConsumedAt = mapNullTimePtr(consumedAt)
	return c, nil
}
