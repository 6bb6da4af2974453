package sqlite

import (
	"context"
	"time"

	"github.com/microstore/microstore/internal/auth/domain"
)

type consentsRepo struct {
	db dbtx
}

func (r *consentsRepo) GetConsent(ctx context.Context, userID, clientID string) (domain.Consent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, client_id, scopes, created_at, updated_at
		FROM consents WHERE user_id = ? AND client_id = ?`, userID, clientID)

	var (
		c      domain.Consent
		scopes string
	)
	err := row.Scan(&c.ID, &c.UserID, &c.ClientID, &scopes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.Consent{}, mapNotFound(err)
	}
	c.Scopes = splitFields(scopes)
	return c, nil
}

func (r *consentsRepo) UpsertConsent(ctx context.Context, c domain.Consent) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO consents (id, user_id, client_id, scopes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, client_id)
		DO UPDATE SET scopes = excluded.scopes, updated_at = excluded.updated_at`,
		c.ID, c.UserID, c.ClientID, joinFields(c.Scopes), now, now,
	)
	return err
}
