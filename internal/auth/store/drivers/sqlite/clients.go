package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/microstore/microstore/internal/auth/domain"
)

type clientsRepo struct {
	db dbtx
}

const clientColumns = `id, client_id, name, secret_hash, auth_method, grant_types,
	redirect_uris, scopes, require_consent, require_pkce, access_token_ttl,
	refresh_token_ttl, reuse_refresh_tokens, disabled, created_at, updated_at`

func (r *clientsRepo) GetClientByClientID(ctx context.Context, clientID string) (domain.Client, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE client_id = ?`, clientID)
	return scanClient(row)
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	if err := c.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (
			id, client_id, name, secret_hash, auth_method, grant_types,
			redirect_uris, scopes, require_consent, require_pkce,
			access_token_ttl, refresh_token_ttl, reuse_refresh_tokens,
			disabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.ClientID,
		c.Name,
		mapStringNull(c.SecretHash),
		c.AuthMethod,
		joinFields(c.GrantTypes),
		joinFields(c.RedirectURIs),
		joinFields(c.Scopes),
		c.RequireConsent,
		c.RequirePKCE,
		int64(c.AccessTokenTTL.Seconds()),
		int64(c.RefreshTokenTTL.Seconds()),
		c.ReuseRefreshTokens,
		c.Disabled,
		now,
		now,
	)
	return err
}

func scanClient(row *sql.Row) (domain.Client, error) {
	var (
		c                     domain.Client
		secretHash            sql.NullString
		grantTypes            string
		redirectURIs          string
		scopes                string
		accessTTL, refreshTTL int64
	)
	err := row.Scan(
		&c.ID,
		&c.ClientID,
		&c.Name,
		&secretHash,
		&c.AuthMethod,
		&grantTypes,
		&redirectURIs,
		&scopes,
		&c.RequireConsent,
		&c.RequirePKCE,
		&accessTTL,
		&refreshTTL,
		&c.ReuseRefreshTokens,
		&c.Disabled,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}

	c.SecretHash = mapNullString(secretHash)
	c.GrantTypes = splitFields(grantTypes)
	c.RedirectURIs = splitFields(redirectURIs)
	c.Scopes = splitFields(scopes)
	c.AccessTokenTTL = time.Duration(accessTTL) * time.Second
	c.RefreshTokenTTL = time.Duration(refreshTTL) * time.Second

	return c, nil
}
