package store

import (
	"context"
	"errors"
	"time"

	"github.com/microstore/microstore/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrStateConflict is returned by compare-and-swap operations when the
	// row was not in the expected state, e.g. consuming an already-consumed
	// authorization code or rotating a non-active refresh token.
	ErrStateConflict = errors.New("store: state conflict")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. It exposes sub-repositories to keep concerns
// tidy and testable, and to stop people from accidentally opening
// transactions within transactions.
type Store interface {
	Users() Users
	Clients() Clients
	RefreshTokens() RefreshTokens
	AuthorizationCodes() AuthorizationCodes
	Consents() Consents

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during the login form check.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error
}

type Clients interface {
	// GetClientByClientID fetches a client by its public identifier.
	GetClientByClientID(ctx context.Context, clientID string) (domain.Client, error)

	// CreateClient inserts a new client (id is ULID; secret_hash may be
	// empty for public clients).
	CreateClient(ctx context.Context, c domain.Client) error
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash returns the token by its fingerprint regardless
	// of state, so the caller can distinguish reuse from unknown tokens.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// MarkRotated flips state active -> rotated atomically. Returns
	// ErrStateConflict when the token was not active, which is the reuse
	// signal under concurrent refresh attempts.
	MarkRotated(ctx context.Context, id string) error

	// RevokeFamily revokes every token in a rotation family.
	RevokeFamily(ctx context.Context, familyID string) error

	// DeleteExpiredRefreshTokens is housekeeping; expiredBefore bounds the cutoff.
	DeleteExpiredRefreshTokens(ctx context.Context, expiredBefore time.Time) error
}

type AuthorizationCodes interface {
	// CreateAuthorizationCode stores a freshly minted authorization code.
	CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error

	// GetAuthorizationCodeByHash fetches a code by its hashed value when
	// redeeming, regardless of state.
	GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error)

	// ConsumeAuthorizationCode flips state issued -> consumed atomically and
	// stamps the refresh-token family minted from it. Returns
	// ErrStateConflict when the code was already consumed or revoked.
	ConsumeAuthorizationCode(ctx context.Context, id, familyID string, consumedAt time.Time) error

	// DeleteExpiredAuthorizationCodes removes codes past their expiry.
	DeleteExpiredAuthorizationCodes(ctx context.Context, expiredBefore time.Time) error
}

type Consents interface {
	// GetConsent returns the stored grant for a user+client pair.
	GetConsent(ctx context.Context, userID, clientID string) (domain.Consent, error)

	// UpsertConsent stores or widens the grant for a user+client pair.
	UpsertConsent(ctx context.Context, c domain.Consent) error
}
