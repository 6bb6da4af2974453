package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/microstore/microstore/internal/auth/domain"
	"github.com/microstore/microstore/internal/auth/store"
	"github.com/microstore/microstore/pkg/cryptox"
	"github.com/microstore/microstore/pkg/idx"
	"github.com/microstore/microstore/pkg/slogx"
)

var ErrSeedFailed = errors.New("failed to seed initial data")

// SeedService provisions the well-known clients and the demo user. Each
// entity is checked and created independently, so a missing registration is
// restored on the next start without touching the ones that exist.
type SeedService struct {
	Store store.Store

	// DevSecrets enables fixed, well-known secrets for local development.
	// Never enable outside a dev environment.
	DevSecrets bool
}

// Seed ensures the default client registrations and demo user exist,
// creating only what is missing.
func (s *SeedService) Seed(ctx context.Context) error {
	l := slogx.FromContext(ctx)

	spaCreated, err := s.ensureSPAClient(ctx, l)
	if err != nil {
		return err
	}

	ordersSecret, ordersCreated, err := s.ensureOrdersClient(ctx, l)
	if err != nil {
		return err
	}

	userPassword, userCreated, err := s.ensureDemoUser(ctx, l)
	if err != nil {
		return err
	}

	if !spaCreated && !ordersCreated && !userCreated {
		l.Debug("seed skipped, well-known clients and demo user already present")
		return nil
	}

	if s.DevSecrets {
		l.Warn("seeded with fixed development secrets, do not use in production")
		return nil
	}

	// Generated secrets are printed exactly once; operators must capture
	// them here or re-provision the clients.
	attrs := []any{}
	if ordersCreated {
		attrs = append(attrs, slog.String("orders_service_secret", ordersSecret))
	}
	if userCreated {
		attrs = append(attrs, slog.String("alice_password", userPassword))
	}
	l.Info("seeded missing clients and demo user", attrs...)
	return nil
}

func (s *SeedService) ensureSPAClient(ctx context.Context, l *slog.Logger) (bool, error) {
	exists, err := s.clientExists(ctx, "microstore-spa")
	if err != nil || exists {
		return false, err
	}

	// Public SPA client, PKCE enforced, refresh rotation on.
	err = s.Store.Clients().CreateClient(ctx, domain.Client{
		ID:         idx.New().String(),
		ClientID:   "microstore-spa",
		Name:       "Microstore Web App",
		AuthMethod: domain.AuthMethodNone,
		GrantTypes: []string{domain.GrantAuthorizationCode, domain.GrantRefreshToken},
		RedirectURIs: []string{
			"http://localhost:5173/callback",
			"http://localhost:5173/silent-renew",
		},
		Scopes:          []string{"openid", "profile", "inventory.read", "inventory.write"},
		RequireConsent:  true,
		RequirePKCE:     true,
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		l.Error("failed to create spa client", slog.Any("error", err))
		return false, ErrSeedFailed
	}
	return true, nil
}

func (s *SeedService) ensureOrdersClient(ctx context.Context, l *slog.Logger) (string, bool, error) {
	exists, err := s.clientExists(ctx, "orders-service")
	if err != nil || exists {
		return "", false, err
	}

	secret, err := s.secret("secret")
	if err != nil {
		return "", false, err
	}
	secretHash, err := cryptox.HashSecret(secret)
	if err != nil {
		return "", false, err
	}

	// Confidential machine client for service-to-service calls.
	err = s.Store.Clients().CreateClient(ctx, domain.Client{
		ID:             idx.New().String(),
		ClientID:       "orders-service",
		Name:           "Orders Service",
		SecretHash:     secretHash,
		AuthMethod:     domain.AuthMethodSecretBasic,
		GrantTypes:     []string{domain.GrantClientCredentials},
		Scopes:         []string{"inventory.read", "inventory.write"},
		AccessTokenTTL: 30 * time.Minute,
	})
	if err != nil {
		l.Error("failed to create orders client", slog.Any("error", err))
		return "", false, ErrSeedFailed
	}
	return secret, true, nil
}

func (s *SeedService) ensureDemoUser(ctx context.Context, l *slog.Logger) (string, bool, error) {
	_, err := s.Store.Users().GetUserByUsername(ctx, "alice")
	if err == nil {
		return "", false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", false, err
	}

	password, err := s.secret("password")
	if err != nil {
		return "", false, err
	}
	passwordHash, err := cryptox.HashSecret(password)
	if err != nil {
		return "", false, err
	}

	err = s.Store.Users().CreateUser(ctx, domain.User{
		ID:           idx.New().String(),
		Username:     "alice",
		PasswordHash: passwordHash,
		Roles:        []string{"customer"},
	})
	if err != nil {
		l.Error("failed to create demo user", slog.Any("error", err))
		return "", false, ErrSeedFailed
	}
	return password, true, nil
}

func (s *SeedService) clientExists(ctx context.Context, clientID string) (bool, error) {
	_, err := s.Store.Clients().GetClientByClientID(ctx, clientID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (s *SeedService) secret(dev string) (string, error) {
	if s.DevSecrets {
		return dev, nil
	}
	return cryptox.GenerateToken(cryptox.TokenSize256)
}
