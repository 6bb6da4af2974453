package guard

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/microstore/microstore/pkg/authsdk"
	"github.com/microstore/microstore/pkg/jwtx"
)

// DefaultKeyTTL is how long a fetched JWKS document is trusted before the
// next verification triggers a refetch.
const DefaultKeyTTL = 5 * time.Minute

// ErrUnknownKID is returned when a token's kid is absent from the JWKS even
// after a forced refetch.
var ErrUnknownKID = errors.New("guard: unknown kid")

// RemoteKeySet caches the authorization server's JWKS document. Keys are
// refetched when the cache goes stale, and at most once synchronously when a
// token arrives with a kid the cache has never seen. The single-refetch rule
// keeps a flood of bogus-kid tokens from hammering the auth service.
type RemoteKeySet struct {
	sdk *authsdk.SDKClient
	ttl time.Duration

	mu        sync.Mutex
	keys      *jwtx.KeySet
	lastFetch time.Time
}

// NewRemoteKeySet creates a RemoteKeySet fetching from the given
// authorization server base URL. A ttl of zero uses DefaultKeyTTL.
func NewRemoteKeySet(authBaseURL string, ttl time.Duration) *RemoteKeySet {
	if ttl <= 0 {
		ttl = DefaultKeyTTL
	}
	return &RemoteKeySet{
		sdk:  authsdk.NewSDKClient(authBaseURL),
		ttl:  ttl,
		keys: jwtx.NewKeySet(),
	}
}

// Key returns the RSA public key for the given kid, refreshing the cached
// JWKS when stale or when the kid is missing.
func (s *RemoteKeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stale := time.Since(s.lastFetch) > s.ttl || !s.keys.IsReady()
	if stale {
		if err := s.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}

	if pub, err := s.getLocked(kid); err == nil {
		return pub, nil
	}

	// Kid miss against a fresh cache: the signing key may have rotated
	// since the last fetch, so refetch exactly once before giving up.
	if !stale {
		if err := s.refreshLocked(ctx); err != nil {
			return nil, err
		}
		if pub, err := s.getLocked(kid); err == nil {
			return pub, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownKID, kid)
}

// Ready reports whether at least one key has been fetched. Used by readiness
// probes so a resource server only reports ready once it can verify tokens.
func (s *RemoteKeySet) Ready(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys.IsReady() {
		return true
	}
	return s.refreshLocked(ctx) == nil
}

func (s *RemoteKeySet) getLocked(kid string) (*rsa.PublicKey, error) {
	pub, err := s.keys.Get(kid)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("guard: not an RSA key")
	}
	return rsaPub, nil
}

func (s *RemoteKeySet) refreshLocked(ctx context.Context) error {
	jwks, err := s.sdk.FetchJWKS(ctx)
	if err != nil {
		return fmt.Errorf("guard: fetch jwks: %w", err)
	}
	if err := s.keys.ResetFromJWKS(jwks); err != nil {
		return fmt.Errorf("guard: parse jwks: %w", err)
	}
	s.lastFetch = time.Now()
	return nil
}
