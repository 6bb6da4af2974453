package service

import (
	"testing"

	"github.com/microstore/microstore/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSeed(t *testing.T) {
	t.Run("empty database gets both clients and the demo user", func(t *testing.T) {
		ctx := t.Context()
		st := newTestStore(t)
		svc := &SeedService{Store: st, DevSecrets: true}

		require.NoError(t, svc.Seed(ctx))

		spa, err := st.Clients().GetClientByClientID(ctx, "microstore-spa")
		require.NoError(t, err)
		require.True(t, spa.IsPublic())
		require.True(t, spa.RequirePKCE)

		orders, err := st.Clients().GetClientByClientID(ctx, "orders-service")
		require.NoError(t, err)
		require.NoError(t, cryptox.VerifySecret("secret", orders.SecretHash))

		user, err := st.Users().GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		require.NoError(t, cryptox.VerifySecret("password", user.PasswordHash))
	})

	t.Run("reseeding leaves existing entities untouched", func(t *testing.T) {
		ctx := t.Context()
		st := newTestStore(t)
		svc := &SeedService{Store: st, DevSecrets: true}

		require.NoError(t, svc.Seed(ctx))
		spa, err := st.Clients().GetClientByClientID(ctx, "microstore-spa")
		require.NoError(t, err)

		require.NoError(t, svc.Seed(ctx))
		again, err := st.Clients().GetClientByClientID(ctx, "microstore-spa")
		require.NoError(t, err)
		require.Equal(t, spa.ID, again.ID)
	})

	t.Run("missing registrations are restored individually", func(t *testing.T) {
		ctx := t.Context()
		st := newTestStore(t)

		// A database that already has the SPA client but lost the rest.
		existing := seedSPAClient(t, ctx, st, true)

		svc := &SeedService{Store: st, DevSecrets: true}
		require.NoError(t, svc.Seed(ctx))

		spa, err := st.Clients().GetClientByClientID(ctx, "microstore-spa")
		require.NoError(t, err)
		require.Equal(t, existing.ID, spa.ID)

		_, err = st.Clients().GetClientByClientID(ctx, "orders-service")
		require.NoError(t, err)

		_, err = st.Users().GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
	})
}
