package idx_test

import (
	"testing"
	"time"

	"github.com/microstore/microstore/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewProducesValidIDs(t *testing.T) {
	t.Parallel()

	a := idx.New()
	b := idx.New()

	require.False(t, a.IsZero())
	require.NotEqual(t, a, b)

	parsed, err := idx.Parse(a.String())
	require.NoError(t, err)
	require.Equal(t, a, parsed)
}

func TestNewAtEmbedsTimestamp(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	id := idx.NewAt(at)
	require.WithinDuration(t, at, id.Time(), time.Millisecond)
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "   ", "not-a-ulid", "0000"} {
		_, err := idx.Parse(s)
		require.ErrorIs(t, err, idx.ErrInvalid)
	}
}
