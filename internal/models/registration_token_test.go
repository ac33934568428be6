package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistrationTokenUsableAt(t *testing.T) {
	t.Parallel()
	now := time.Now()

	tok := RegistrationToken{
		ExpiresAt:   now.Add(time.Hour),
		MaxUses:     2,
		CurrentUses: 0,
		IsActive:    true,
	}

	t.Run("active token with uses left is usable", func(t *testing.T) {
		require.True(t, tok.UsableAt(now))
		require.Equal(t, 2, tok.RemainingUses())
	})

	t.Run("expired token is not usable", func(t *testing.T) {
		expired := tok
		expired.ExpiresAt = now.Add(-time.Minute)
		require.False(t, expired.UsableAt(now))
	})

	t.Run("expiry boundary is exclusive", func(t *testing.T) {
		edge := tok
		edge.ExpiresAt = now
		require.False(t, edge.UsableAt(now))
	})

	t.Run("exhausted token is not usable", func(t *testing.T) {
		spent := tok
		spent.CurrentUses = 2
		require.False(t, spent.UsableAt(now))
		require.Equal(t, 0, spent.RemainingUses())
	})

	t.Run("deactivated token is not usable", func(t *testing.T) {
		off := tok
		off.IsActive = false
		require.False(t, off.UsableAt(now))
	})
}

func TestRoleValid(t *testing.T) {
	t.Parallel()

	require.True(t, RoleSuperAdmin.Valid())
	require.True(t, RoleAdmin.Valid())
	require.True(t, RoleUser.Valid())
	require.False(t, Role("owner").Valid())
	require.False(t, Role("").Valid())
}
