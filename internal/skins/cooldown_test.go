package skins

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCooldown(t *testing.T) {
	now := time.Now()
	cooldown := NewCooldown(time.Minute)
	cooldown.now = func() time.Time {
		return now
	}
	defer cooldown.Stop()

	ok, left := cooldown.TryStart(playerId)
	require.True(t, ok)
	require.Zero(t, left)

	now = now.Add(20 * time.Second)
	ok, left = cooldown.TryStart(playerId)
	require.False(t, ok)
	require.Equal(t, 40*time.Second, left)

	ok, _ = cooldown.TryStart(ownerId)
	require.True(t, ok, "other players aren't affected")

	cooldown.Reset(playerId)
	ok, _ = cooldown.TryStart(playerId)
	require.True(t, ok)
}

func TestCooldownExpires(t *testing.T) {
	cooldown := NewCooldown(50 * time.Millisecond)
	defer cooldown.Stop()

	ok, _ := cooldown.TryStart(playerId)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		ok, _ := cooldown.TryStart(playerId)
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestDisabledCooldown(t *testing.T) {
	cooldown := NewCooldown(0)
	defer cooldown.Stop()
	for i := 0; i < 3; i++ {
		ok, _ := cooldown.TryStart(playerId)
		require.True(t, ok)
	}
}

func TestOwnerListChecker(t *testing.T) {
	ctx := context.Background()
	other := uuid.MustParse("55555555-5555-5555-5555-555555555555")

	t.Run("without skin permission check", func(t *testing.T) {
		checker := NewOwnerListChecker([]uuid.UUID{ownerId}, nil)
		require.True(t, checker.CheckPermission(ctx, playerId, playerId, other, false))
	})

	t.Run("own skin is always allowed", func(t *testing.T) {
		checker := NewOwnerListChecker(nil, []uuid.UUID{playerId})
		require.True(t, checker.CheckPermission(ctx, playerId, playerId, playerId, true))
	})

	t.Run("whitelist", func(t *testing.T) {
		checker := NewOwnerListChecker([]uuid.UUID{ownerId}, []uuid.UUID{other})
		require.True(t, checker.CheckPermission(ctx, playerId, playerId, ownerId, true))
		require.False(t, checker.CheckPermission(ctx, playerId, playerId, defaultId, true))
	})

	t.Run("blacklist", func(t *testing.T) {
		checker := NewOwnerListChecker(nil, []uuid.UUID{other})
		require.True(t, checker.CheckPermission(ctx, playerId, playerId, ownerId, true))
		require.False(t, checker.CheckPermission(ctx, playerId, playerId, other, true))
	})
}
