package limiter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_BlocksAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute, 3, 10*time.Minute)
	m.now = func() time.Time { return now }
	ip := HashIP("10.0.0.1")

	for i := 0; i < 2; i++ {
		blocked, _, err := m.Failure(ctx, "u1", ip)
		require.NoError(t, err)
		require.False(t, blocked)
	}
	blocked, dur, err := m.Failure(ctx, "u1", ip)
	require.NoError(t, err)
	require.True(t, blocked)
	require.Equal(t, 10*time.Minute, dur)

	ok, wait, err := m.Allow(ctx, "u1", ip)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 10*time.Minute, wait)

	ok, _, _ = m.Allow(ctx, "u2", ip)
	require.True(t, ok, "other actors are unaffected")

	now = now.Add(11 * time.Minute)
	ok, _, _ = m.Allow(ctx, "u1", ip)
	require.True(t, ok)
}

func TestMemory_WindowResetsAndSuccessClears(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute, 2, time.Hour)
	m.now = func() time.Time { return now }
	ip := HashIP("10.0.0.1")

	_, _, _ = m.Failure(ctx, "u1", ip)
	now = now.Add(2 * time.Minute)
	blocked, _, _ := m.Failure(ctx, "u1", ip)
	require.False(t, blocked, "first failure fell out of the window")

	require.NoError(t, m.Success(ctx, "u1", ip))
	blocked, _, _ = m.Failure(ctx, "u1", ip)
	require.False(t, blocked)
}

func TestMemory_EvictsStaleEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute, 2, 5*time.Minute)
	m.now = func() time.Time { return now }

	for i := 0; i < 20; i++ {
		_, _, err := m.Failure(ctx, "u1", HashIP(fmt.Sprintf("10.0.0.%d", i)))
		require.NoError(t, err)
	}
	_, _, _ = m.Failure(ctx, "u2", HashIP("10.0.1.1"))
	_, _, _ = m.Failure(ctx, "u2", HashIP("10.0.1.1"))
	require.Len(t, m.entries, 21)

	// past the window the single failures are stale, the block is not
	now = now.Add(2 * time.Minute)
	_, _, err := m.Failure(ctx, "u3", HashIP("10.0.2.1"))
	require.NoError(t, err)
	require.Len(t, m.entries, 2)
	ok, _, _ := m.Allow(ctx, "u2", HashIP("10.0.1.1"))
	require.False(t, ok)

	now = now.Add(10 * time.Minute)
	ok, _, _ = m.Allow(ctx, "u2", HashIP("10.0.1.1"))
	require.True(t, ok)
	require.Len(t, m.entries, 1)
}
