package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestMarkOnlineOffline(t *testing.T) {
	redis := miniredis.RunT(t)
	store := New(redis.Addr(), "", time.Minute)
	defer store.Close()

	ctx := context.Background()

	on, err := store.IsOnline(ctx, 1)
	require.NoError(t, err)
	require.False(t, on)

	require.NoError(t, store.MarkOnline(ctx, 1))
	on, err = store.IsOnline(ctx, 1)
	require.NoError(t, err)
	require.True(t, on)

	require.NoError(t, store.MarkOffline(ctx, 1))
	on, err = store.IsOnline(ctx, 1)
	require.NoError(t, err)
	require.False(t, on)
}

func TestOnlineExpiresAfterTTL(t *testing.T) {
	redis := miniredis.RunT(t)
	store := New(redis.Addr(), "", 30*time.Second)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.MarkOnline(ctx, 7))

	redis.FastForward(31 * time.Second)

	on, err := store.IsOnline(ctx, 7)
	require.NoError(t, err)
	require.False(t, on)
}

func TestOnlineBatch(t *testing.T) {
	redis := miniredis.RunT(t)
	store := New(redis.Addr(), "", time.Minute)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.MarkOnline(ctx, 1))
	require.NoError(t, store.MarkOnline(ctx, 3))

	online, err := store.Online(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, map[int64]bool{1: true, 2: false, 3: true}, online)
}

func TestOnlineEmptyInput(t *testing.T) {
	redis := miniredis.RunT(t)
	store := New(redis.Addr(), "", time.Minute)
	defer store.Close()

	online, err := store.Online(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, online)
}

func TestMarkOfflineIdempotent(t *testing.T) {
	redis := miniredis.RunT(t)
	store := New(redis.Addr(), "", time.Minute)
	defer store.Close()

	require.NoError(t, store.MarkOffline(context.Background(), 42))
}
