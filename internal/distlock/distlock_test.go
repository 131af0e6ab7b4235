package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopLockerAlwaysAcquires(t *testing.T) {
	l := NoopLocker{}
	ok, err := l.TryLock(context.Background(), "job:reclaimer", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, l.Unlock(context.Background(), "job:reclaimer"))
}

func newTestRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisLocker(client), mr
}

func TestRedisLockerSecondAcquireFails(t *testing.T) {
	l, _ := newTestRedisLocker(t)
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "job:reclaimer", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryLock(ctx, "job:reclaimer", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLockerUnlockReleasesForNextAcquire(t *testing.T) {
	l, _ := newTestRedisLocker(t)
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "job:reclaimer", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Unlock(ctx, "job:reclaimer"))

	ok, err = l.TryLock(ctx, "job:reclaimer", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockerUnlockDoesNotClobberOtherHolder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	first := NewRedisLocker(client)
	second := NewRedisLocker(client)
	ctx := context.Background()

	ok, err := first.TryLock(ctx, "job:reclaimer", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = second.TryLock(ctx, "job:reclaimer", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, first.Unlock(ctx, "job:reclaimer"))

	ok, err = second.TryLock(ctx, "job:reclaimer", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "first's stale unlock must not release second's active lock")
}
