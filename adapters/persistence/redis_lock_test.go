package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/tagvault/internal/application/service"
	"github.com/khoahotran/tagvault/pkg/logger"
)

func newTestLocker(t *testing.T) (service.RunLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisRunLocker(rdb, logger.NewNopLogger()), mr
}

func TestRunLocker_ExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	locker, mr := newTestLocker(t)

	lease, err := locker.Acquire(ctx, "vc01.lab", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists(lockKeyPrefix+"vc01.lab"))

	_, err = locker.Acquire(ctx, "vc01.lab", time.Minute)
	assert.ErrorIs(t, err, service.ErrLockHeld)

	other, err := locker.Acquire(ctx, "vc02.lab", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists(lockKeyPrefix+"vc01.lab"))

	again, err := locker.Acquire(ctx, "vc01.lab", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestRunLocker_StaleReleaseKeepsNewHolder(t *testing.T) {
	ctx := context.Background()
	locker, mr := newTestLocker(t)

	stale, err := locker.Acquire(ctx, "vc01.lab", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "vc01.lab", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists(lockKeyPrefix+"vc01.lab"))

	_, err = locker.Acquire(ctx, "vc01.lab", time.Minute)
	assert.ErrorIs(t, err, service.ErrLockHeld)
	require.NoError(t, fresh.Release(ctx))
}

func TestRunLocker_ExtendOutlivesOriginalTTL(t *testing.T) {
	ctx := context.Background()
	locker, mr := newTestLocker(t)

	lease, err := locker.Acquire(ctx, "vc01.lab", 10*time.Second)
	require.NoError(t, err)

	mr.FastForward(8 * time.Second)
	require.NoError(t, lease.Extend(ctx, 10*time.Second))
	mr.FastForward(8 * time.Second)
	assert.True(t, mr.Exists(lockKeyPrefix+"vc01.lab"))

	_, err = locker.Acquire(ctx, "vc01.lab", time.Minute)
	assert.ErrorIs(t, err, service.ErrLockHeld)
	require.NoError(t, lease.Release(ctx))
}

func TestRunLocker_ExtendAfterExpiryIsLost(t *testing.T) {
	ctx := context.Background()
	locker, mr := newTestLocker(t)

	stale, err := locker.Acquire(ctx, "vc01.lab", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "vc01.lab", time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, stale.Extend(ctx, time.Minute), service.ErrLockLost)
	require.NoError(t, fresh.Extend(ctx, time.Minute))
	require.NoError(t, fresh.Release(ctx))
}
