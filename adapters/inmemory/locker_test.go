package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khoahotran/tagvault/internal/application/service"
)

func TestLocker_LeaseLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocker()
	l.nowFn = func() time.Time { return now }

	lease, err := l.Acquire(ctx, "restore:vc01.lab", time.Minute)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "restore:vc01.lab", time.Minute)
	assert.ErrorIs(t, err, service.ErrLockHeld)

	now = now.Add(50 * time.Second)
	require.NoError(t, lease.Extend(ctx, time.Minute))
	now = now.Add(50 * time.Second)
	assert.True(t, l.Held("restore:vc01.lab"))

	now = now.Add(time.Minute)
	assert.False(t, l.Held("restore:vc01.lab"))
	assert.ErrorIs(t, lease.Extend(ctx, time.Minute), service.ErrLockLost)

	next, err := l.Acquire(ctx, "restore:vc01.lab", time.Minute)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
	assert.True(t, l.Held("restore:vc01.lab"))
	require.NoError(t, next.Release(ctx))
	assert.False(t, l.Held("restore:vc01.lab"))
}
