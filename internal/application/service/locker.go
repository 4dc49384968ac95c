package service

import (
	"context"
	"errors"
	"time"
)

var (
	ErrLockHeld = errors.New("lock is held by another run")
	ErrLockLost = errors.New("lock is no longer held")
)

// RunLocker serialises runs against the same target. Acquire never waits:
// a held lock returns ErrLockHeld.
type RunLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is one holder's claim on a lock. Extend resets the expiry to ttl
// from now and returns ErrLockLost once the claim expired or passed to
// another holder.
type Lease interface {
	Extend(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}
