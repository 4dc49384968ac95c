package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/khoahotran/tagvault/internal/application/service"
	"github.com/khoahotran/tagvault/pkg/logger"
)

const lockKeyPrefix = "tagvault:lock:"

// Both scripts act only while the key still holds our token, so an expired
// holder cannot touch a lock someone else has since taken.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

type redisRunLocker struct {
	rdb    *redis.Client
	logger logger.Logger
}

func NewRedisRunLocker(rdb *redis.Client, log logger.Logger) service.RunLocker {
	return &redisRunLocker{rdb: rdb, logger: log}
}

func (l *redisRunLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (service.Lease, error) {
	lease := &redisLease{
		rdb:    l.rdb,
		key:    key,
		token:  uuid.NewString(),
		logger: l.logger,
	}

	ok, err := l.rdb.SetNX(ctx, lockKeyPrefix+key, lease.token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, service.ErrLockHeld
	}
	l.logger.Debug("Run lock acquired", zap.String("key", key), zap.Duration("ttl", ttl))
	return lease, nil
}

type redisLease struct {
	rdb    *redis.Client
	key    string
	token  string
	logger logger.Logger
}

func (l *redisLease) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.rdb, []string{lockKeyPrefix + l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		return service.ErrLockLost
	}
	return nil
}

func (l *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{lockKeyPrefix + l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	l.logger.Debug("Run lock released", zap.String("key", l.key))
	return nil
}
