package reclaimer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// acquireScript takes the key when it is free and extends it when it
// already holds our token, in one step.
var acquireScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2]) then
    return 1
end
if redis.call('GET', KEYS[1]) == ARGV[1] then
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
    return 1
end
return 0
`)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker is a best-effort leader lock: SET NX PX with a per-instance
// token.  The lock is not renewed; it lapses after ttl so the next period
// is open to any instance.
type RedisLocker struct {
	rdb   *redis.Client
	key   string
	ttl   time.Duration
	token string
}

func NewRedisLocker(rdb *redis.Client, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, key: key, ttl: ttl, token: uuid.NewString()}
}

// TryLock claims the key for ttl.  Re-claiming a key this instance already
// holds succeeds and extends it.
func (l *RedisLocker) TryLock(ctx context.Context) (bool, error) {
	n, err := acquireScript.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release drops the lock if this instance still owns it.
func (l *RedisLocker) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}
