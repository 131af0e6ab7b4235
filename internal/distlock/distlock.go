// Package distlock provides the Redis-backed mutual-exclusion lock the
// LeaseReclaimer and RecurrenceMaterializer jobs take before a tick, so
// that only one broker replica runs a given job's tick even when several
// instances share one database. When no Redis client is configured it
// degrades to an always-acquire no-op lock, for the single-replica case.
package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker acquires and releases a named mutual-exclusion lock.
type Locker interface {
	// TryLock attempts to acquire key for ttl, returning false if another
	// holder currently has it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Unlock releases key if it is still held by this process's token.
	Unlock(ctx context.Context, key string) error
}

// RedisLocker implements Locker with a single `SET NX PX` per key,
// identified by a per-process random token so Unlock never clears a lock
// it does not own (e.g. one that expired and was re-acquired elsewhere).
type RedisLocker struct {
	client *redis.Client
	token  string
}

// NewRedisLocker builds a RedisLocker over an existing client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, token: randomToken()}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, l.token, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// unlockScript deletes key only if its value still matches the caller's
// token, so a lock that expired and was re-acquired by another replica is
// never clobbered by a late Unlock call.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	return l.client.Eval(ctx, unlockScript, []string{key}, l.token).Err()
}

// NoopLocker always grants the lock immediately; used when no Redis URL
// is configured (single-replica deployments).
type NoopLocker struct{}

func (NoopLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (NoopLocker) Unlock(ctx context.Context, key string) error { return nil }

func randomToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format(time.RFC3339Nano)
	}
	return hex.EncodeToString(b)
}
