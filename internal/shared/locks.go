package shared

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SweepLockKey is the redis key guarding the grant expiry sweep.
const SweepLockKey = "grants:sweep:lock"

// AcquireLock takes a best-effort redis lock with a TTL. It returns false when
// another holder owns the key.
func AcquireLock(ctx context.Context, client *redis.Client, key, owner string, ttl time.Duration) (bool, error) {
	if client == nil {
		return true, nil
	}
	return client.SetNX(ctx, key, owner, ttl).Result()
}

// ReleaseLock releases a lock previously taken by owner. Releasing a key held
// by someone else is a no-op.
func ReleaseLock(ctx context.Context, client *redis.Client, key, owner string) error {
	if client == nil {
		return nil
	}
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
	return client.Eval(ctx, script, []string{key}, owner).Err()
}
