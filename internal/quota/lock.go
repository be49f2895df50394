package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ResetLockKey is the Redis key guarding the daily reset across instances.
const ResetLockKey = "lingoloop:quota:reset-lock"

const releaseTimeout = 2 * time.Second

// Locker elects one instance to run a reset cycle.
type Locker interface {
	// TryLock returns acquired=false when another holder owns the lock.
	TryLock(ctx context.Context) (release func(), acquired bool, err error)
}

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a single-key lease with an expiry, so a crashed holder
// cannot block resets forever.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLock creates a new RedisLock.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{client: client, key: key, ttl: ttl}
}

func (l *RedisLock) TryLock(ctx context.Context) (func(), bool, error) {
	owner := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring reset lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{l.key}, owner).Err(); err != nil {
			slog.Warn("quota: releasing reset lock", "error", err)
		}
	}
	return release, true, nil
}
