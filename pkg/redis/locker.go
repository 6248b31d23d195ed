package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("redis: lock is held by another caller")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short-lived exclusive locks keyed by string.
type Locker struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
	// wait is how long Acquire keeps retrying a held lock.
	wait time.Duration
}

func NewLocker(rdb goredis.UniversalClient, prefix string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultConfig().LockTTL
	}
	return &Locker{rdb: rdb, prefix: prefix, ttl: ttl, wait: 2 * time.Second}
}

// Acquire takes the lock for key, retrying until it is free, the wait budget
// runs out or ctx is done. The returned func releases it.
func (l *Locker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	k := l.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	backoff := 25 * time.Millisecond

	for {
		ok, err := l.rdb.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", k, err)
		}
		if ok {
			return func(ctx context.Context) error {
				return releaseScript.Run(ctx, l.rdb, []string{k}, token).Err()
			}, nil
		}

		if time.Now().Add(backoff).After(deadline) {
			return nil, ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 200*time.Millisecond {
			backoff *= 2
		}
	}
}
