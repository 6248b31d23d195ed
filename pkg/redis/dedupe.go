package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Deduper remembers keys for a while so repeated deliveries can be skipped.
type Deduper struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewDeduper(rdb goredis.UniversalClient, prefix string, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DefaultConfig().DedupeTTL
	}
	return &Deduper{rdb: rdb, prefix: prefix, ttl: ttl}
}

// FirstSeen marks key and reports whether this is the first time it was seen
// within the TTL.
func (d *Deduper) FirstSeen(ctx context.Context, key string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.prefix+key, time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis dedupe %s: %w", key, err)
	}
	return ok, nil
}

// Forget drops key so a later delivery is processed again.
func (d *Deduper) Forget(ctx context.Context, key string) error {
	return d.rdb.Del(ctx, d.prefix+key).Err()
}
