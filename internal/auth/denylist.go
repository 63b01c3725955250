package auth

import (
	"context"
	"time"

	"github.com/geocoder89/devicewatch/internal/cache"
	"github.com/redis/go-redis/v9"
)

const denylistKeyPrefix = "devicewatch:denylist:"

// RedisDenylist stores revoked token ids with a TTL equal to the token's
// remaining lifetime, so Redis expiry is the sweep.
type RedisDenylist struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisDenylist(rdb *redis.Client) *RedisDenylist {
	return &RedisDenylist{rdb: rdb, now: time.Now}
}

func (d *RedisDenylist) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(d.now())
	if ttl <= 0 {
		return nil
	}

	return d.rdb.Set(ctx, denylistKeyPrefix+jti, 1, ttl).Err()
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.rdb.Exists(ctx, denylistKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryDenylist is the single-process fallback. Call Run to sweep expired ids.
type MemoryDenylist struct {
	entries *cache.Cache
	now     func() time.Time
}

func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{entries: cache.New(SessionTTL), now: time.Now}
}

func (d *MemoryDenylist) Revoke(_ context.Context, jti string, until time.Time) error {
	d.entries.SetWithTTL(jti, struct{}{}, until.Sub(d.now()))
	return nil
}

func (d *MemoryDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	_, ok := d.entries.Get(jti)
	return ok, nil
}

func (d *MemoryDenylist) Run(ctx context.Context) {
	d.entries.RunSweeper(ctx, time.Minute)
}
