// Package redis provides a redis backed cache for Subscriptions.
package redis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-redis/redis/v8"

	"github.com/fmitra/iap"
)

// Rediser is the subset of the redis client used by the cache.
type Rediser interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// writeScript stores an entry at KEYS[1] unless the entry already
// there carries a newer version. An empty ARGV[2] leaves a tombstone.
const writeScript = `
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`

type cache struct {
	logger log.Logger
	db     Rediser
	ttl    time.Duration
}

type cachedSubscription struct {
	ID        string     `json:"id"`
	UID       string     `json:"uid"`
	AppID     int64      `json:"app_id"`
	Receipt   string     `json:"receipt"`
	Status    iap.Status `json:"status"`
	ExpireAt  time.Time  `json:"expire_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func key(uid string, appID int64) string {
	return fmt.Sprintf("subscription:%s:%d", base64.RawURLEncoding.EncodeToString([]byte(uid)), appID)
}

// version orders writes to the same Subscription. Postgres keeps
// timestamps to the microsecond.
func version(sub *iap.Subscription) string {
	return strconv.FormatInt(sub.UpdatedAt.UnixMicro(), 10)
}

// Get returns a cached Subscription or nil if it is not cached.
func (c *cache) Get(ctx context.Context, uid string, appID int64) (*iap.Subscription, error) {
	b, err := c.db.HGet(ctx, key(uid, appID), "data").Bytes()
	if err == redis.Nil || (err == nil && len(b) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}

	var cs cachedSubscription
	if err = json.Unmarshal(b, &cs); err != nil {
		level.Warn(c.logger).Log(
			"message", "discarding undecodable cache entry",
			"uid", uid,
			"app_id", appID,
			"error", err,
		)
		return nil, nil
	}

	return &iap.Subscription{
		ID:        cs.ID,
		UID:       cs.UID,
		AppID:     cs.AppID,
		Receipt:   cs.Receipt,
		Status:    cs.Status,
		ExpireAt:  cs.ExpireAt,
		CreatedAt: cs.CreatedAt,
		UpdatedAt: cs.UpdatedAt,
	}, nil
}

// Set caches a Subscription for the configured TTL. A Subscription read
// before a newer write was invalidated is not cached.
func (c *cache) Set(ctx context.Context, sub *iap.Subscription) error {
	b, err := json.Marshal(cachedSubscription{
		ID:        sub.ID,
		UID:       sub.UID,
		AppID:     sub.AppID,
		Receipt:   sub.Receipt,
		Status:    sub.Status,
		ExpireAt:  sub.ExpireAt,
		CreatedAt: sub.CreatedAt,
		UpdatedAt: sub.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode subscription: %w", err)
	}

	written, err := c.write(ctx, sub, string(b))
	if err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if !written {
		level.Debug(c.logger).Log(
			"message", "skipped caching stale subscription",
			"uid", sub.UID,
			"app_id", sub.AppID,
		)
	}
	return nil
}

// Invalidate replaces the cached Subscription with a tombstone holding
// the committed version, so slower readers cannot cache an older row.
func (c *cache) Invalidate(ctx context.Context, sub *iap.Subscription) error {
	if _, err := c.write(ctx, sub, ""); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}

func (c *cache) write(ctx context.Context, sub *iap.Subscription, data string) (bool, error) {
	n, err := c.db.Eval(
		ctx,
		writeScript,
		[]string{key(sub.UID, sub.AppID)},
		version(sub), data, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
