package redis

import (
	"time"

	"github.com/go-kit/kit/log"

	"github.com/fmitra/iap"
)

const defaultTTL = time.Minute

// NewCache returns a new iap.SubscriptionCache backed by redis.
func NewCache(options ...ConfigOption) iap.SubscriptionCache {
	c := cache{
		logger: log.NewNopLogger(),
		ttl:    defaultTTL,
	}

	for _, opt := range options {
		opt(&c)
	}

	return &c
}

// ConfigOption configures the cache.
type ConfigOption func(*cache)

// WithLogger configures the cache with a logger.
func WithLogger(l log.Logger) ConfigOption {
	return func(c *cache) {
		c.logger = l
	}
}

// WithDB configures the cache with a redis client.
func WithDB(db Rediser) ConfigOption {
	return func(c *cache) {
		c.db = db
	}
}

// WithTTL configures how long a Subscription stays cached. The
// default value is one minute.
func WithTTL(ttl time.Duration) ConfigOption {
	return func(c *cache) {
		c.ttl = ttl
	}
}
