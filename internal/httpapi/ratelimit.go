package httpapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fmitra/iap"
)

// Rate is the window over which requests are counted.
type Rate string

const (
	// PerSecond counts requests per one second window.
	PerSecond Rate = "per_second"
	// PerMinute counts requests per one minute window.
	PerMinute Rate = "per_minute"
)

func (r Rate) window() time.Duration {
	if r == PerSecond {
		return time.Second
	}
	return time.Minute
}

type rediser interface {
	TxPipelined(ctx context.Context, fn func(pipe redis.Pipeliner) error) ([]redis.Cmder, error)
}

// Limiter provides rate limiting tooling
type Limiter interface {
	// RateLimit applies basic rate limiting to an HTTP request.
	RateLimit(r *http.Request) error
}

// LimiterFactory creates new Limiters
type LimiterFactory interface {
	// NewLimiter returns a new Limiter allowing max requests per rate
	// window. The prefix namespaces the counters of one endpoint.
	NewLimiter(prefix string, rate Rate, max int64) Limiter
}

type factory struct {
	rdb rediser
}

type ratelimiter struct {
	rdb    rediser
	window time.Duration
	max    int64
	prefix string
	now    func() time.Time
}

// NewLimiter creates a new Limiter.
func (f *factory) NewLimiter(prefix string, rate Rate, max int64) Limiter {
	return &ratelimiter{
		rdb:    f.rdb,
		prefix: prefix,
		window: rate.window(),
		max:    max,
		now:    time.Now,
	}
}

// subject identifies who a request is counted against: the token
// identity when present, the client IP otherwise.
func subject(r *http.Request) string {
	if identity := GetIdentity(r); identity != nil {
		return fmt.Sprintf("id:%s|%d", identity.UID, identity.AppID)
	}
	return "ip:" + GetIP(r)
}

// key names the counter of a subject for the fixed window containing t.
func (l *ratelimiter) key(r *http.Request, t time.Time) string {
	index := t.UnixNano() / int64(l.window)
	return fmt.Sprintf("ratelimit:%s:%s:%d",
		l.prefix, base64.RawURLEncoding.EncodeToString([]byte(subject(r))), index)
}

// RateLimit applies fixed window rate limiting to an HTTP request.
// The counter expires with its window.
func (l *ratelimiter) RateLimit(r *http.Request) error {
	ctx := r.Context()
	key := l.key(r, l.now())

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to increment counter %s: %w", key, err)
	}

	if incr.Val() > l.max {
		return iap.ErrThrottle("Too many requests, try again later")
	}

	return nil
}

// NewRateLimiter returns a new LimiterFactory backed by redis.
func NewRateLimiter(db rediser) LimiterFactory {
	return &factory{rdb: db}
}
