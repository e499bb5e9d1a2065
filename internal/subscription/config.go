package subscription

import (
	"time"

	"github.com/go-kit/kit/log"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/metrics"
)

// defaultRenewalCooldown is how recently a Subscription may have been
// written before renewal skips it.
const defaultRenewalCooldown = time.Minute * 30

// NewService returns a new iap.SubscriptionService.
func NewService(options ...ConfigOption) iap.SubscriptionService {
	s := service{
		logger:   log.NewNopLogger(),
		metrics:  metrics.NewNop(),
		now:      time.Now,
		cooldown: defaultRenewalCooldown,
	}

	for _, opt := range options {
		opt(&s)
	}

	return &s
}

// ConfigOption configures the service.
type ConfigOption func(*service)

// WithLogger configures the service with a logger.
func WithLogger(l log.Logger) ConfigOption {
	return func(s *service) {
		s.logger = l
	}
}

// WithRepoManager configures the service with a new RepositoryManager.
func WithRepoManager(repoMngr iap.RepositoryManager) ConfigOption {
	return func(s *service) {
		s.repoMngr = repoMngr
	}
}

// WithCache configures a SubscriptionCache to invalidate after writes.
func WithCache(c iap.SubscriptionCache) ConfigOption {
	return func(s *service) {
		s.cache = c
	}
}

// WithMetrics configures the service with a metrics Recorder.
func WithMetrics(m metrics.Recorder) ConfigOption {
	return func(s *service) {
		s.metrics = m
	}
}

// WithClock configures the time source used for transitions.
func WithClock(now func() time.Time) ConfigOption {
	return func(s *service) {
		s.now = now
	}
}

// WithRenewalCooldown skips renewals of Subscriptions written within
// the given duration. The default value is 30 minutes.
func WithRenewalCooldown(d time.Duration) ConfigOption {
	return func(s *service) {
		s.cooldown = d
	}
}
