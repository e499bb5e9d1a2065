package token

import (
	"time"

	"github.com/go-kit/kit/log"

	"github.com/fmitra/iap"
)

// NewService returns a new TokenService.
func NewService(options ...ConfigOption) iap.TokenService {
	s := service{
		logger: log.NewNopLogger(),
		now:    time.Now,
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

// WithSecret configures the service with a secret value
// for signing functions.
func WithSecret(secret string) ConfigOption {
	return func(s *service) {
		s.secret = []byte(secret)
	}
}

// WithClock configures the source of the issue timestamp.
func WithClock(now func() time.Time) ConfigOption {
	return func(s *service) {
		s.now = now
	}
}
