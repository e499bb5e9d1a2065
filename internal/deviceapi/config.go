package deviceapi

import (
	"github.com/go-kit/kit/log"

	"github.com/fmitra/iap"
)

// NewService returns a new implementation of iap.DeviceAPI.
func NewService(options ...ConfigOption) iap.DeviceAPI {
	s := service{
		logger: log.NewNopLogger(),
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

// WithTokenService configures the service with a TokenService.
func WithTokenService(tokenSvc iap.TokenService) ConfigOption {
	return func(s *service) {
		s.token = tokenSvc
	}
}

// WithRepoManager configures the service with a RepositoryManager.
func WithRepoManager(repoMngr iap.RepositoryManager) ConfigOption {
	return func(s *service) {
		s.repoMngr = repoMngr
	}
}
