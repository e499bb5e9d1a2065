package purchaseapi

import (
	"github.com/go-kit/kit/log"

	"github.com/fmitra/iap"
)

// NewService returns a new implementation of iap.PurchaseAPI.
func NewService(options ...ConfigOption) iap.PurchaseAPI {
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

// WithReceiptValidator configures the service with a ReceiptValidator.
func WithReceiptValidator(v iap.ReceiptValidator) ConfigOption {
	return func(s *service) {
		s.receipt = v
	}
}

// WithSubscriptionService configures the service with a SubscriptionService.
func WithSubscriptionService(svc iap.SubscriptionService) ConfigOption {
	return func(s *service) {
		s.subscription = svc
	}
}

// WithRepoManager configures the service with a RepositoryManager.
func WithRepoManager(repoMngr iap.RepositoryManager) ConfigOption {
	return func(s *service) {
		s.repoMngr = repoMngr
	}
}

// WithCache configures a read through SubscriptionCache for
// subscription lookups.
func WithCache(c iap.SubscriptionCache) ConfigOption {
	return func(s *service) {
		s.cache = c
	}
}
