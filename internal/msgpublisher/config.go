package msgpublisher

import (
	"time"

	"github.com/go-kit/kit/log"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/entropy"
)

// DefaultTopic is the topic SubscriptionEvents are published to.
const DefaultTopic = "subscription.events"

// NewService returns a new implementation of iap.EventPublisher.
func NewService(q iap.Queue, options ...ConfigOption) iap.EventPublisher {
	s := service{
		queue:  q,
		topic:  DefaultTopic,
		logger: log.NewNopLogger(),
		newID:  entropy.NewGenerator().New,
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

// WithTopic sets the topic events are published to.
func WithTopic(topic string) ConfigOption {
	return func(s *service) {
		s.topic = topic
	}
}

// WithIDGenerator sets the generator for event IDs.
func WithIDGenerator(fn func() (string, error)) ConfigOption {
	return func(s *service) {
		s.newID = fn
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ConfigOption {
	return func(s *service) {
		s.now = now
	}
}
