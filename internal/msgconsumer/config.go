package msgconsumer

import (
	"net/http"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/metrics"
	"github.com/fmitra/iap/internal/msgpublisher"
)

// defaultWorkers represents the default number of workers delivering
// a single event to its webhooks.
const defaultWorkers = 4

// defaultTimeout bounds a single webhook request.
const defaultTimeout = time.Second * 10

// NewService returns a new Consumer delivering subscription events
// read from q to webhooks.
func NewService(q iap.Queue, repoMngr iap.RepositoryManager, options ...ConfigOption) Consumer {
	s := service{
		logger:       log.NewNopLogger(),
		metrics:      metrics.NewNop(),
		totalWorkers: defaultWorkers,
		topic:        msgpublisher.DefaultTopic,
		queue:        q,
		repoMngr:     repoMngr,
		httpClient:   &http.Client{Timeout: defaultTimeout},
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

// WithWorkers determines the total number of workers delivering
// an event.
func WithWorkers(w int) ConfigOption {
	return func(s *service) {
		if w > 0 {
			s.totalWorkers = w
		}
	}
}

// WithTopic sets the topic events are consumed from.
func WithTopic(topic string) ConfigOption {
	return func(s *service) {
		s.topic = topic
	}
}

// WithTimeout sets the timeout of a webhook request.
func WithTimeout(d time.Duration) ConfigOption {
	return func(s *service) {
		s.httpClient.Timeout = d
	}
}

// WithMetrics configures the service with a metrics Recorder.
func WithMetrics(m metrics.Recorder) ConfigOption {
	return func(s *service) {
		s.metrics = m
	}
}
