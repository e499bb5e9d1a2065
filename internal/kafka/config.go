package kafka

import (
	"github.com/go-kit/kit/log"

	"github.com/fmitra/iap/internal/queue"
)

// NewQueue returns a new Kafka backed iap.Queue.
func NewQueue(brokers []string, options ...ConfigOption) *Queue {
	q := Queue{
		logger:    log.NewNopLogger(),
		groupID:   defaultGroupID,
		processor: queue.NewProcessor(),
		writer:    newWriter(brokers),
	}
	q.newReader = func(topic string) reader {
		return newReader(brokers, q.groupID, topic)
	}

	for _, opt := range options {
		opt(&q)
	}

	return &q
}

// ConfigOption configures the Queue.
type ConfigOption func(*Queue)

// WithLogger configures the Queue with a logger.
func WithLogger(l log.Logger) ConfigOption {
	return func(q *Queue) {
		q.logger = l
	}
}

// WithGroupID sets the consumer group used when consuming a topic.
func WithGroupID(groupID string) ConfigOption {
	return func(q *Queue) {
		q.groupID = groupID
	}
}

// WithProcessor configures how consumed messages are retried.
func WithProcessor(p *queue.Processor) ConfigOption {
	return func(q *Queue) {
		q.processor = p
	}
}
