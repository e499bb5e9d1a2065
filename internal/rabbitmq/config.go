package rabbitmq

import (
	"fmt"

	"github.com/go-kit/kit/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fmitra/iap/internal/queue"
)

// NewQueue connects to RabbitMQ and returns a new iap.Queue. Published
// messages are confirmed by the broker before Publish returns.
func NewQueue(url string, options ...ConfigOption) (*Queue, error) {
	conn, err := dial(url)
	if err != nil {
		return nil, err
	}

	q, err := newQueue(conn, options...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func newQueue(conn connection, options ...ConfigOption) (*Queue, error) {
	q := Queue{
		logger:    log.NewNopLogger(),
		processor: queue.NewProcessor(),
		conn:      conn,
		declared:  map[string]bool{},
	}

	for _, opt := range options {
		opt(&q)
	}

	ch, err := conn.channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err = ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	q.pub = ch
	q.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer))

	return &q, nil
}

// ConfigOption configures the Queue.
type ConfigOption func(*Queue)

// WithLogger configures the Queue with a logger.
func WithLogger(l log.Logger) ConfigOption {
	return func(q *Queue) {
		q.logger = l
	}
}

// WithProcessor configures how consumed messages are retried.
func WithProcessor(p *queue.Processor) ConfigOption {
	return func(q *Queue) {
		q.processor = p
	}
}
