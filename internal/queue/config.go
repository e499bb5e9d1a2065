package queue

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-kit/kit/log"
)

// defaultMaxInterval caps the delay between two handler attempts.
const defaultMaxInterval = time.Second * 30

// NewProcessor returns a new Processor.
func NewProcessor(options ...ConfigOption) *Processor {
	p := Processor{
		logger:     log.NewNopLogger(),
		newBackOff: defaultBackOff,
	}

	for _, opt := range options {
		opt(&p)
	}

	return &p
}

// ConfigOption configures the Processor.
type ConfigOption func(*Processor)

// WithLogger configures the Processor with a logger.
func WithLogger(l log.Logger) ConfigOption {
	return func(p *Processor) {
		p.logger = l
	}
}

// WithBackOff configures the retry policy applied to a failing
// handler. A policy that gives up leaves the message unacknowledged.
func WithBackOff(newBackOff func() backoff.BackOff) ConfigOption {
	return func(p *Processor) {
		p.newBackOff = newBackOff
	}
}

func defaultBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = defaultMaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}
