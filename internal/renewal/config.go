package renewal

import (
	"time"

	"github.com/go-kit/kit/log"

	"github.com/fmitra/iap"
)

// Defaults for a renewal pass.
const (
	defaultInterval  = time.Minute
	defaultBatchSize = 100
	defaultCooldown  = time.Minute * 30
)

// NewWorker returns a Worker renewing lapsed Subscriptions.
func NewWorker(repoMngr iap.RepositoryManager, receiptSvc iap.ReceiptValidator,
	subscriptionSvc iap.SubscriptionService, publisher iap.EventPublisher, options ...ConfigOption) *Worker {
	w := Worker{
		logger:          log.NewNopLogger(),
		repoMngr:        repoMngr,
		receiptSvc:      receiptSvc,
		subscriptionSvc: subscriptionSvc,
		publisher:       publisher,
		interval:        defaultInterval,
		batchSize:       defaultBatchSize,
		cooldown:        defaultCooldown,
		now:             time.Now,
	}

	for _, opt := range options {
		opt(&w)
	}

	return &w
}

// ConfigOption configures the Worker.
type ConfigOption func(*Worker)

// WithLogger configures the Worker with a logger.
func WithLogger(l log.Logger) ConfigOption {
	return func(w *Worker) {
		w.logger = l
	}
}

// WithInterval sets the time between two renewal passes.
func WithInterval(d time.Duration) ConfigOption {
	return func(w *Worker) {
		w.interval = d
	}
}

// WithBatchSize limits the Subscriptions renewed per pass.
func WithBatchSize(n int) ConfigOption {
	return func(w *Worker) {
		w.batchSize = n
	}
}

// WithCooldown skips Subscriptions written more recently than d.
func WithCooldown(d time.Duration) ConfigOption {
	return func(w *Worker) {
		w.cooldown = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ConfigOption {
	return func(w *Worker) {
		w.now = now
	}
}
