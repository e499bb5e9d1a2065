// Package renewal periodically re-validates lapsed Subscriptions.
package renewal

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/fmitra/iap"
)

// Worker renews lapsed Subscriptions against the storefront and
// publishes an event for every Subscription it changes.
type Worker struct {
	logger          log.Logger
	repoMngr        iap.RepositoryManager
	receiptSvc      iap.ReceiptValidator
	subscriptionSvc iap.SubscriptionService
	publisher       iap.EventPublisher
	interval        time.Duration
	batchSize       int
	cooldown        time.Duration
	now             func() time.Time
}

// Run starts a renewal pass every interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			level.Error(w.logger).Log(
				"message", "renewal pass failed",
				"error", err,
				"source", "renewal.Run",
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce renews a single batch of lapsed Subscriptions and returns
// the number of Subscriptions changed. A Subscription that fails is
// logged and left for the next pass.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	now := w.now().UTC()
	subs, err := w.repoMngr.Subscription().Lapsed(ctx, now, now.Add(-w.cooldown), w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list lapsed subscriptions: %w", err)
	}

	changed := 0
	for _, sub := range subs {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}

		renewed, err := w.renew(ctx, sub)
		if err != nil {
			level.Warn(w.logger).Log(
				"message", "failed to renew subscription",
				"uid", sub.UID,
				"app_id", sub.AppID,
				"error", err,
				"source", "renewal.RunOnce",
			)
			continue
		}
		if renewed == nil {
			continue
		}

		changed++
		if err = w.publisher.Publish(ctx, renewed); err != nil {
			level.Error(w.logger).Log(
				"message", "failed to publish subscription event",
				"uid", renewed.UID,
				"app_id", renewed.AppID,
				"status", renewed.Status,
				"error", err,
				"source", "renewal.RunOnce",
			)
		}
	}

	if len(subs) > 0 {
		level.Info(w.logger).Log(
			"message", "renewal pass complete",
			"lapsed", len(subs),
			"changed", changed,
		)
	}

	return changed, nil
}

func (w *Worker) renew(ctx context.Context, sub *iap.Subscription) (*iap.Subscription, error) {
	result, err := w.receiptSvc.Validate(ctx, sub.Receipt)
	if err != nil {
		return nil, err
	}
	return w.subscriptionSvc.Renew(ctx, sub.UID, sub.AppID, result)
}
