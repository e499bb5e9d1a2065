// Package subscription applies purchase and renewal transitions to
// subscriptions.
//
// Every transition is a read-modify-write performed inside a single
// repository transaction. The Subscription key (uid, app_id) is locked
// by SubscriptionRepository.GetForUpdate until the transaction commits
// or rolls back, so concurrent writes to the same key are serialized
// while writes to different keys proceed independently.
package subscription

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/metrics"
)

type service struct {
	logger   log.Logger
	repoMngr iap.RepositoryManager
	cache    iap.SubscriptionCache
	metrics  metrics.Recorder
	now      func() time.Time
	cooldown time.Duration
}

// Purchase records a validated purchase for an Identity.
func (s *service) Purchase(ctx context.Context, identity *iap.Identity, receipt string, expireAt time.Time) (*iap.Subscription, error) {
	txClient, err := s.repoMngr.NewWithTransaction(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start transaction")
	}

	entity, err := txClient.WithAtomic(func() (interface{}, error) {
		repo := txClient.Subscription()

		existing, err := repo.GetForUpdate(ctx, identity.UID, identity.AppID)
		if err != nil {
			return nil, err
		}

		now := s.now().UTC()
		sub := Apply(existing, identity.UID, identity.AppID, receipt, expireAt, now)
		if existing == nil {
			err = repo.Create(ctx, sub)
		} else {
			err = repo.Update(ctx, sub)
		}
		if err != nil {
			return nil, err
		}

		return sub, nil
	})
	if err != nil {
		return nil, err
	}

	sub := entity.(*iap.Subscription)
	s.metrics.Transition(sub.Status, metrics.SourcePurchase)
	s.invalidate(ctx, sub)

	return sub, nil
}

// Renew applies a storefront re-validation to a lapsed Subscription.
// The Subscription is skipped if it no longer exists, was canceled, is
// no longer expired or was written within the renewal cooldown. An
// accepted receipt follows the purchase transition rules; a rejected
// receipt cancels the Subscription and keeps its expiry.
func (s *service) Renew(ctx context.Context, uid string, appID int64, result *iap.ReceiptResult) (*iap.Subscription, error) {
	txClient, err := s.repoMngr.NewWithTransaction(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start transaction")
	}

	entity, err := txClient.WithAtomic(func() (interface{}, error) {
		repo := txClient.Subscription()

		existing, err := repo.GetForUpdate(ctx, uid, appID)
		if err != nil {
			return nil, err
		}

		now := s.now().UTC()
		if !s.isRenewable(existing, now) {
			return nil, nil
		}

		var sub *iap.Subscription
		if result.Accepted {
			sub = Apply(existing, uid, appID, existing.Receipt, result.ExpireAt, now)
		} else {
			canceled := *existing
			canceled.Status = iap.StatusCanceled
			canceled.UpdatedAt = now
			sub = &canceled
		}

		if err = repo.Update(ctx, sub); err != nil {
			return nil, err
		}

		return sub, nil
	})
	if err != nil {
		return nil, err
	}

	sub, ok := entity.(*iap.Subscription)
	if !ok || sub == nil {
		level.Debug(s.logger).Log(
			"message", "subscription no longer qualifies for renewal",
			"uid", uid,
			"app_id", appID,
			"source", "subscription.Renew",
		)
		return nil, nil
	}

	s.metrics.Transition(sub.Status, metrics.SourceRenewal)
	s.invalidate(ctx, sub)

	return sub, nil
}

func (s *service) isRenewable(sub *iap.Subscription, now time.Time) bool {
	if sub == nil || sub.Status == iap.StatusCanceled {
		return false
	}
	if !sub.ExpireAt.Before(now) {
		return false
	}
	return !sub.UpdatedAt.After(now.Add(-s.cooldown))
}

// invalidate drops a cached Subscription after a committed write.
// Failures are logged; the cache entry expires on its own.
func (s *service) invalidate(ctx context.Context, sub *iap.Subscription) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Invalidate(ctx, sub); err != nil {
		level.Warn(s.logger).Log(
			"message", "failed to invalidate cached subscription",
			"uid", sub.UID,
			"app_id", sub.AppID,
			"error", err,
			"source", "subscription.invalidate",
		)
	}
}
