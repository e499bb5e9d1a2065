package subscription

import (
	"time"

	"github.com/fmitra/iap"
)

// NextStatus returns the status a purchase moves a Subscription to.
// Rules are evaluated in order:
//
//	no subscription           -> started
//	canceled                  -> started
//	expired before now        -> renewed
//	still active              -> started
//
// A purchase on an active renewed subscription therefore reports
// started again.
func NextStatus(existing *iap.Subscription, now time.Time) iap.Status {
	switch {
	case existing == nil:
		return iap.StatusStarted
	case existing.Status == iap.StatusCanceled:
		return iap.StatusStarted
	case existing.ExpireAt.Before(now):
		return iap.StatusRenewed
	default:
		return iap.StatusStarted
	}
}

// Apply returns the Subscription to persist after a validated purchase.
// The expiry is overwritten with the storefront's value even if it is
// earlier than the stored one. The existing Subscription is not modified.
func Apply(existing *iap.Subscription, uid string, appID int64, receipt string, expireAt, now time.Time) *iap.Subscription {
	status := NextStatus(existing, now)

	var sub iap.Subscription
	if existing != nil {
		sub = *existing
	} else {
		sub = iap.Subscription{
			UID:       uid,
			AppID:     appID,
			CreatedAt: now,
		}
	}

	sub.Receipt = receipt
	sub.Status = status
	sub.ExpireAt = expireAt.UTC()
	sub.UpdatedAt = now

	return &sub
}
