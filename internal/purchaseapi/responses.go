package purchaseapi

import (
	"github.com/fmitra/iap"
)

// subscriptionResponse is the response format for iap.Subscription.
type subscriptionResponse struct {
	UID      string     `json:"uid"`
	AppID    int64      `json:"app_id"`
	Status   iap.Status `json:"status"`
	ExpireAt string     `json:"expire_at"`
}

func newSubscriptionResponse(sub *iap.Subscription) *subscriptionResponse {
	return &subscriptionResponse{
		UID:      sub.UID,
		AppID:    sub.AppID,
		Status:   sub.Status,
		ExpireAt: sub.ExpireAt.UTC().Format(iap.TimeLayout),
	}
}
