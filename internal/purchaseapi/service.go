// Package purchaseapi provides an HTTP API for purchases and
// subscription lookups.
package purchaseapi

import (
	"fmt"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/httpapi"
)

type service struct {
	logger       log.Logger
	receipt      iap.ReceiptValidator
	subscription iap.SubscriptionService
	repoMngr     iap.RepositoryManager
	cache        iap.SubscriptionCache
}

// Purchase validates a receipt with the storefront and records the
// purchase against the Subscription of the requesting Identity.
func (s *service) Purchase(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	ctx := r.Context()
	identity := httpapi.GetIdentity(r)
	if identity == nil {
		return nil, iap.ErrInvalidToken("Missing client_token")
	}

	req, err := decodePurchaseRequest(r)
	if err != nil {
		return nil, err
	}

	result, err := s.receipt.Validate(ctx, req.Receipt)
	if err != nil {
		return nil, err
	}
	if !result.Accepted {
		return nil, iap.ErrReceiptRejected("Invalid receipt")
	}

	sub, err := s.subscription.Purchase(ctx, identity, req.Receipt, result.ExpireAt)
	if err != nil {
		return nil, err
	}

	return httpapi.Success(
		"Subscription processed successfully",
		newSubscriptionResponse(sub),
	), nil
}

// CheckSubscription returns the Subscription of the requesting Identity.
func (s *service) CheckSubscription(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	ctx := r.Context()
	identity := httpapi.GetIdentity(r)
	if identity == nil {
		return nil, iap.ErrBadRequest("Missing uid or app_id")
	}

	if s.cache != nil {
		sub, err := s.cache.Get(ctx, identity.UID, identity.AppID)
		if err != nil {
			level.Warn(s.logger).Log(
				"message", "failed to read cached subscription",
				"uid", identity.UID,
				"app_id", identity.AppID,
				"error", err,
			)
		}
		if sub != nil {
			return httpapi.Success(
				"Subscription retrieved successfully",
				newSubscriptionResponse(sub),
			), nil
		}
	}

	sub, err := s.repoMngr.Subscription().ByIdentity(ctx, identity.UID, identity.AppID)
	if iap.ErrorCode(err) == iap.ENotFound {
		return nil, fmt.Errorf("%v: %w", err, iap.ErrNotFound("Subscription not found"))
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err = s.cache.Set(ctx, sub); err != nil {
			level.Warn(s.logger).Log(
				"message", "failed to cache subscription",
				"uid", identity.UID,
				"app_id", identity.AppID,
				"error", err,
			)
		}
	}

	return httpapi.Success(
		"Subscription retrieved successfully",
		newSubscriptionResponse(sub),
	), nil
}
