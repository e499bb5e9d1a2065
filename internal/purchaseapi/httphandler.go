package purchaseapi

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/httpapi"
)

// SetupHTTPHandler converts a service's public methods
// to http handlers.
func SetupHTTPHandler(svc iap.PurchaseAPI, router *mux.Router, tokenSvc iap.TokenService, logger log.Logger, lmt httpapi.LimiterFactory, purchasePerMinute int64) {
	var handler httpapi.JSONAPIHandler
	{
		handler = httpapi.RateLimitMiddleware(svc.Purchase, lmt.NewLimiter(
			"Purchase", httpapi.PerMinute, purchasePerMinute,
		))
		handler = httpapi.AuthMiddleware(handler, tokenSvc)
		handler = httpapi.ErrorLoggingMiddleware(handler, "PurchaseAPI.Purchase", logger)
		httpHandler := httpapi.ToHandlerFunc(handler, http.StatusOK)
		router.HandleFunc("/purchase", httpHandler).Methods("Post")
	}
	{
		handler = httpapi.IdentityMiddleware(svc.CheckSubscription, tokenSvc)
		handler = httpapi.ErrorLoggingMiddleware(handler, "PurchaseAPI.CheckSubscription", logger)
		httpHandler := httpapi.ToHandlerFunc(handler, http.StatusOK)
		router.HandleFunc("/check-subscription", httpHandler).Methods("Get")
	}
}
