package deviceapi

import (
	"net/http"

	"github.com/didip/tollbooth/v6"
	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/httpapi"
)

// SetupHTTPHandler converts a service's public methods
// to http handlers. Registrations are throttled per client IP.
func SetupHTTPHandler(svc iap.DeviceAPI, router *mux.Router, logger log.Logger, perSecond float64) {
	var handler httpapi.JSONAPIHandler
	{
		handler = svc.Register
		handler = httpapi.ThrottleMiddleware(handler, tollbooth.NewLimiter(perSecond, nil))
		handler = httpapi.ErrorLoggingMiddleware(handler, "DeviceAPI.Register", logger)
		httpHandler := httpapi.ToHandlerFunc(handler, http.StatusOK)
		router.HandleFunc("/devices/register", httpHandler).Methods("Post")
	}
}
