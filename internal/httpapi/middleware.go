package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/didip/tollbooth/v6"
	"github.com/didip/tollbooth/v6/libstring"
	"github.com/didip/tollbooth/v6/limiter"
	"github.com/go-kit/kit/log"

	"github.com/fmitra/iap"
)

type contextKey string

const authorizationHeader = "Authorization"
const identityContextKey contextKey = "identity"

// ThrottleEveryOneSec allows a single request per second.
const ThrottleEveryOneSec = 1.0

var ipLookups = []string{"X-Forwarded-For", "X-Real-IP", "RemoteAddr"}

// AuthMiddleware requires a valid client token in the Authorization
// header and sets its Identity on the request context.
func AuthMiddleware(jsonHandler JSONAPIHandler, tokenSvc iap.TokenService) JSONAPIHandler {
	return authenticate(jsonHandler, tokenSvc, iap.ErrInvalidToken("Missing client_token"))
}

// IdentityMiddleware is AuthMiddleware for lookups where a missing
// token is an incomplete request rather than an unauthenticated one.
func IdentityMiddleware(jsonHandler JSONAPIHandler, tokenSvc iap.TokenService) JSONAPIHandler {
	return authenticate(jsonHandler, tokenSvc, iap.ErrBadRequest("Missing uid or app_id"))
}

func authenticate(jsonHandler JSONAPIHandler, tokenSvc iap.TokenService, missing error) JSONAPIHandler {
	return func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
		token := r.Header.Get(authorizationHeader)
		if token == "" {
			return nil, missing
		}

		identity, err := tokenSvc.Validate(token)
		if err != nil {
			return nil, err
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		r = r.WithContext(ctx)

		return jsonHandler(w, r)
	}
}

// ThrottleMiddleware limits requests per client IP.
func ThrottleMiddleware(jsonHandler JSONAPIHandler, lmt *limiter.Limiter) JSONAPIHandler {
	lmt.SetIPLookups(ipLookups)

	return func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
		if httpErr := tollbooth.LimitByRequest(lmt, w, r); httpErr != nil {
			return nil, iap.ErrThrottle("Too many requests, try again later")
		}

		return jsonHandler(w, r)
	}
}

// RateLimitMiddleware limits requests per Identity, falling back
// to the client IP for anonymous requests.
func RateLimitMiddleware(jsonHandler JSONAPIHandler, l Limiter) JSONAPIHandler {
	return func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
		if err := l.RateLimit(r); err != nil {
			return nil, err
		}

		return jsonHandler(w, r)
	}
}

// ErrorLoggingMiddleware logs any errors that are returned before
// being parsed to an HTTP response.
func ErrorLoggingMiddleware(jsonHandler JSONAPIHandler, source string, logger log.Logger) JSONAPIHandler {
	return func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
		response, err := jsonHandler(w, r)
		if err != nil {
			logger.Log(
				"source", source,
				"path", r.URL.Path,
				"client_ip", GetIP(r),
				"error_code", iap.ErrorCode(err),
				"error", err.Error(),
				"stack_trace", fmt.Sprintf("%+v", err),
			)
		}
		return response, err
	}
}

// GetIdentity retrieves the Identity of an authenticated request,
// or nil if the request was not authenticated.
func GetIdentity(r *http.Request) *iap.Identity {
	identity, ok := r.Context().Value(identityContextKey).(*iap.Identity)
	if !ok {
		return nil
	}
	return identity
}

// GetIP retrieves the client IP of a request.
func GetIP(r *http.Request) string {
	return libstring.RemoteIP(ipLookups, 0, r)
}
