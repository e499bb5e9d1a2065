package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/didip/tollbooth/v6"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/test"
)

func TestHTTPAPI_AuthMiddleware(t *testing.T) {
	tt := []struct {
		name            string
		middleware      func(JSONAPIHandler, iap.TokenService) JSONAPIHandler
		tokenValidateFn func() (*iap.Identity, error)
		hasTokenHeader  bool
		errCode         iap.ErrCode
		errMessage      string
	}{
		{
			name:           "Missing token failure",
			middleware:     AuthMiddleware,
			hasTokenHeader: false,
			errCode:        iap.EInvalidToken,
			errMessage:     "Missing client_token",
		},
		{
			name:           "Missing identity failure",
			middleware:     IdentityMiddleware,
			hasTokenHeader: false,
			errCode:        iap.EBadRequest,
			errMessage:     "Missing uid or app_id",
		},
		{
			name:           "Token validation failure",
			middleware:     AuthMiddleware,
			hasTokenHeader: true,
			errCode:        iap.EBadSignature,
			errMessage:     "Invalid client_token",
			tokenValidateFn: func() (*iap.Identity, error) {
				return nil, iap.ErrBadSignature("Invalid client_token")
			},
		},
		{
			name:           "Identity validation failure",
			middleware:     IdentityMiddleware,
			hasTokenHeader: true,
			errCode:        iap.EMalformedToken,
			errMessage:     "Invalid client_token",
			tokenValidateFn: func() (*iap.Identity, error) {
				return nil, iap.ErrMalformedToken("Invalid client_token")
			},
		},
		{
			name:           "Successful request",
			middleware:     AuthMiddleware,
			hasTokenHeader: true,
			tokenValidateFn: func() (*iap.Identity, error) {
				return &iap.Identity{UID: "d1", AppID: 1}, nil
			},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			var seen *iap.Identity
			handler := func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
				seen = GetIdentity(r)
				return []byte(`{"foo":"bar"}`), nil
			}

			tokenSvc := test.TokenService{
				ValidateFn: tc.tokenValidateFn,
			}

			w := httptest.NewRecorder()
			r, err := http.NewRequest("GET", "/", bytes.NewBuffer([]byte("{}")))
			if err != nil {
				t.Fatal("failed to create mock request:", err)
			}

			if tc.hasTokenHeader {
				test.SetAuthHeader(r, "client-token")
			}

			h := tc.middleware(handler, &tokenSvc)
			v, err := h(w, r)

			if code := iap.ErrorCode(err); code != tc.errCode {
				t.Errorf("incorrect error code, want '%s' got '%s'", tc.errCode, code)
			}

			domainErr := iap.DomainError(err)
			if domainErr != nil && domainErr.Message() != tc.errMessage {
				t.Errorf("error message does not match, want '%s' got '%s'",
					tc.errMessage, domainErr.Message())
			}

			if tc.errCode != "" {
				if seen != nil {
					t.Error("handler should not be called on failure")
				}
				return
			}

			b, ok := v.([]byte)
			if !ok {
				t.Fatal("unexpected response type")
			}
			if !bytes.Equal(b, []byte(`{"foo":"bar"}`)) {
				t.Errorf("response does not match, want '%s' got '%s'",
					`{"foo":"bar"}`, string(b))
			}
			if seen == nil || seen.UID != "d1" || seen.AppID != 1 {
				t.Errorf("incorrect identity on context: %+v", seen)
			}
		})
	}
}

func TestHTTPAPI_ErrorLoggingMiddleware(t *testing.T) {
	tt := []struct {
		name     string
		err      error
		logCount int
	}{
		{
			name:     "Logs handler error",
			err:      fmt.Errorf("whoops"),
			logCount: 1,
		},
		{
			name:     "Skips successful request",
			err:      nil,
			logCount: 0,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			logger := &test.Logger{}
			handler := func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
				return nil, tc.err
			}

			r := httptest.NewRequest("POST", "/purchase", nil)
			h := ErrorLoggingMiddleware(handler, "PurchaseAPI.Purchase", logger)
			_, err := h(httptest.NewRecorder(), r)
			if err != tc.err {
				t.Errorf("error not propagated, want %v got %v", tc.err, err)
			}
			if logger.Count() != tc.logCount {
				t.Errorf("incorrect log count, want %v got %v", tc.logCount, logger.Count())
			}
		})
	}
}

func TestHTTPAPI_ThrottleMiddleware(t *testing.T) {
	calls := 0
	handler := func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
		calls++
		return nil, nil
	}

	h := ThrottleMiddleware(handler, tollbooth.NewLimiter(ThrottleEveryOneSec, nil))

	newRequest := func(ip string) *http.Request {
		r := httptest.NewRequest("POST", "/devices/register", nil)
		r.RemoteAddr = ip + ":41234"
		return r
	}

	if _, err := h(httptest.NewRecorder(), newRequest("10.0.0.1")); err != nil {
		t.Fatal("first request should not be throttled:", err)
	}

	_, err := h(httptest.NewRecorder(), newRequest("10.0.0.1"))
	if code := iap.ErrorCode(err); code != iap.EThrottle {
		t.Errorf("incorrect error code, want '%s' got '%s'", iap.EThrottle, code)
	}

	if _, err := h(httptest.NewRecorder(), newRequest("10.0.0.2")); err != nil {
		t.Error("request from another IP should not be throttled:", err)
	}

	if calls != 2 {
		t.Errorf("incorrect number of handler calls, want 2 got %v", calls)
	}
}

func TestHTTPAPI_RateLimitMiddleware(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) (interface{}, error) {
		return nil, nil
	}

	lmt := &MockLimiter{
		RateLimitFn: func() error {
			return iap.ErrThrottle("Too many requests, try again later")
		},
	}
	h := RateLimitMiddleware(handler, lmt)
	_, err := h(httptest.NewRecorder(), httptest.NewRequest("POST", "/purchase", nil))
	if code := iap.ErrorCode(err); code != iap.EThrottle {
		t.Errorf("incorrect error code, want '%s' got '%s'", iap.EThrottle, code)
	}
	if lmt.Calls != 1 {
		t.Errorf("incorrect limiter calls, want 1 got %v", lmt.Calls)
	}
}

func TestHTTPAPI_GetIP(t *testing.T) {
	tt := []struct {
		name       string
		remoteAddr string
		header     string
		ip         string
	}{
		{
			name:       "Remote address",
			remoteAddr: "10.0.0.1:41234",
			ip:         "10.0.0.1",
		},
		{
			name:       "Forwarded address",
			remoteAddr: "10.0.0.1:41234",
			header:     "203.0.113.7",
			ip:         "203.0.113.7",
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tc.remoteAddr
			if tc.header != "" {
				r.Header.Set("X-Forwarded-For", tc.header)
			}

			if ip := GetIP(r); ip != tc.ip {
				t.Errorf("incorrect IP, want %s got %s", tc.ip, ip)
			}
		})
	}
}
