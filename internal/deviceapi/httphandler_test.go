package deviceapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/test"
)

func TestDeviceAPI_Register(t *testing.T) {
	validBody := `{"uid":"d1","app_id":1,"language":"en","os":1}`

	tt := []struct {
		name              string
		statusCode        int
		reqBody           string
		errMessage        string
		message           string
		loggerCount       int
		deviceCreateCalls int
		tokenCalls        int
		appFn             func() (*iap.App, error)
		deviceFn          func() (*iap.Device, error)
		deviceCreateFn    func() error
		tokenFn           func() (string, error)
	}{
		{
			name:        "Validation failure",
			statusCode:  http.StatusBadRequest,
			reqBody:     `{"uid":"","app_id":1,"language":"en","os":1}`,
			errMessage:  "Validation failed.",
			loggerCount: 1,
		},
		{
			name:        "Unknown app",
			statusCode:  http.StatusNotFound,
			reqBody:     validBody,
			errMessage:  "Invalid app_id. The app does not exist.",
			loggerCount: 1,
			appFn: func() (*iap.App, error) {
				return nil, iap.ErrNotFound("app does not exist")
			},
		},
		{
			name:        "App query failure",
			statusCode:  http.StatusInternalServerError,
			reqBody:     validBody,
			errMessage:  "An internal error occurred",
			loggerCount: 1,
			appFn: func() (*iap.App, error) {
				return nil, errors.New("database connection error")
			},
		},
		{
			name:              "Device create failure",
			statusCode:        http.StatusInternalServerError,
			reqBody:           validBody,
			errMessage:        "An internal error occurred",
			loggerCount:       1,
			deviceCreateCalls: 1,
			deviceCreateFn: func() error {
				return errors.New("database connection error")
			},
		},
		{
			name:              "Token failure",
			statusCode:        http.StatusInternalServerError,
			reqBody:           validBody,
			errMessage:        "An internal error occurred",
			loggerCount:       1,
			deviceCreateCalls: 1,
			tokenCalls:        1,
			tokenFn: func() (string, error) {
				return "", errors.New("token secret is not configured")
			},
		},
		{
			name:              "Registers new device",
			statusCode:        http.StatusOK,
			reqBody:           validBody,
			message:           "Device registered successfully",
			deviceCreateCalls: 1,
			tokenCalls:        1,
		},
		{
			name:       "Registers existing device",
			statusCode: http.StatusOK,
			reqBody:    validBody,
			message:    "Register OK",
			tokenCalls: 1,
			deviceFn: func() (*iap.Device, error) {
				return &iap.Device{UID: "d1", AppID: 1}, nil
			},
		},
		{
			name:              "Registers concurrently created device",
			statusCode:        http.StatusOK,
			reqBody:           validBody,
			message:           "Register OK",
			deviceCreateCalls: 1,
			tokenCalls:        1,
			deviceCreateFn: func() error {
				return iap.ErrAlreadyExists("device already exists")
			},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			router := mux.NewRouter()
			logger := &test.Logger{}
			deviceRepo := &test.DeviceRepository{
				ByIdentityFn: tc.deviceFn,
				CreateFn:     tc.deviceCreateFn,
			}
			repoMngr := &test.RepositoryManager{
				AppFn: func() iap.AppRepository {
					return &test.AppRepository{ByIDFn: tc.appFn}
				},
				DeviceFn: func() iap.DeviceRepository {
					return deviceRepo
				},
			}
			tokenFn := tc.tokenFn
			if tokenFn == nil {
				tokenFn = func() (string, error) {
					return "client-token", nil
				}
			}
			tokenSvc := &test.TokenService{IssueFn: tokenFn}

			svc := NewService(
				WithLogger(&test.Logger{}),
				WithRepoManager(repoMngr),
				WithTokenService(tokenSvc),
			)
			SetupHTTPHandler(svc, router, logger, 100)

			req, err := http.NewRequest("POST", "/devices/register", bytes.NewBufferString(tc.reqBody))
			if err != nil {
				t.Fatal("failed to create request:", err)
			}
			req.RemoteAddr = "10.0.0.1:41234"

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.statusCode {
				t.Errorf("incorrect status code, want %v got %v", tc.statusCode, rr.Code)
			}
			if logger.Count() != tc.loggerCount {
				t.Errorf("incorrect logger count, want %v got %v", tc.loggerCount, logger.Count())
			}
			if deviceRepo.Calls.Create != tc.deviceCreateCalls {
				t.Errorf("incorrect device create calls, want %v got %v",
					tc.deviceCreateCalls, deviceRepo.Calls.Create)
			}
			if tokenSvc.Calls.Issue != tc.tokenCalls {
				t.Errorf("incorrect token calls, want %v got %v", tc.tokenCalls, tokenSvc.Calls.Issue)
			}

			if tc.errMessage != "" {
				if err = test.ValidateErrMessage(tc.errMessage, rr.Body); err != nil {
					t.Error(err)
				}
				return
			}

			envelope, err := test.DecodeEnvelope(rr.Body)
			if err != nil {
				t.Fatal("failed to decode response:", err)
			}
			if envelope.Status != "success" {
				t.Errorf("incorrect status, want success got %s", envelope.Status)
			}
			if envelope.Message != tc.message {
				t.Errorf("incorrect message, want '%s' got '%s'", tc.message, envelope.Message)
			}
			if envelope.Data["client_token"] != "client-token" {
				t.Errorf("incorrect client_token, want client-token got %v", envelope.Data["client_token"])
			}
		})
	}
}

func TestDeviceAPI_RegisterThrottled(t *testing.T) {
	router := mux.NewRouter()
	repoMngr := &test.RepositoryManager{}
	tokenSvc := &test.TokenService{
		IssueFn: func() (string, error) {
			return "client-token", nil
		},
	}
	svc := NewService(
		WithRepoManager(repoMngr),
		WithTokenService(tokenSvc),
	)
	SetupHTTPHandler(svc, router, &test.Logger{}, 1)

	codes := []int{}
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/devices/register",
			bytes.NewBufferString(`{"uid":"d1","app_id":1,"language":"en","os":2}`))
		req.RemoteAddr = "10.0.0.1:41234"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}

	if codes[0] != http.StatusOK {
		t.Errorf("incorrect status code, want %v got %v", http.StatusOK, codes[0])
	}
	if codes[1] != http.StatusTooManyRequests {
		t.Errorf("incorrect status code, want %v got %v", http.StatusTooManyRequests, codes[1])
	}
}
