package test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

// ServerResp is a path and response for an external test server.
type ServerResp struct {
	Path       string
	Resp       string
	StatusCode int
}

// Server creates an external test server with mocked responses.
func Server(resps ...ServerResp) *httptest.Server {
	router := mux.NewRouter()
	for i := range resps {
		sr := resps[i]
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")

			undefinedStatus := 0
			if sr.StatusCode != undefinedStatus {
				w.WriteHeader(sr.StatusCode)
			}

			fmt.Fprintln(w, sr.Resp)
		})

		router.HandleFunc(sr.Path, handler)
	}

	s := httptest.NewServer(router)
	return s
}

// SlowServer creates an external test server that waits before
// responding to any request.
func SlowServer(delay time.Duration) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
}

// SetAuthHeader sets a client token on a request.
func SetAuthHeader(r *http.Request, token string) {
	r.Header.Set("Authorization", token)
}

// Envelope is the JSON body of every API response.
type Envelope struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
	Errors  []string               `json:"errors"`
}

// DecodeEnvelope decodes an API response body.
func DecodeEnvelope(body *bytes.Buffer) (*Envelope, error) {
	var e Envelope
	if err := json.NewDecoder(body).Decode(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ValidateErrMessage checks the message of an error response.
func ValidateErrMessage(expectedMsg string, body *bytes.Buffer) error {
	if expectedMsg == "" {
		return nil
	}

	e, err := DecodeEnvelope(body)
	if err != nil {
		return err
	}

	if e.Status != "error" {
		return errors.Errorf("incorrect response status, want 'error' got '%s'", e.Status)
	}

	if e.Message != expectedMsg {
		return errors.Errorf("incorrect error response, want '%s' got '%s'",
			expectedMsg, e.Message)
	}

	return nil
}
