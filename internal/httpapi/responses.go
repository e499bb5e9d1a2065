// Package httpapi provides common encoding and middleware for an HTTP API.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/fmitra/iap"
)

// Envelope statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response is the envelope written for every API response.
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Errors  []string    `json:"errors,omitempty"`
}

// Success returns a successful Response.
func Success(message string, data interface{}) *Response {
	return &Response{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
	}
}

// JSONAPIHandler is an HTTP handler for a JSON API.
type JSONAPIHandler func(w http.ResponseWriter, r *http.Request) (interface{}, error)

// ToHandlerFunc adapts a JSONAPIHandler into net/http's HandlerFunc.
func ToHandlerFunc(jsonHandler JSONAPIHandler, successCode int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response, err := jsonHandler(w, r)
		if err != nil {
			ErrorResponse(w, err)
			return
		}

		JSONResponse(w, response, successCode)
	}
}

// Health reports that the API is able to serve requests.
func Health(w http.ResponseWriter, r *http.Request) (interface{}, error) {
	return map[string]string{"status": "ok"}, nil
}

// JSONResponse writes a response body. If a struct is provided
// and we are unable to marshal it, we return an internal error.
func JSONResponse(w http.ResponseWriter, v interface{}, statusCode int) {
	if v == nil {
		response(w, []byte("{}"), statusCode)
		return
	}

	b, ok := v.([]byte)
	if ok {
		response(w, b, statusCode)
		return
	}

	b, err := json.Marshal(v)
	if err != nil {
		internalErrorResponse(w)
		return
	}

	response(w, b, statusCode)
}

// ErrorResponse writes an error response. Domain errors
// are returned to the client. Any other errors, will resolve
// to 500 error response.
func ErrorResponse(w http.ResponseWriter, err error) {
	domainErr := iap.DomainError(err)
	if domainErr == nil {
		internalErrorResponse(w)
		return
	}

	var statusCode int
	switch domainErr.Code() {
	case iap.EInvalidToken, iap.EMalformedToken, iap.EBadSignature:
		statusCode = http.StatusUnauthorized
	case iap.ENotFound:
		statusCode = http.StatusNotFound
	case iap.EThrottle:
		statusCode = http.StatusTooManyRequests
	case iap.EStorefront, iap.EInternal:
		statusCode = http.StatusInternalServerError
	default:
		statusCode = http.StatusBadRequest
	}

	resp := Response{
		Status:  StatusError,
		Message: domainErr.Message(),
	}
	if v, ok := domainErr.(iap.ErrValidation); ok {
		resp.Errors = v.Fields
	}

	content, err := json.Marshal(resp)
	if err != nil {
		internalErrorResponse(w)
		return
	}
	response(w, content, statusCode)
}

func response(w http.ResponseWriter, content []byte, statusCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_, _ = w.Write(content)
}

func internalErrorResponse(w http.ResponseWriter) {
	content := []byte(`{"status":"error","message":"An internal error occurred"}`)
	response(w, content, http.StatusInternalServerError)
}
