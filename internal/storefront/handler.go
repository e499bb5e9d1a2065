// Package storefront provides a mock storefront that validates
// purchase receipts for local development and tests.
//
// A receipt is accepted if its last character is a decimal digit.
// Accepted receipts expire one year after validation.
package storefront

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/gorilla/mux"

	"github.com/fmitra/iap"
)

type validateRequest struct {
	Receipt string `json:"receipt"`
}

type validateResponse struct {
	Status     bool   `json:"status"`
	ExpireDate string `json:"expire_date"`
}

type handler struct {
	logger log.Logger
	now    func() time.Time
}

// NewHandler returns the storefront HTTP handler.
func NewHandler(options ...ConfigOption) http.Handler {
	h := handler{
		logger: log.NewNopLogger(),
		now:    time.Now,
	}

	for _, opt := range options {
		opt(&h)
	}

	router := mux.NewRouter()
	router.HandleFunc("/validate-receipt", h.validateReceipt)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return router
}

// ConfigOption configures the handler.
type ConfigOption func(*handler)

// WithLogger configures the handler with a logger.
func WithLogger(l log.Logger) ConfigOption {
	return func(h *handler) {
		h.logger = l
	}
}

// WithClock configures the time used to compute expiry dates.
func WithClock(now func() time.Time) ConfigOption {
	return func(h *handler) {
		h.now = now
	}
}

func (h *handler) validateReceipt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Receipt == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp := validateResponse{}
	if isAccepted(req.Receipt) {
		resp.Status = true
		resp.ExpireDate = h.now().UTC().AddDate(1, 0, 0).Format(iap.TimeLayout)
	}

	level.Debug(h.logger).Log(
		"message", "receipt validated",
		"accepted", resp.Status,
		"source", "storefront.validateReceipt",
	)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		level.Error(h.logger).Log("message", "failed to write response", "error", err)
	}
}

func isAccepted(receipt string) bool {
	last := receipt[len(receipt)-1]
	return last >= '0' && last <= '9'
}
