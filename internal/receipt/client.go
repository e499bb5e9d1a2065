// Package receipt validates purchase receipts against a storefront.
package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/metrics"
)

// unavailableMsg is returned to clients when the storefront cannot be used.
const unavailableMsg = "Receipt validation is currently unavailable"

// validateRequest is the storefront request body.
type validateRequest struct {
	Receipt string `json:"receipt"`
}

// validateResponse is the storefront response body.
type validateResponse struct {
	Status     bool   `json:"status"`
	ExpireDate string `json:"expire_date"`
}

// client is a consumer of the storefront API. No retries are made; a
// failed validation aborts the calling operation.
type client struct {
	baseURL    string
	httpClient *http.Client
	logger     log.Logger
	metrics    metrics.Recorder
}

// Validate submits a receipt to the storefront.
func (c *client) Validate(ctx context.Context, receipt string) (*iap.ReceiptResult, error) {
	url := fmt.Sprintf("%s/validate-receipt", c.baseURL)

	body, err := json.Marshal(validateRequest{Receipt: receipt})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	resp, err := c.request(ctx, url, body)
	c.metrics.ObserveStorefront(time.Since(start))
	if err != nil {
		c.metrics.ReceiptValidated(metrics.OutcomeError)
		return nil, fmt.Errorf("%v: %w", err, iap.ErrStorefront(unavailableMsg))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.ReceiptValidated(metrics.OutcomeError)
		// Body is read for the log only.
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		level.Error(c.logger).Log(
			"message", "storefront rejected request",
			"status_code", resp.StatusCode,
			"body", string(b),
			"source", "receipt.Validate",
		)
		return nil, fmt.Errorf("expected status %v, got %v: %w",
			http.StatusOK, resp.StatusCode, iap.ErrStorefront(unavailableMsg))
	}

	var vr validateResponse
	if err = json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		c.metrics.ReceiptValidated(metrics.OutcomeError)
		return nil, fmt.Errorf("invalid storefront response: %v: %w", err, iap.ErrStorefront(unavailableMsg))
	}

	if !vr.Status {
		c.metrics.ReceiptValidated(metrics.OutcomeRejected)
		return &iap.ReceiptResult{Accepted: false}, nil
	}

	expireAt, err := parseExpiry(vr.ExpireDate)
	if err != nil {
		c.metrics.ReceiptValidated(metrics.OutcomeError)
		return nil, fmt.Errorf("invalid expire_date %q: %v: %w",
			vr.ExpireDate, err, iap.ErrStorefront(unavailableMsg))
	}

	c.metrics.ReceiptValidated(metrics.OutcomeAccepted)
	return &iap.ReceiptResult{Accepted: true, ExpireAt: expireAt}, nil
}

func (c *client) request(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cannot create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}

	return resp, nil
}

// parseExpiry parses storefront timestamps as UTC. RFC 3339 is
// accepted as well.
func parseExpiry(s string) (time.Time, error) {
	t, err := time.Parse(iap.TimeLayout, s)
	if err == nil {
		return t, nil
	}

	t, rfcErr := time.Parse(time.RFC3339, s)
	if rfcErr != nil {
		return time.Time{}, err
	}

	return t.UTC(), nil
}
