package receipt

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/metrics"
)

// defaultTimeout bounds a single storefront request.
const defaultTimeout = time.Second * 10

// NewClient returns a storefront backed iap.ReceiptValidator.
func NewClient(options ...ConfigOption) iap.ReceiptValidator {
	c := client{
		logger:     log.NewNopLogger(),
		metrics:    metrics.NewNop(),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}

	for _, opt := range options {
		opt(&c)
	}

	return &c
}

// ConfigOption configures the client.
type ConfigOption func(*client)

// WithLogger configures the client with a logger.
func WithLogger(l log.Logger) ConfigOption {
	return func(c *client) {
		c.logger = l
	}
}

// WithBaseURL sets the storefront address, e.g. http://storefront:8081.
func WithBaseURL(baseURL string) ConfigOption {
	return func(c *client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithTimeout bounds each storefront request. The default value is 10 seconds.
func WithTimeout(timeout time.Duration) ConfigOption {
	return func(c *client) {
		c.httpClient.Timeout = timeout
	}
}

// WithMetrics configures the client with a metrics Recorder.
func WithMetrics(m metrics.Recorder) ConfigOption {
	return func(c *client) {
		c.metrics = m
	}
}
