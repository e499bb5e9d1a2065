// Package metrics records Prometheus metrics for purchases, renewals and
// webhook deliveries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fmitra/iap"
)

// Receipt validation and webhook delivery outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeSkipped  = "skipped"
	OutcomeSuccess  = "success"
)

// Transition sources.
const (
	SourcePurchase = "purchase"
	SourceRenewal  = "renewal"
)

// Recorder records domain metrics.
type Recorder interface {
	// Transition counts a subscription written with a status.
	Transition(status iap.Status, source string)
	// ReceiptValidated counts a storefront validation outcome.
	ReceiptValidated(outcome string)
	// ObserveStorefront records the latency of a storefront request.
	ObserveStorefront(d time.Duration)
	// WebhookDelivered counts a webhook delivery outcome.
	WebhookDelivered(outcome string)
}

type recorder struct {
	transitions *prometheus.CounterVec
	receipts    *prometheus.CounterVec
	storefront  prometheus.Histogram
	webhooks    *prometheus.CounterVec
}

// New returns a Recorder registering its collectors with registry.
func New(registry prometheus.Registerer) Recorder {
	factory := promauto.With(registry)

	return &recorder{
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iap_subscription_transitions_total",
				Help: "The total number of subscription writes by resulting status",
			},
			[]string{"status", "source"},
		),
		receipts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iap_receipt_validations_total",
				Help: "The total number of storefront receipt validations by outcome",
			},
			[]string{"outcome"},
		),
		storefront: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "iap_storefront_request_seconds",
				Help:    "Storefront request latency",
				Buckets: prometheus.DefBuckets,
			},
		),
		webhooks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iap_webhook_deliveries_total",
				Help: "The total number of webhook deliveries by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (r *recorder) Transition(status iap.Status, source string) {
	r.transitions.WithLabelValues(string(status), source).Inc()
}

func (r *recorder) ReceiptValidated(outcome string) {
	r.receipts.WithLabelValues(outcome).Inc()
}

func (r *recorder) ObserveStorefront(d time.Duration) {
	r.storefront.Observe(d.Seconds())
}

func (r *recorder) WebhookDelivered(outcome string) {
	r.webhooks.WithLabelValues(outcome).Inc()
}

type nop struct{}

// NewNop returns a Recorder that discards all metrics.
func NewNop() Recorder {
	return nop{}
}

func (nop) Transition(iap.Status, string)   {}
func (nop) ReceiptValidated(string)         {}
func (nop) ObserveStorefront(time.Duration) {}
func (nop) WebhookDelivered(string)         {}
