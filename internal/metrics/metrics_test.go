package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fmitra/iap"
)

func TestMetrics_Recorder(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.Transition(iap.StatusStarted, SourcePurchase)
	m.Transition(iap.StatusStarted, SourcePurchase)
	m.Transition(iap.StatusCanceled, SourceRenewal)
	m.ReceiptValidated(OutcomeRejected)
	m.WebhookDelivered(OutcomeSuccess)
	m.ObserveStorefront(time.Millisecond * 20)

	r := m.(*recorder)
	tt := []struct {
		name      string
		collector prometheus.Collector
		expected  float64
	}{
		{
			name:      "Purchase started",
			collector: r.transitions.WithLabelValues("started", SourcePurchase),
			expected:  2,
		},
		{
			name:      "Renewal canceled",
			collector: r.transitions.WithLabelValues("canceled", SourceRenewal),
			expected:  1,
		},
		{
			name:      "Rejected receipts",
			collector: r.receipts.WithLabelValues(OutcomeRejected),
			expected:  1,
		},
		{
			name:      "Webhook deliveries",
			collector: r.webhooks.WithLabelValues(OutcomeSuccess),
			expected:  1,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			value := testutil.ToFloat64(tc.collector)
			if value != tc.expected {
				t.Errorf("incorrect counter value, want %v got %v", tc.expected, value)
			}
		})
	}

	if count := testutil.CollectAndCount(r.storefront); count != 1 {
		t.Errorf("expected 1 histogram, got %v", count)
	}
}

func TestMetrics_Nop(t *testing.T) {
	m := NewNop()
	m.Transition(iap.StatusRenewed, SourceRenewal)
	m.ReceiptValidated(OutcomeAccepted)
	m.ObserveStorefront(time.Second)
	m.WebhookDelivered(OutcomeError)
}
