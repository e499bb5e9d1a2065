// Package msgconsumer delivers subscription events to webhooks.
package msgconsumer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/crypto"
	"github.com/fmitra/iap/internal/metrics"
	"github.com/fmitra/iap/internal/queue"
)

// Webhook request headers.
const (
	HeaderEventID   = "X-Event-ID"
	HeaderSignature = "X-Signature"
)

// Consumer reads a message stream from a Queue.
type Consumer interface {
	Run(ctx context.Context) error
}

type service struct {
	logger       log.Logger
	metrics      metrics.Recorder
	totalWorkers int
	topic        string
	queue        iap.Queue
	repoMngr     iap.RepositoryManager
	httpClient   *http.Client
}

// Run consumes events until ctx is cancelled or the queue fails.
func (s *service) Run(ctx context.Context) error {
	return s.queue.Consume(ctx, s.topic, s.processMessage)
}

// processMessage delivers an event to every webhook subscribed to it.
// Any failed delivery fails the message so it is retried; deliveries
// already recorded are skipped on retry.
func (s *service) processMessage(ctx context.Context, msg *iap.Message) error {
	var event iap.SubscriptionEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return queue.Drop(fmt.Errorf("invalid event %s: %w", msg.ID, err))
	}
	if event.ID == "" {
		event.ID = msg.ID
	}

	webhooks, err := s.repoMngr.Webhook().ByEvent(ctx, event.AppID, event.Status)
	if err != nil {
		return fmt.Errorf("failed to list webhooks: %w", err)
	}

	webhookc := make(chan *iap.Webhook)
	var mu sync.Mutex
	var failed []error
	var wg sync.WaitGroup

	for i := 0; i < s.totalWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for wh := range webhookc {
				if err := s.notify(ctx, wh, event.ID, msg.Body); err != nil {
					mu.Lock()
					failed = append(failed, err)
					mu.Unlock()
				}
			}
		}()
	}

	for _, wh := range webhooks {
		webhookc <- wh
	}
	close(webhookc)
	wg.Wait()

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d webhook deliveries failed: %w", len(failed), len(webhooks), failed[0])
	}
	return nil
}

// notify delivers an event to a single webhook once.
func (s *service) notify(ctx context.Context, wh *iap.Webhook, eventID string, body []byte) error {
	delivered, err := s.repoMngr.Webhook().IsDelivered(ctx, eventID, wh.ID)
	if err != nil {
		return fmt.Errorf("failed to check delivery: %w", err)
	}
	if delivered {
		s.metrics.WebhookDelivered(metrics.OutcomeSkipped)
		return nil
	}

	if err = s.post(ctx, wh, eventID, body); err != nil {
		s.metrics.WebhookDelivered(metrics.OutcomeError)
		level.Warn(s.logger).Log(
			"message", "webhook delivery failed",
			"event_id", eventID,
			"webhook_id", wh.ID,
			"url", wh.URL,
			"error", err,
		)
		return err
	}

	if _, err = s.repoMngr.Webhook().RecordDelivery(ctx, eventID, wh.ID); err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}

	s.metrics.WebhookDelivered(metrics.OutcomeSuccess)
	level.Info(s.logger).Log(
		"message", "webhook delivered",
		"event_id", eventID,
		"webhook_id", wh.ID,
	)
	return nil
}

func (s *service) post(ctx context.Context, wh *iap.Webhook, eventID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("cannot create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventID, eventID)
	req.Header.Set(HeaderSignature, crypto.Sign([]byte(wh.Secret), body))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook responded with status %v", resp.StatusCode)
	}
	return nil
}
