// Package msgpublisher publishes SubscriptionEvents to a Queue.
package msgpublisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/fmitra/iap"
)

// Message headers set on every published event.
const (
	HeaderEventType = "event_type"
	HeaderAppID     = "app_id"
)

type service struct {
	logger log.Logger
	queue  iap.Queue
	topic  string
	newID  func() (string, error)
	now    func() time.Time
}

// Publish describes the current state of a Subscription as an event
// and writes it to the configured topic.
func (s *service) Publish(ctx context.Context, sub *iap.Subscription) error {
	eventID, err := s.newID()
	if err != nil {
		return fmt.Errorf("failed to generate event id: %w", err)
	}

	event := iap.SubscriptionEvent{
		ID:         eventID,
		UID:        sub.UID,
		AppID:      sub.AppID,
		Status:     sub.Status,
		ExpireAt:   sub.ExpireAt.UTC(),
		OccurredAt: s.now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := iap.Message{
		ID: eventID,
		Headers: map[string]string{
			HeaderEventType: string(sub.Status),
			HeaderAppID:     strconv.FormatInt(sub.AppID, 10),
		},
		Body: body,
	}
	if err = s.queue.Publish(ctx, s.topic, &msg); err != nil {
		return fmt.Errorf("failed to publish to queue: %w", err)
	}

	level.Debug(s.logger).Log(
		"message", "subscription event published",
		"event_id", eventID,
		"uid", sub.UID,
		"app_id", sub.AppID,
		"status", sub.Status,
	)
	return nil
}
