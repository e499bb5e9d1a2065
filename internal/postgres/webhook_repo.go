package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/fmitra/iap"
)

// WebhookRepository is an implementation of iap.WebhookRepository interface.
type WebhookRepository struct {
	client *Client
}

// Create persists a new Webhook to storage.
func (r *WebhookRepository) Create(ctx context.Context, webhook *iap.Webhook) error {
	webhookID, err := r.client.ids.New()
	if err != nil {
		return fmt.Errorf("cannot generate unique webhook ID: %w", err)
	}

	events := make([]string, len(webhook.Events))
	for i, e := range webhook.Events {
		events[i] = string(e)
	}

	row := r.client.queryRowContext(
		ctx,
		r.client.webhookQ["insert"],
		webhookID,
		webhook.AppID,
		webhook.URL,
		webhook.Secret,
		pq.Array(events),
	)
	if err = row.Scan(&webhook.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert webhook: %w", err)
	}

	webhook.ID = webhookID
	return nil
}

// ByEvent lists the Webhooks of an app subscribed to a status.
func (r *WebhookRepository) ByEvent(ctx context.Context, appID int64, status iap.Status) ([]*iap.Webhook, error) {
	rows, err := r.client.queryContext(ctx, r.client.webhookQ["byEvent"], appID, string(status))
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	webhooks := make([]*iap.Webhook, 0)
	for rows.Next() {
		var events []string
		webhook := iap.Webhook{}
		err := rows.Scan(
			&webhook.ID, &webhook.AppID, &webhook.URL, &webhook.Secret,
			pq.Array(&events), &webhook.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for _, e := range events {
			webhook.Events = append(webhook.Events, iap.Status(e))
		}
		webhooks = append(webhooks, &webhook)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("completed with error: %w", err)
	}

	return webhooks, nil
}

// RecordDelivery marks an event as delivered to a Webhook. It returns
// false if the delivery was already recorded.
func (r *WebhookRepository) RecordDelivery(ctx context.Context, eventID, webhookID string) (bool, error) {
	res, err := r.client.execContext(ctx, r.client.webhookQ["insertDelivery"], eventID, webhookID)
	if err != nil {
		return false, fmt.Errorf("failed to record delivery: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check affected rows: %w", err)
	}

	return inserted == 1, nil
}

// IsDelivered reports whether an event was already delivered to a Webhook.
func (r *WebhookRepository) IsDelivered(ctx context.Context, eventID, webhookID string) (bool, error) {
	var delivered bool
	row := r.client.queryRowContext(ctx, r.client.webhookQ["isDelivered"], eventID, webhookID)
	if err := row.Scan(&delivered); err != nil {
		return false, fmt.Errorf("failed to check delivery: %w", err)
	}

	return delivered, nil
}
