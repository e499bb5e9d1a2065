// Package postgres provides repositories backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-kit/kit/log"
	// pg driver registers itself as being available to the database/sql package.
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/fmitra/iap"
)

// Postgres error codes.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// idGenerator creates unique entity IDs.
type idGenerator interface {
	New() (string, error)
}

// Client represents a client for PostgreSQL.
type Client struct {
	db     *sql.DB
	tx     *sql.Tx
	ids    idGenerator
	logger log.Logger

	appRepository *AppRepository
	appQ          map[string]string

	deviceRepository *DeviceRepository
	deviceQ          map[string]string

	subscriptionRepository *SubscriptionRepository
	subscriptionQ          map[string]string

	webhookRepository *WebhookRepository
	webhookQ          map[string]string
}

func (c *Client) createQueries() {
	c.appQ = map[string]string{
		"byID": `
			SELECT id, name, created_at
			FROM app
			WHERE id = $1;
		`,
		"insert": `
			INSERT INTO app (name)
			VALUES ($1)
			RETURNING id, created_at;
		`,
	}

	c.deviceQ = map[string]string{
		"byIdentity": `
			SELECT id, uid, app_id, language, os, created_at
			FROM device
			WHERE uid = $1
			AND app_id = $2;
		`,
		"insert": `
			INSERT INTO device (
				id, uid, app_id, language, os
			)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (uid, app_id) DO NOTHING
			RETURNING created_at;
		`,
	}

	c.subscriptionQ = map[string]string{
		// Transaction scoped lock on the (uid, app_id) key. It is taken
		// before the row lock so that callers racing to create the first
		// row are serialized as well.
		"lock": `
			SELECT pg_advisory_xact_lock(hashtext($1), $2::integer);
		`,
		"forUpdate": `
			SELECT id, uid, app_id, receipt, status, expire_at, created_at, updated_at
			FROM subscription
			WHERE uid = $1
			AND app_id = $2
			FOR UPDATE;
		`,
		"byIdentity": `
			SELECT id, uid, app_id, receipt, status, expire_at, created_at, updated_at
			FROM subscription
			WHERE uid = $1
			AND app_id = $2;
		`,
		"lapsed": `
			SELECT id, uid, app_id, receipt, status, expire_at, created_at, updated_at
			FROM subscription
			WHERE status <> 'canceled'
			AND expire_at < $1
			AND updated_at <= $2
			ORDER BY expire_at
			LIMIT $3;
		`,
		"insert": `
			INSERT INTO subscription (
				id, uid, app_id, receipt, status, expire_at, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at, updated_at;
		`,
		"update": `
			UPDATE subscription
			SET receipt=$3, status=$4, expire_at=$5, updated_at=$6
			WHERE uid = $1
			AND app_id = $2;
		`,
	}

	c.webhookQ = map[string]string{
		"byEvent": `
			SELECT id, app_id, url, secret, events, created_at
			FROM webhook
			WHERE app_id = $1
			AND $2 = ANY(events)
			ORDER BY id;
		`,
		"insert": `
			INSERT INTO webhook (
				id, app_id, url, secret, events
			)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at;
		`,
		"insertDelivery": `
			INSERT INTO webhook_delivery (event_id, webhook_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING;
		`,
		"isDelivered": `
			SELECT EXISTS (
				SELECT 1 FROM webhook_delivery
				WHERE event_id = $1
				AND webhook_id = $2
			);
		`,
	}
}

// bindRepositories points every repository at c so they share its
// connection and transaction.
func (c *Client) bindRepositories() {
	c.appRepository = &AppRepository{client: c}
	c.deviceRepository = &DeviceRepository{client: c}
	c.subscriptionRepository = &SubscriptionRepository{client: c}
	c.webhookRepository = &WebhookRepository{client: c}
}

// NewWithTransaction returns a new client with a transaction. All
// repository operations using the new client will default to the transaction.
func (c *Client) NewWithTransaction(ctx context.Context) (iap.RepositoryManager, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	newClient := *c
	newClient.tx = tx
	newClient.bindRepositories()
	return &newClient, nil
}

// WithAtomic performs an operation within a transaction. If the operation
// is successful it commits it, otherwise the operation will be rolledback.
// Locks taken by the operation are released when it returns.
func (c *Client) WithAtomic(operation func() (interface{}, error)) (interface{}, error) {
	if c.tx == nil {
		return nil, fmt.Errorf("cannot complete operation outside of transaction")
	}

	defer func() {
		c.tx = nil
	}()

	entity, err := operation()

	if err != nil {
		if dbErr := c.tx.Rollback(); dbErr != nil {
			err = fmt.Errorf("%v: %w", dbErr, err)
		}
		return nil, err
	}

	err = c.tx.Commit()
	if err != nil {
		return entity, fmt.Errorf("commit failed: %w", err)
	}

	return entity, nil
}

// App returns an AppRepository.
func (c *Client) App() iap.AppRepository {
	return c.appRepository
}

// Device returns a DeviceRepository.
func (c *Client) Device() iap.DeviceRepository {
	return c.deviceRepository
}

// Subscription returns a SubscriptionRepository.
func (c *Client) Subscription() iap.SubscriptionRepository {
	return c.subscriptionRepository
}

// Webhook returns a WebhookRepository.
func (c *Client) Webhook() iap.WebhookRepository {
	return c.webhookRepository
}

func (c *Client) queryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	if c.tx != nil {
		return c.tx.QueryRowContext(ctx, query, args...)
	}

	return c.db.QueryRowContext(ctx, query, args...)
}

func (c *Client) queryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if c.tx != nil {
		return c.tx.QueryContext(ctx, query, args...)
	}

	return c.db.QueryContext(ctx, query, args...)
}

func (c *Client) execContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if c.tx != nil {
		return c.tx.ExecContext(ctx, query, args...)
	}

	return c.db.ExecContext(ctx, query, args...)
}

// pqCode returns the Postgres error code of err, if any.
func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
