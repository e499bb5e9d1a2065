package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/fmitra/iap"
)

// SubscriptionRepository is an implementation of iap.SubscriptionRepository interface.
type SubscriptionRepository struct {
	client *Client
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row scanner) (*iap.Subscription, error) {
	sub := iap.Subscription{}
	err := row.Scan(
		&sub.ID, &sub.UID, &sub.AppID, &sub.Receipt, &sub.Status, &sub.ExpireAt,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.ExpireAt = sub.ExpireAt.UTC()
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return &sub, nil
}

// ByIdentity retrieves the Subscription of a uid for an app.
func (r *SubscriptionRepository) ByIdentity(ctx context.Context, uid string, appID int64) (*iap.Subscription, error) {
	row := r.client.queryRowContext(ctx, r.client.subscriptionQ["byIdentity"], uid, appID)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, iap.ErrNotFound("subscription does not exist")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to retrieve subscription")
	}

	return sub, nil
}

// GetForUpdate locks the (uid, appID) key until the current transaction
// ends and returns the Subscription, or nil if none exists yet.
func (r *SubscriptionRepository) GetForUpdate(ctx context.Context, uid string, appID int64) (*iap.Subscription, error) {
	if r.client.tx == nil {
		return nil, fmt.Errorf("cannot lock subscription outside of transaction")
	}

	_, err := r.client.execContext(ctx, r.client.subscriptionQ["lock"], uid, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire subscription lock: %w", err)
	}

	row := r.client.queryRowContext(ctx, r.client.subscriptionQ["forUpdate"], uid, appID)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve record for update: %w", err)
	}

	return sub, nil
}

// Create persists a new Subscription to storage.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *iap.Subscription) error {
	subID, err := r.client.ids.New()
	if err != nil {
		return fmt.Errorf("cannot generate unique subscription ID: %w", err)
	}

	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = now
	}

	row := r.client.queryRowContext(
		ctx,
		r.client.subscriptionQ["insert"],
		subID,
		sub.UID,
		sub.AppID,
		sub.Receipt,
		sub.Status,
		sub.ExpireAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	err = row.Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if pqCode(err) == uniqueViolation {
		return fmt.Errorf("%v: %w", err, iap.ErrAlreadyExists("subscription already exists"))
	}
	if err != nil {
		return errors.Wrap(err, "failed to insert subscription")
	}

	sub.ID = subID
	return nil
}

// Update updates a Subscription in storage.
func (r *SubscriptionRepository) Update(ctx context.Context, sub *iap.Subscription) error {
	res, err := r.client.execContext(
		ctx,
		r.client.subscriptionQ["update"],
		sub.UID,
		sub.AppID,
		sub.Receipt,
		sub.Status,
		sub.ExpireAt,
		sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to execute update: %w", err)
	}

	updatedRows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if updatedRows != 1 {
		return fmt.Errorf("wrong number of subscriptions updated: %d", updatedRows)
	}
	return nil
}

// Lapsed lists non canceled Subscriptions that expired before now and
// were last written no later than updatedBefore, oldest expiry first.
func (r *SubscriptionRepository) Lapsed(ctx context.Context, now, updatedBefore time.Time, limit int) ([]*iap.Subscription, error) {
	rows, err := r.client.queryContext(ctx, r.client.subscriptionQ["lapsed"], now, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	subs := make([]*iap.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("completed with error: %w", err)
	}

	return subs, nil
}
