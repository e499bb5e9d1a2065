package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/fmitra/iap"
)

// AppRepository is an implementation of iap.AppRepository interface.
type AppRepository struct {
	client *Client
}

// ByID retrieves an App with a matching ID.
func (r *AppRepository) ByID(ctx context.Context, appID int64) (*iap.App, error) {
	app := iap.App{}
	row := r.client.queryRowContext(ctx, r.client.appQ["byID"], appID)
	err := row.Scan(&app.ID, &app.Name, &app.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, iap.ErrNotFound("app does not exist")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to retrieve app")
	}

	return &app, nil
}

// Create persists a new App to storage.
func (r *AppRepository) Create(ctx context.Context, app *iap.App) error {
	row := r.client.queryRowContext(ctx, r.client.appQ["insert"], app.Name)
	return row.Scan(&app.ID, &app.CreatedAt)
}
