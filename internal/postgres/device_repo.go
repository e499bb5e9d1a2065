package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	"github.com/fmitra/iap"
)

// DeviceRepository is an implementation of iap.DeviceRepository interface.
type DeviceRepository struct {
	client *Client
}

// ByIdentity retrieves the Device registered for a uid and app.
func (r *DeviceRepository) ByIdentity(ctx context.Context, uid string, appID int64) (*iap.Device, error) {
	device := iap.Device{}
	row := r.client.queryRowContext(ctx, r.client.deviceQ["byIdentity"], uid, appID)
	err := row.Scan(
		&device.ID, &device.UID, &device.AppID, &device.Language, &device.OS,
		&device.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, iap.ErrNotFound("device does not exist")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to retrieve device")
	}

	return &device, nil
}

// Create persists a new Device to a storage. Registering the same uid
// and app twice returns iap.ErrAlreadyExists.
func (r *DeviceRepository) Create(ctx context.Context, device *iap.Device) error {
	deviceID, err := r.client.ids.New()
	if err != nil {
		return fmt.Errorf("cannot generate unique device ID: %w", err)
	}

	row := r.client.queryRowContext(
		ctx,
		r.client.deviceQ["insert"],
		deviceID,
		device.UID,
		device.AppID,
		device.Language,
		device.OS,
	)
	err = row.Scan(&device.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return iap.ErrAlreadyExists("device already exists")
	}
	if pqCode(err) == foreignKeyViolation {
		return fmt.Errorf("%v: %w", err, iap.ErrNotFound("app does not exist"))
	}
	if err != nil {
		return errors.Wrap(err, "failed to insert device")
	}

	device.ID = deviceID
	return nil
}
