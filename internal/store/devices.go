package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DeviceInList reports whether deviceID has ever been associated with uid.
func (d *DB) DeviceInList(ctx context.Context, uid uint32, deviceID string) (bool, error) {
	var n int
	err := d.Read.QueryRowContext(ctx,
		`SELECT 1 FROM user_devices WHERE uid = ? AND device_id = ?`, uid, deviceID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: device in list: %w", err)
	}
	return true, nil
}

// DeviceAdd records a first sighting of deviceID for uid. Re-adding an
// already-known pair is a no-op; it does not reset the login counter.
func (d *DB) DeviceAdd(ctx context.Context, uid uint32, deviceID string) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_devices(uid, device_id, logins) VALUES(?, ?, 0)
			ON CONFLICT(uid, device_id) DO NOTHING`, uid, deviceID)
		if err != nil {
			return fmt.Errorf("store: device add: %w", err)
		}
		return nil
	})
}

// DeviceIncLogins bumps the login counter for an already-known uid/device
// pair, inserting the pair with a count of one if it's never been seen.
func (d *DB) DeviceIncLogins(ctx context.Context, uid uint32, deviceID string) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_devices(uid, device_id, logins) VALUES(?, ?, 1)
			ON CONFLICT(uid, device_id) DO UPDATE SET logins = logins + 1`, uid, deviceID)
		if err != nil {
			return fmt.Errorf("store: device inc logins: %w", err)
		}
		return nil
	})
}
