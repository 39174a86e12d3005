package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// BanLevel returns uid's client-control ban level, defaulting to 0 when
// no row exists.
func (d *DB) BanLevel(ctx context.Context, uid uint32) (int, error) {
	var level int
	err := d.Read.QueryRowContext(ctx, `SELECT level FROM banlevel WHERE uid = ?`, uid).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: ban level: %w", err)
	}
	return level, nil
}

// SetBanLevel upserts uid's client-control ban level.
func (d *DB) SetBanLevel(ctx context.Context, uid uint32, level int) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO banlevel (uid, level) VALUES (?, ?)
			ON CONFLICT(uid) DO UPDATE SET level = excluded.level`, uid, level)
		return err
	})
}
