package store

import (
	"context"
	"database/sql"
	"fmt"
)

// OfflineMessage is one spooled IM awaiting delivery at the recipient's
// next login.
type OfflineMessage struct {
	FromUID uint32
	Tstamp  string
	Message string
}

// SpoolOfflineMessage records an IM for a recipient who wasn't online to
// receive it directly.
func (d *DB) SpoolOfflineMessage(ctx context.Context, fromUID, toUID uint32, tstamp, msg string) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO offline_messages (from_uid, to_uid, tstamp, msg) VALUES (?, ?, ?, ?)`,
			fromUID, toUID, tstamp, msg)
		return err
	})
}

// DrainOfflineMessages fetches and deletes every message spooled for uid,
// matching the general-flow entry sequence's "deliver then delete" rule.
func (d *DB) DrainOfflineMessages(ctx context.Context, uid uint32) ([]OfflineMessage, error) {
	var out []OfflineMessage
	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT from_uid, tstamp, msg FROM offline_messages WHERE to_uid = ? ORDER BY tstamp`, uid)
		if err != nil {
			return fmt.Errorf("store: drain offline messages: %w", err)
		}
		for rows.Next() {
			var m OfflineMessage
			if err := rows.Scan(&m.FromUID, &m.Tstamp, &m.Message); err != nil {
				rows.Close()
				return err
			}
			out = append(out, m)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		_, err = tx.ExecContext(ctx, `DELETE FROM offline_messages WHERE to_uid = ?`, uid)
		return err
	})
	return out, err
}
