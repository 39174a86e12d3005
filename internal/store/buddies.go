package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AddBuddy inserts or updates the directed edge uid -> buddy, setting its
// optional display override. It is idempotent: adding an existing buddy
// just rewrites the display name.
func (d *DB) AddBuddy(ctx context.Context, uid, buddy uint32, display string) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO buddylist(uid, buddy, display) VALUES(?, ?, ?)
			ON CONFLICT(uid, buddy) DO UPDATE SET display = excluded.display`,
			uid, buddy, display)
		if err != nil {
			return fmt.Errorf("store: add buddy: %w", err)
		}
		return nil
	})
}

// RemoveBuddy deletes the directed edge uid -> buddy, if present.
func (d *DB) RemoveBuddy(ctx context.Context, uid, buddy uint32) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM buddylist WHERE uid = ? AND buddy = ?`, uid, buddy)
		if err != nil {
			return fmt.Errorf("store: remove buddy: %w", err)
		}
		return nil
	})
}

// SetBuddyDisplay rewrites the display override on an existing buddy edge.
func (d *DB) SetBuddyDisplay(ctx context.Context, uid, buddy uint32, display string) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE buddylist SET display = ? WHERE uid = ? AND buddy = ?`, display, uid, buddy)
		if err != nil {
			return fmt.Errorf("store: set buddy display: %w", err)
		}
		return nil
	})
}

// BlockUser inserts the directed block edge uid -> buddy. Blocking an
// already-buddied account leaves the buddy edge untouched; the two tables
// are independent, matching the source's separate blocklist table.
func (d *DB) BlockUser(ctx context.Context, uid, buddy uint32) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO blocklist(uid, buddy) VALUES(?, ?)
			ON CONFLICT(uid, buddy) DO NOTHING`, uid, buddy)
		if err != nil {
			return fmt.Errorf("store: block user: %w", err)
		}
		return nil
	})
}

// UnblockUser deletes the directed block edge uid -> buddy, if present.
func (d *DB) UnblockUser(ctx context.Context, uid, buddy uint32) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM blocklist WHERE uid = ? AND buddy = ?`, uid, buddy)
		if err != nil {
			return fmt.Errorf("store: unblock user: %w", err)
		}
		return nil
	})
}

// UserBlockedMe reports whether other has blocked uid.
func (d *DB) UserBlockedMe(ctx context.Context, uid, other uint32) (bool, error) {
	return d.edgeExists(ctx, "blocklist", other, uid)
}

// IBlockedUser reports whether uid has blocked other.
func (d *DB) IBlockedUser(ctx context.Context, uid, other uint32) (bool, error) {
	return d.edgeExists(ctx, "blocklist", uid, other)
}

func (d *DB) edgeExists(ctx context.Context, table string, uid, other uint32) (bool, error) {
	var n int
	err := d.Read.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT 1 FROM %s WHERE uid = ? AND buddy = ?`, table), uid, other).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: edge exists: %w", err)
	}
	return true, nil
}

// ListBuddies returns uid's buddy list, joined against the account table
// in the projection send_buddy_list sends over the wire.
func (d *DB) ListBuddies(ctx context.Context, uid uint32) ([]BuddyEntry, error) {
	return d.listEdges(ctx, uid, true)
}

// ListBlocked returns uid's block list, in the same projection minus the
// per-edge display override (block edges don't carry one).
func (d *DB) ListBlocked(ctx context.Context, uid uint32) ([]BuddyEntry, error) {
	return d.listEdges(ctx, uid, false)
}

func (d *DB) listEdges(ctx context.Context, uid uint32, buddyTable bool) ([]BuddyEntry, error) {
	table := "blocklist"
	selectDisplay := "''"
	if buddyTable {
		table = "buddylist"
		selectDisplay = "e.display"
	}

	rows, err := d.Read.QueryContext(ctx, fmt.Sprintf(`
		SELECT u.uid, %s, u.nickname, u.first, u.last, u.email, u.verified, u.paid1, u.admin, u.sup
		FROM %s e JOIN users u ON u.uid = e.buddy
		WHERE e.uid = ?
		ORDER BY u.nickname`, selectDisplay, table), uid)
	if err != nil {
		return nil, fmt.Errorf("store: list edges: %w", err)
	}
	defer rows.Close()

	var out []BuddyEntry
	for rows.Next() {
		var be BuddyEntry
		var display sql.NullString
		var verified, admin, staff int
		if err := rows.Scan(&be.UID, &display, &be.Nickname, &be.First, &be.Last, &be.Email,
			&verified, &be.Paid1, &admin, &staff); err != nil {
			return nil, fmt.Errorf("store: list edges: %w", err)
		}
		be.Display = display.String
		be.Verified = verified != 0
		be.Admin = admin != 0
		be.Staff = staff != 0
		out = append(out, be)
	}
	return out, rows.Err()
}

// ReverseBuddies returns the uids of accounts that have uid in their own
// buddy list — the audience for broadcast_status.
func (d *DB) ReverseBuddies(ctx context.Context, uid uint32) ([]uint32, error) {
	rows, err := d.Read.QueryContext(ctx, `SELECT uid FROM buddylist WHERE buddy = ?`, uid)
	if err != nil {
		return nil, fmt.Errorf("store: reverse buddies: %w", err)
	}
	defer rows.Close()

	var out []uint32
	for rows.Next() {
		var u uint32
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("store: reverse buddies: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
