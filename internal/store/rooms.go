package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/palserver/paltalk-server/wire"
)

// virtualRoomCap bounds how many rooms the two synthesized categories
// ever report, regardless of true population.
const virtualRoomCap = 5

// RoomCountsByCategory returns, for every category, how many rooms belong
// to it. The two virtual categories (Top, Featured) report
// min(virtualRoomCap, total room count) instead of a real per-category
// tally, since their membership is synthesized at list time rather than
// stored.
func (d *DB) RoomCountsByCategory(ctx context.Context) ([]RoomCount, error) {
	var total int
	if err := d.Read.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&total); err != nil {
		return nil, fmt.Errorf("store: room counts: %w", err)
	}
	virtualCount := min(virtualRoomCap, total)

	rows, err := d.Read.QueryContext(ctx, `
		SELECT catg, COUNT(*) FROM rooms GROUP BY catg`)
	if err != nil {
		return nil, fmt.Errorf("store: room counts: %w", err)
	}
	defer rows.Close()

	out := []RoomCount{
		{Category: wire.CategoryTop, Count: virtualCount},
		{Category: wire.CategoryFeatured, Count: virtualCount},
	}
	for rows.Next() {
		var rc RoomCount
		if err := rows.Scan(&rc.Category, &rc.Count); err != nil {
			return nil, fmt.Errorf("store: room counts: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func scanRoom(row interface{ Scan(...any) error }) (Room, error) {
	var r Room
	var subcatg sql.NullInt64
	var voice, private, locked, mike, text, video int
	var topic, password sql.NullString
	var topicSetter sql.NullInt64
	err := row.Scan(&r.ID, &r.Category, &subcatg, &r.Lang, &r.Rating, &voice, &private, &locked,
		&r.Color, &r.Name, &mike, &text, &video, &topic, &topicSetter, &r.Code, &password, &r.Created)
	if err != nil {
		return Room{}, err
	}
	r.Subcategory = uint32(subcatg.Int64)
	r.Voice = voice != 0
	r.Private = private != 0
	r.Locked = locked != 0
	r.Mike = mike != 0
	r.Text = text != 0
	r.Video = video != 0
	r.Topic = topic.String
	r.TopicSetter = uint32(topicSetter.Int64)
	r.Password = password.String
	return r, nil
}

const roomColumns = `id, catg, subcatg, lang, r, v, p, l, c, nm, mike, text, video, topic, topic_setter, code, password, created`

// LookupRoom fetches a single room's configuration.
func (d *DB) LookupRoom(ctx context.Context, rid uint32) (Room, error) {
	r, err := scanRoom(d.Read.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, rid))
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, ErrRoomNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("store: lookup room: %w", err)
	}
	return r, nil
}

// RoomsForCategory lists rooms belonging to catid. For the two virtual
// categories it synthesizes the listing instead of querying catg
// directly: Top orders by live population descending, Featured by
// creation time descending, both capped at virtualRoomCap. memberCounts
// supplies each room's current live population (the registry, not the
// database, is authoritative for who's online), keyed by room id.
func (d *DB) RoomsForCategory(ctx context.Context, catid uint32, memberCounts map[uint32]int) ([]Room, error) {
	switch catid {
	case wire.CategoryTop:
		return d.topRooms(ctx, memberCounts)
	case wire.CategoryFeatured:
		return d.featuredRooms(ctx)
	default:
		rows, err := d.Read.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE catg = ? ORDER BY nm`, catid)
		if err != nil {
			return nil, fmt.Errorf("store: rooms for category: %w", err)
		}
		defer rows.Close()
		return scanRooms(rows)
	}
}

// SearchRoomsByName returns every room whose name contains needle,
// case-insensitively, for room_search.
func (d *DB) SearchRoomsByName(ctx context.Context, needle string) ([]Room, error) {
	rows, err := d.Read.QueryContext(ctx, `
		SELECT `+roomColumns+` FROM rooms WHERE nm LIKE '%' || ? || '%' ESCAPE '\' COLLATE NOCASE ORDER BY nm`,
		needle)
	if err != nil {
		return nil, fmt.Errorf("store: search rooms: %w", err)
	}
	defer rows.Close()
	return scanRooms(rows)
}

func (d *DB) topRooms(ctx context.Context, memberCounts map[uint32]int) ([]Room, error) {
	rows, err := d.Read.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms`)
	if err != nil {
		return nil, fmt.Errorf("store: top rooms: %w", err)
	}
	all, err := scanRooms(rows)
	if err != nil {
		return nil, err
	}
	sortRoomsByPopulationDesc(all, memberCounts)
	if len(all) > virtualRoomCap {
		all = all[:virtualRoomCap]
	}
	return all, nil
}

func (d *DB) featuredRooms(ctx context.Context) ([]Room, error) {
	rows, err := d.Read.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY created DESC LIMIT ?`, virtualRoomCap)
	if err != nil {
		return nil, fmt.Errorf("store: featured rooms: %w", err)
	}
	defer rows.Close()
	return scanRooms(rows)
}

func sortRoomsByPopulationDesc(rooms []Room, counts map[uint32]int) {
	for i := 1; i < len(rooms); i++ {
		for j := i; j > 0 && counts[rooms[j].ID] > counts[rooms[j-1].ID]; j-- {
			rooms[j], rooms[j-1] = rooms[j-1], rooms[j]
		}
	}
}

// RoomsForSubcategory lists rooms with the given explicit subcategory.
// Only rooms whose category is catid and whose subcategory is subcatg are
// listed.
func (d *DB) RoomsForSubcategory(ctx context.Context, catid, subcatg uint32) ([]Room, error) {
	rows, err := d.Read.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE catg = ? AND subcatg = ? ORDER BY nm`, catid, subcatg)
	if err != nil {
		return nil, fmt.Errorf("store: rooms for subcategory: %w", err)
	}
	defer rows.Close()
	return scanRooms(rows)
}

func scanRooms(rows *sql.Rows) ([]Room, error) {
	defer rows.Close()
	var out []Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan room: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UserInRoom reports whether uid currently holds a room_users row for rid.
// The original implementation always returned true regardless of the
// actual row, silently granting every membership-gated action (hand raise
// included) to anyone who asked; this checks the row for real.
func (d *DB) UserInRoom(ctx context.Context, rid, uid uint32) (bool, error) {
	var n int
	err := d.Read.QueryRowContext(ctx,
		`SELECT 1 FROM room_users WHERE id = ? AND uid = ?`, rid, uid).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: user in room: %w", err)
	}
	return true, nil
}

// UserIsInvisible reports whether uid's room_users row has invis set.
func (d *DB) UserIsInvisible(ctx context.Context, rid, uid uint32) (bool, error) {
	var invis int
	err := d.Read.QueryRowContext(ctx,
		`SELECT invis FROM room_users WHERE id = ? AND uid = ?`, rid, uid).Scan(&invis)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: user is invisible: %w", err)
	}
	return invis != 0, nil
}

// UserIsRoomAdmin reports whether uid created/owns rid, per the room's
// admin code matching uid.
func (d *DB) UserIsRoomAdmin(ctx context.Context, rid, uid uint32) (bool, error) {
	var code int
	err := d.Read.QueryRowContext(ctx, `SELECT code FROM rooms WHERE id = ?`, rid).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrRoomNotFound
	}
	if err != nil {
		return false, fmt.Errorf("store: user is room admin: %w", err)
	}
	return uint32(code) == uid, nil
}

// RoomMembers returns the uids present in rid's room_users table.
func (d *DB) RoomMembers(ctx context.Context, rid uint32) ([]uint32, error) {
	rows, err := d.Read.QueryContext(ctx, `SELECT uid FROM room_users WHERE id = ?`, rid)
	if err != nil {
		return nil, fmt.Errorf("store: room members: %w", err)
	}
	defer rows.Close()

	var out []uint32
	for rows.Next() {
		var u uint32
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("store: room members: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// JoinRoom inserts uid's membership row for rid, defaulting mic state to
// the room's "new joiners get mic" setting.
func (d *DB) JoinRoom(ctx context.Context, rid, uid uint32) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO room_users(id, uid, mic)
			SELECT ?, ?, mike FROM rooms WHERE id = ?
			ON CONFLICT(id, uid) DO NOTHING`, rid, uid, rid)
		if err != nil {
			return fmt.Errorf("store: join room: %w", err)
		}
		return nil
	})
}

// LeaveRoom removes uid's membership row for rid.
func (d *DB) LeaveRoom(ctx context.Context, rid, uid uint32) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM room_users WHERE id = ? AND uid = ?`, rid, uid)
		if err != nil {
			return fmt.Errorf("store: leave room: %w", err)
		}
		return nil
	})
}

// LeaveAllRooms removes every membership row for uid, for use on
// disconnect.
func (d *DB) LeaveAllRooms(ctx context.Context, uid uint32) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM room_users WHERE uid = ?`, uid)
		if err != nil {
			return fmt.Errorf("store: leave all rooms: %w", err)
		}
		return nil
	})
}

// SetHandRaised updates uid's req flag in rid, requiring only membership.
func (d *DB) SetHandRaised(ctx context.Context, rid, uid uint32, on bool) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE room_users SET req = ? WHERE id = ? AND uid = ?`, boolInt(on), rid, uid)
		if err != nil {
			return fmt.Errorf("store: set hand raised: %w", err)
		}
		return nil
	})
}

// SetAllMics sets every member's mic flag in rid.
func (d *DB) SetAllMics(ctx context.Context, rid uint32, on bool) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE room_users SET mic = ? WHERE id = ?`, boolInt(on), rid)
		if err != nil {
			return fmt.Errorf("store: set all mics: %w", err)
		}
		return nil
	})
}

// LowerAllHands clears every member's req flag in rid.
func (d *DB) LowerAllHands(ctx context.Context, rid uint32) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE room_users SET req = 0 WHERE id = ?`, rid)
		if err != nil {
			return fmt.Errorf("store: lower all hands: %w", err)
		}
		return nil
	})
}

// SetNewUserMic toggles whether future joiners start with the mic.
func (d *DB) SetNewUserMic(ctx context.Context, rid uint32, on bool) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE rooms SET mike = ? WHERE id = ?`, boolInt(on), rid)
		if err != nil {
			return fmt.Errorf("store: set new user mic: %w", err)
		}
		return nil
	})
}

// SetReddotText toggles rid's text-reddot flag.
func (d *DB) SetReddotText(ctx context.Context, rid uint32, on bool) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE rooms SET text = ? WHERE id = ?`, boolInt(on), rid)
		if err != nil {
			return fmt.Errorf("store: set reddot text: %w", err)
		}
		return nil
	})
}

// SetReddotVideo toggles rid's video-reddot flag.
func (d *DB) SetReddotVideo(ctx context.Context, rid uint32, on bool) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE rooms SET video = ? WHERE id = ?`, boolInt(on), rid)
		if err != nil {
			return fmt.Errorf("store: set reddot video: %w", err)
		}
		return nil
	})
}

// SetTopic records rid's topic and the uid that set it.
func (d *DB) SetTopic(ctx context.Context, rid, setter uint32, topic string) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE rooms SET topic = ?, topic_setter = ? WHERE id = ?`, topic, setter, rid)
		if err != nil {
			return fmt.Errorf("store: set topic: %w", err)
		}
		return nil
	})
}

// BanUser persists a ban row for uid in rid, banned by banner.
func (d *DB) BanUser(ctx context.Context, rid, uid, banner uint32) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO room_bans(id, uid, banner, ts) VALUES(?, ?, ?, datetime('now','subsec'))
			ON CONFLICT(id, uid) DO UPDATE SET banner = excluded.banner, ts = excluded.ts`,
			rid, uid, banner)
		if err != nil {
			return fmt.Errorf("store: ban user: %w", err)
		}
		return nil
	})
}

// UnbanUser removes uid's ban row from rid.
func (d *DB) UnbanUser(ctx context.Context, rid, uid uint32) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM room_bans WHERE id = ? AND uid = ?`, rid, uid)
		if err != nil {
			return fmt.Errorf("store: unban user: %w", err)
		}
		return nil
	})
}

// IsBanned reports whether uid is banned from rid.
func (d *DB) IsBanned(ctx context.Context, rid, uid uint32) (bool, error) {
	var n int
	err := d.Read.QueryRowContext(ctx, `SELECT 1 FROM room_bans WHERE id = ? AND uid = ?`, rid, uid).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: is banned: %w", err)
	}
	return true, nil
}

// BounceUser persists a bounce row for uid in rid, with an optional reason.
func (d *DB) BounceUser(ctx context.Context, rid, uid, bouncer uint32, reason string) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO room_bounces(id, uid, bouncer, reason, ts) VALUES(?, ?, ?, ?, datetime('now','subsec'))
			ON CONFLICT(id, uid) DO UPDATE SET bouncer = excluded.bouncer, reason = excluded.reason, ts = excluded.ts`,
			rid, uid, bouncer, reason)
		if err != nil {
			return fmt.Errorf("store: bounce user: %w", err)
		}
		return nil
	})
}

// UnbounceUser removes uid's bounce row from rid.
func (d *DB) UnbounceUser(ctx context.Context, rid, uid uint32) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM room_bounces WHERE id = ? AND uid = ?`, rid, uid)
		if err != nil {
			return fmt.Errorf("store: unbounce user: %w", err)
		}
		return nil
	})
}

// CreateRoom inserts a new room owned (admin code) by creator.
func (d *DB) CreateRoom(ctx context.Context, r Room, creator uint32) (uint32, error) {
	var id uint32
	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO rooms(catg, subcatg, lang, r, v, p, l, c, nm, mike, code, password, created)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now','subsec'))`,
			r.Category, r.Subcategory, r.Lang, string(r.Rating), boolInt(r.Voice), boolInt(r.Private),
			boolInt(r.Locked), r.Color, r.Name, boolInt(r.Mike), creator, r.Password)
		if err != nil {
			return fmt.Errorf("store: create room: %w", err)
		}
		lastID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("store: create room: %w", err)
		}
		id = uint32(lastID)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
