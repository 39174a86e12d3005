// Package service implements the engine's business logic: the rules that
// sit between the wire protocol and the persistence layer, grounded in the
// same separation the teacher draws between its server/oscar routing and
// its foodgroup packages.
package service

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/palserver/paltalk-server/internal/presence"
	"github.com/palserver/paltalk-server/internal/store"
	"github.com/palserver/paltalk-server/wire"
)

// BuddyStore is the persistence surface BuddyService needs.
type BuddyStore interface {
	ListBuddies(ctx context.Context, uid uint32) ([]store.BuddyEntry, error)
	ListBlocked(ctx context.Context, uid uint32) ([]store.BuddyEntry, error)
	ReverseBuddies(ctx context.Context, uid uint32) ([]uint32, error)
	AddBuddy(ctx context.Context, uid, buddy uint32, display string) error
	RemoveBuddy(ctx context.Context, uid, buddy uint32) error
	SetBuddyDisplay(ctx context.Context, uid, buddy uint32, display string) error
	BlockUser(ctx context.Context, uid, buddy uint32) error
	UnblockUser(ctx context.Context, uid, buddy uint32) error
	UserBlockedMe(ctx context.Context, uid, other uint32) (bool, error)
	IBlockedUser(ctx context.Context, uid, other uint32) (bool, error)
	LookupUID(ctx context.Context, nickname string) (uint32, error)
}

// BuddyService implements §4.5: buddy/block listings, presence derivation,
// and the status broadcast fanout.
type BuddyService struct {
	Store    BuddyStore
	Registry *presence.Registry
}

// NewBuddyService constructs a BuddyService.
func NewBuddyService(s BuddyStore, r *presence.Registry) *BuddyService {
	return &BuddyService{Store: s, Registry: r}
}

func buddyEntryRecord(e store.BuddyEntry, includeDisplay bool) string {
	rec := ""
	rec = wire.AppendField(rec, "uid", fmt.Sprintf("%d", e.UID))
	if includeDisplay {
		rec = wire.AppendField(rec, "display", e.Display)
	}
	rec = wire.AppendField(rec, "nickname", e.Nickname)
	rec = wire.AppendField(rec, "first", e.First)
	rec = wire.AppendField(rec, "last", e.Last)
	rec = wire.AppendField(rec, "email", e.Email)
	rec = wire.AppendField(rec, "verified", boolDigit(e.Verified))
	rec = wire.AppendField(rec, "paid1", string(e.Paid1))
	rec = wire.AppendField(rec, "admin", boolDigit(e.Admin))
	rec = wire.AppendField(rec, "sup", boolDigit(e.Staff))
	return rec
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// BuddyListFrame builds the BUDDY_LIST packet for uid.
func (s *BuddyService) BuddyListFrame(ctx context.Context, uid uint32) (wire.Frame, error) {
	entries, err := s.Store.ListBuddies(ctx, uid)
	if err != nil {
		return wire.Frame{}, fmt.Errorf("service: buddy list: %w", err)
	}
	body := ""
	for _, e := range entries {
		body = wire.AppendRecord(body, buddyEntryRecord(e, true))
	}
	return wire.NewFrame(wire.PacketBuddyList, []byte(body)), nil
}

// BlockedBuddiesFrame builds the BLOCKED_BUDDIES packet for uid.
func (s *BuddyService) BlockedBuddiesFrame(ctx context.Context, uid uint32) (wire.Frame, error) {
	entries, err := s.Store.ListBlocked(ctx, uid)
	if err != nil {
		return wire.Frame{}, fmt.Errorf("service: blocked buddies: %w", err)
	}
	body := ""
	for _, e := range entries {
		body = wire.AppendRecord(body, buddyEntryRecord(e, false))
	}
	return wire.NewFrame(wire.PacketBlockedBuddies, []byte(body)), nil
}

// encodeStatus renders the fixed uid+status prefix, optionally followed by
// a status message for protocol versions >= 8.2 when status isn't online.
func encodeStatus(uid, status uint32, msg string, protocolVersion uint16) []byte {
	buf := make([]byte, 8, 8+len(msg))
	binary.BigEndian.PutUint32(buf[0:4], uid)
	binary.BigEndian.PutUint32(buf[4:8], status)
	if protocolVersion >= wire.ProtocolVersion82 && status != wire.StatusOnline {
		if len(msg) > wire.StatusMsgMax {
			msg = msg[:wire.StatusMsgMax]
		}
		buf = append(buf, msg...)
	}
	return buf
}

// BuddyStatusFrames builds one BUDDY_STATUSCHANGE frame per buddy of uid,
// deriving each buddy's visible status per §4.5's rule: blocked if we've
// blocked them, their live status if online, else offline.
func (s *BuddyService) BuddyStatusFrames(ctx context.Context, uid uint32, protocolVersion uint16) ([]wire.Frame, error) {
	entries, err := s.Store.ListBuddies(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("service: buddy statuses: %w", err)
	}

	var frames []wire.Frame
	for _, e := range entries {
		blocked, err := s.Store.IBlockedUser(ctx, uid, e.UID)
		if err != nil {
			return nil, err
		}

		var status uint32
		var msg string
		switch {
		case blocked:
			status = wire.StatusBlocked
		default:
			if sess, online := s.Registry.Lookup(e.UID); online {
				status, msg = sess.Status()
			} else {
				status = wire.StatusOffline
			}
		}

		body := encodeStatus(e.UID, status, msg, protocolVersion)
		frames = append(frames, wire.NewFrame(wire.PacketBuddyStatusChange, body))
	}
	return frames, nil
}

// BroadcastStatus sends uid's new status to every account that has uid in
// their own buddy list (reverse buddies), skipping any that have blocked
// uid, exactly as described for broadcast_status.
func (s *BuddyService) BroadcastStatus(ctx context.Context, uid uint32, status uint32, msg string) error {
	reverse, err := s.Store.ReverseBuddies(ctx, uid)
	if err != nil {
		return fmt.Errorf("service: broadcast status: %w", err)
	}

	for _, peer := range reverse {
		blockedMe, err := s.Store.UserBlockedMe(ctx, uid, peer)
		if err != nil {
			return err
		}
		if blockedMe {
			continue
		}
		sess, online := s.Registry.Lookup(peer)
		if !online {
			continue
		}
		body := encodeStatus(uid, status, msg, sess.ProtocolVersion())
		_ = sess.Send(wire.NewFrame(wire.PacketBuddyStatusChange, body))
	}
	return nil
}

// AddBuddy adds buddyNick to uid's buddy list, resolving the nickname
// first.
func (s *BuddyService) AddBuddy(ctx context.Context, uid uint32, buddyNick, display string) error {
	buddyUID, err := s.Store.LookupUID(ctx, buddyNick)
	if err != nil {
		return err
	}
	if wire.IsErrorUID(buddyUID) {
		return fmt.Errorf("service: add buddy: %w", store.ErrUserNotFound)
	}
	return s.Store.AddBuddy(ctx, uid, buddyUID, display)
}

// RemoveBuddy removes buddyUID from uid's buddy list.
func (s *BuddyService) RemoveBuddy(ctx context.Context, uid, buddyUID uint32) error {
	return s.Store.RemoveBuddy(ctx, uid, buddyUID)
}

// BlockResult is returned by BlockBuddy to drive the BLOCK_RESPONSE reply.
type BlockResult struct {
	BuddyUID    uint32
	Disposition int // 1 on success
	Message     string
}

// BlockBuddy resolves buddyNick and records a block edge from uid.
func (s *BuddyService) BlockBuddy(ctx context.Context, uid uint32, buddyNick string) (BlockResult, error) {
	buddyUID, err := s.Store.LookupUID(ctx, buddyNick)
	if err != nil {
		return BlockResult{}, err
	}
	if wire.IsErrorUID(buddyUID) {
		return BlockResult{Disposition: 0, Message: "no such user"}, nil
	}
	if err := s.Store.BlockUser(ctx, uid, buddyUID); err != nil {
		return BlockResult{}, err
	}
	return BlockResult{BuddyUID: buddyUID, Disposition: 1, Message: "Success"}, nil
}

// UnblockBuddy removes a previously recorded block edge.
func (s *BuddyService) UnblockBuddy(ctx context.Context, uid, buddyUID uint32) error {
	return s.Store.UnblockUser(ctx, uid, buddyUID)
}
