package service

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/palserver/paltalk-server/internal/presence"
	"github.com/palserver/paltalk-server/internal/store"
	"github.com/palserver/paltalk-server/wire"
)

func encodeU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// RoomStore is the persistence surface RoomService needs.
type RoomStore interface {
	RoomCountsByCategory(ctx context.Context) ([]store.RoomCount, error)
	RoomsForCategory(ctx context.Context, catid uint32, memberCounts map[uint32]int) ([]store.Room, error)
	RoomsForSubcategory(ctx context.Context, catid, subcatg uint32) ([]store.Room, error)
	SearchRoomsByName(ctx context.Context, needle string) ([]store.Room, error)
	LookupRoom(ctx context.Context, rid uint32) (store.Room, error)
	UserInRoom(ctx context.Context, rid, uid uint32) (bool, error)
	UserIsInvisible(ctx context.Context, rid, uid uint32) (bool, error)
	UserIsRoomAdmin(ctx context.Context, rid, uid uint32) (bool, error)
	RoomMembers(ctx context.Context, rid uint32) ([]uint32, error)
	JoinRoom(ctx context.Context, rid, uid uint32) error
	LeaveRoom(ctx context.Context, rid, uid uint32) error
	LeaveAllRooms(ctx context.Context, uid uint32) error
	SetHandRaised(ctx context.Context, rid, uid uint32, on bool) error
	SetAllMics(ctx context.Context, rid uint32, on bool) error
	LowerAllHands(ctx context.Context, rid uint32) error
	SetNewUserMic(ctx context.Context, rid uint32, on bool) error
	SetReddotText(ctx context.Context, rid uint32, on bool) error
	SetReddotVideo(ctx context.Context, rid uint32, on bool) error
	SetTopic(ctx context.Context, rid, setter uint32, topic string) error
	BanUser(ctx context.Context, rid, uid, banner uint32) error
	UnbanUser(ctx context.Context, rid, uid uint32) error
	IsBanned(ctx context.Context, rid, uid uint32) (bool, error)
	BounceUser(ctx context.Context, rid, uid, bouncer uint32, reason string) error
	UnbounceUser(ctx context.Context, rid, uid uint32) error
	CreateRoom(ctx context.Context, r store.Room, creator uint32) (uint32, error)
	LookupUID(ctx context.Context, nickname string) (uint32, error)
}

// ErrNotAdmin is returned by moderation calls when the caller isn't the
// room's admin.
var ErrNotAdmin = fmt.Errorf("service: caller is not room admin")

// ErrAnonymousWhisper is returned when a whisper is attempted in an
// anonymous room, which the source flags as disallowed but never actually
// enforces; this engine enforces it.
var ErrAnonymousWhisper = fmt.Errorf("service: whispers are not allowed in anonymous rooms")

// RoomService implements §4.6: room listing, membership, moderation, and
// whisper/slash-command handling.
type RoomService struct {
	Store    RoomStore
	Registry *presence.Registry
}

// NewRoomService constructs a RoomService.
func NewRoomService(s RoomStore, r *presence.Registry) *RoomService {
	return &RoomService{Store: s, Registry: r}
}

func (s *RoomService) memberCounts(ctx context.Context, rooms []store.Room) map[uint32]int {
	counts := make(map[uint32]int, len(rooms))
	for _, r := range rooms {
		members, err := s.Store.RoomMembers(ctx, r.ID)
		if err != nil {
			continue
		}
		n := 0
		for _, uid := range members {
			if s.Registry.IsOnline(uid) {
				n++
			}
		}
		counts[r.ID] = n
	}
	return counts
}

// RoomsForCategory lists rooms in catid, resolving live population counts
// for the two virtual categories' sort order.
func (s *RoomService) RoomsForCategory(ctx context.Context, catid uint32) ([]store.Room, error) {
	all, err := s.Store.RoomsForCategory(ctx, catid, nil)
	if err != nil {
		return nil, err
	}
	if catid == wire.CategoryTop {
		counts := s.memberCounts(ctx, all)
		return s.Store.RoomsForCategory(ctx, catid, counts)
	}
	return all, nil
}

// SearchRooms finds rooms by a name substring, for room_search.
func (s *RoomService) SearchRooms(ctx context.Context, needle string) ([]store.Room, error) {
	return s.Store.SearchRoomsByName(ctx, needle)
}

// BroadcastToRoom delivers f to every member of rid except the caller,
// intersected with the live registry.
func (s *RoomService) BroadcastToRoom(ctx context.Context, rid, exceptUID uint32, f wire.Frame) error {
	members, err := s.Store.RoomMembers(ctx, rid)
	if err != nil {
		return fmt.Errorf("service: broadcast to room: %w", err)
	}
	var targets []uint32
	for _, uid := range members {
		if uid != exceptUID {
			targets = append(targets, uid)
		}
	}
	s.Registry.Broadcast(targets, f)
	return nil
}

// BroadcastToNonAdmins is BroadcastToRoom additionally filtered to members
// who aren't the room's admin.
func (s *RoomService) BroadcastToNonAdmins(ctx context.Context, rid, exceptUID uint32, f wire.Frame) error {
	room, err := s.Store.LookupRoom(ctx, rid)
	if err != nil {
		return err
	}
	members, err := s.Store.RoomMembers(ctx, rid)
	if err != nil {
		return fmt.Errorf("service: broadcast to non-admins: %w", err)
	}
	var targets []uint32
	for _, uid := range members {
		if uid != exceptUID && uid != uint32(room.Code) {
			targets = append(targets, uid)
		}
	}
	s.Registry.Broadcast(targets, f)
	return nil
}

// requireAdmin returns ErrNotAdmin if uid doesn't administer rid.
func (s *RoomService) requireAdmin(ctx context.Context, rid, uid uint32) error {
	isAdmin, err := s.Store.UserIsRoomAdmin(ctx, rid, uid)
	if err != nil {
		return err
	}
	if !isAdmin {
		return ErrNotAdmin
	}
	return nil
}

// SetReddotFlags toggles room-wide text/video reddot, admin-only.
func (s *RoomService) SetReddotFlags(ctx context.Context, rid, uid uint32, text bool, on bool) error {
	if err := s.requireAdmin(ctx, rid, uid); err != nil {
		return err
	}
	if text {
		return s.Store.SetReddotText(ctx, rid, on)
	}
	return s.Store.SetReddotVideo(ctx, rid, on)
}

// ReddotUser marks or unmarks target with a reddot in rid, admin-only. It
// carries no persisted state: the result is a broadcast signal only, per
// the source's reddot_user().
func (s *RoomService) ReddotUser(ctx context.Context, rid, admin, target uint32, on bool) error {
	if err := s.requireAdmin(ctx, rid, admin); err != nil {
		return err
	}
	pkt := wire.PacketRoomUserReddotOn
	if !on {
		pkt = wire.PacketRoomUserReddotOff
	}
	body := append(encodeU32(rid), encodeU32(target)...)
	f := wire.NewFrame(pkt, body)
	if err := s.BroadcastToRoom(ctx, rid, admin, f); err != nil {
		return err
	}
	s.Registry.Broadcast([]uint32{admin}, f)
	return nil
}

// SetAllMics is admin-only.
func (s *RoomService) SetAllMics(ctx context.Context, rid, uid uint32, on bool) error {
	if err := s.requireAdmin(ctx, rid, uid); err != nil {
		return err
	}
	return s.Store.SetAllMics(ctx, rid, on)
}

// LowerAllHands is admin-only.
func (s *RoomService) LowerAllHands(ctx context.Context, rid, uid uint32) error {
	if err := s.requireAdmin(ctx, rid, uid); err != nil {
		return err
	}
	return s.Store.LowerAllHands(ctx, rid)
}

// NewUserMic is admin-only.
func (s *RoomService) NewUserMic(ctx context.Context, rid, uid uint32, on bool) error {
	if err := s.requireAdmin(ctx, rid, uid); err != nil {
		return err
	}
	return s.Store.SetNewUserMic(ctx, rid, on)
}

// SetTopic is admin-only.
func (s *RoomService) SetTopic(ctx context.Context, rid, uid uint32, topic string) error {
	if err := s.requireAdmin(ctx, rid, uid); err != nil {
		return err
	}
	return s.Store.SetTopic(ctx, rid, uid, topic)
}

// RaiseHand requires only membership, not admin.
func (s *RoomService) RaiseHand(ctx context.Context, rid, uid uint32, on bool) error {
	inRoom, err := s.Store.UserInRoom(ctx, rid, uid)
	if err != nil {
		return err
	}
	if !inRoom {
		return store.ErrNotRoomMember
	}
	return s.Store.SetHandRaised(ctx, rid, uid, on)
}

// closedReason is the fixed explanation text sent with ROOM_CLOSED when a
// ban or bounce evicts a present member.
const closedReason = "You have been removed from this room."

// BanUser persists the ban and, if uid is present in rid, kicks them with
// a ROOM_CLOSED notice.
func (s *RoomService) BanUser(ctx context.Context, rid, admin, uid uint32) error {
	if err := s.requireAdmin(ctx, rid, admin); err != nil {
		return err
	}
	if err := s.Store.BanUser(ctx, rid, uid, admin); err != nil {
		return err
	}
	return s.evict(ctx, rid, uid)
}

// UnbanUser is admin-only.
func (s *RoomService) UnbanUser(ctx context.Context, rid, admin, uid uint32) error {
	if err := s.requireAdmin(ctx, rid, admin); err != nil {
		return err
	}
	return s.Store.UnbanUser(ctx, rid, uid)
}

// BounceUser persists the bounce and evicts uid if present.
func (s *RoomService) BounceUser(ctx context.Context, rid, admin, uid uint32, reason string) error {
	if err := s.requireAdmin(ctx, rid, admin); err != nil {
		return err
	}
	if err := s.Store.BounceUser(ctx, rid, uid, admin, reason); err != nil {
		return err
	}
	return s.evict(ctx, rid, uid)
}

// UnbounceUser is admin-only.
func (s *RoomService) UnbounceUser(ctx context.Context, rid, admin, uid uint32) error {
	if err := s.requireAdmin(ctx, rid, admin); err != nil {
		return err
	}
	return s.Store.UnbounceUser(ctx, rid, uid)
}

func (s *RoomService) evict(ctx context.Context, rid, uid uint32) error {
	inRoom, err := s.Store.UserInRoom(ctx, rid, uid)
	if err != nil {
		return err
	}
	if !inRoom {
		return nil
	}
	if sess, online := s.Registry.Lookup(uid); online {
		body := wire.AppendField("", "reason", closedReason)
		_ = sess.Send(wire.NewFrame(wire.PacketRoomClosed, []byte(body)))
	}
	return s.Store.LeaveRoom(ctx, rid, uid)
}

// Join admits uid to rid, rejecting banned users.
func (s *RoomService) Join(ctx context.Context, rid, uid uint32) error {
	banned, err := s.Store.IsBanned(ctx, rid, uid)
	if err != nil {
		return err
	}
	if banned {
		return fmt.Errorf("service: join room: %w", store.ErrNotRoomMember)
	}
	return s.Store.JoinRoom(ctx, rid, uid)
}

// Leave removes uid from rid.
func (s *RoomService) Leave(ctx context.Context, rid, uid uint32) error {
	return s.Store.LeaveRoom(ctx, rid, uid)
}

// stripLeadingTags drops any HTML-like tags at the start of msg using the
// standard tokenizer, returning the first non-tag text token unchanged.
// Slash commands are recognized only once any leading decoration has been
// removed this way.
func stripLeadingTags(msg string) string {
	z := html.NewTokenizer(strings.NewReader(msg))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.TextToken:
			return string(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			continue
		default:
			continue
		}
	}
}

// SlashCommand is the parsed result of a leading "/" message.
type SlashCommand struct {
	Name string
	Args string
}

// ParseSlashCommand recognizes a message as a slash command once any
// leading decorative tags are stripped, per §4.6: "accept when message
// starts with a literal / after stripping leading <…> tags".
func ParseSlashCommand(msg string) (SlashCommand, bool) {
	stripped := stripLeadingTags(msg)
	if stripped == "" {
		stripped = msg
	}
	stripped = strings.TrimLeft(stripped, " ")
	if !strings.HasPrefix(stripped, "/") {
		return SlashCommand{}, false
	}
	rest := stripped[1:]
	name, args, _ := strings.Cut(rest, " ")
	return SlashCommand{Name: strings.ToLower(name), Args: strings.TrimLeft(args, " ")}, true
}

// WhisperResult carries the two rendered fragments a whisper produces.
type WhisperResult struct {
	ToRecipient string
	ToSelf      string
}

// Whisper implements "/w target: msg": looked up by nickname, refused in
// anonymous rooms and when either party is invisible.
func (s *RoomService) Whisper(ctx context.Context, rid, fromUID uint32, fromNick, target, msg string) (WhisperResult, error) {
	room, err := s.Store.LookupRoom(ctx, rid)
	if err != nil {
		return WhisperResult{}, err
	}
	if room.Rating == wire.RoomTypeAnonymous {
		return WhisperResult{}, ErrAnonymousWhisper
	}

	targetUID, err := s.Store.LookupUID(ctx, target)
	if err != nil {
		return WhisperResult{}, err
	}
	if wire.IsErrorUID(targetUID) {
		return WhisperResult{}, store.ErrUserNotFound
	}

	fromInvis, err := s.Store.UserIsInvisible(ctx, rid, fromUID)
	if err != nil {
		return WhisperResult{}, err
	}
	targetInvis, err := s.Store.UserIsInvisible(ctx, rid, targetUID)
	if err != nil {
		return WhisperResult{}, err
	}
	if fromInvis || targetInvis {
		return WhisperResult{}, fmt.Errorf("service: whisper: %w", store.ErrNotRoomMember)
	}

	return WhisperResult{
		ToRecipient: fmt.Sprintf("<i>%s whispers:</i> %s", fromNick, msg),
		ToSelf:      fmt.Sprintf("<i>You whisper to %s:</i> %s", target, msg),
	}, nil
}

// CreateRoom inserts a new room owned by creator.
func (s *RoomService) CreateRoom(ctx context.Context, r store.Room, creator uint32) (uint32, error) {
	return s.Store.CreateRoom(ctx, r, creator)
}
