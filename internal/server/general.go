package server

import (
	"context"
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/palserver/paltalk-server/internal/service"
	"github.com/palserver/paltalk-server/internal/store"
	"github.com/palserver/paltalk-server/wire"
)

// generalFlow is installed once login completes. It accepts the bulk of
// the protocol's day-to-day packet types, per §4.8's general flow.
type generalFlow struct{}

func newGeneralFlow() *generalFlow { return &generalFlow{} }

func (generalFlow) OnEnter(ctx context.Context, c *Connection) error {
	uid := c.UID()

	if err := sendUserData(ctx, c); err != nil {
		return err
	}
	if err := c.Send(wire.NewFrame(wire.PacketBannerInterval, append(encodeU16(0x7FFF), 'C'))); err != nil {
		return err
	}
	if err := c.Send(wire.NewFrame(wire.PacketBannerInterval, append(encodeU16(0x7FFF), 'G'))); err != nil {
		return err
	}

	if err := sendCategoryList(ctx, c); err != nil {
		return err
	}
	if c.ProtocolVersion() >= wire.ProtocolVersion82 {
		if err := sendSubcategoryList(ctx, c); err != nil {
			return err
		}
	}

	buddyFrame, err := c.server.Buddies.BuddyListFrame(ctx, uid)
	if err != nil {
		return err
	}
	if err := c.Send(buddyFrame); err != nil {
		return err
	}

	blockFrame, err := c.server.Buddies.BlockedBuddiesFrame(ctx, uid)
	if err != nil {
		return err
	}
	if err := c.Send(blockFrame); err != nil {
		return err
	}

	return deliverOfflineMessages(ctx, c)
}

func sendUserData(ctx context.Context, c *Connection) error {
	user := c.cachedUser()
	body := wire.AppendField("", "uid", strconv.FormatUint(uint64(user.UID), 10))
	body = wire.AppendField(body, "nickname", user.Nickname)
	body = wire.AppendField(body, "email", user.Email)
	body = wire.AppendField(body, "first", user.First)
	body = wire.AppendField(body, "last", user.Last)
	body = wire.AppendField(body, "privacy", string(user.Privacy))

	serverIP := c.getServerIP()
	if serverIP == "" {
		serverIP = "0.0.0.0"
	}
	if ei, err := c.obfuscator.Encode(1, serverIP); err == nil {
		body = wire.AppendField(body, "ei", ei)
	}
	if smtp, err := c.obfuscator.Encode(2, ""); err == nil && smtp != "" {
		body = wire.AppendField(body, "smtp", smtp)
	}

	return c.Send(wire.NewFrame(wire.PacketUserData, []byte(body)))
}

func sendCategoryList(ctx context.Context, c *Connection) error {
	cats, err := c.server.DB.ListCategories(ctx)
	if err != nil {
		return err
	}
	body := ""
	for _, cat := range cats {
		rec := wire.AppendField("", "code", strconv.FormatUint(uint64(cat.Code), 10))
		rec = wire.AppendField(rec, "value", cat.Value)
		body = wire.AppendRecord(body, rec)
	}
	return c.Send(wire.NewFrame(wire.PacketCategoryList, []byte(body)))
}

func sendSubcategoryList(ctx context.Context, c *Connection) error {
	subs, err := c.server.DB.ListSubcategories(ctx)
	if err != nil {
		return err
	}
	body := ""
	for _, s := range subs {
		rec := wire.AppendField("", "subcatg", strconv.FormatUint(uint64(s.ID), 10))
		rec = wire.AppendField(rec, "catg", strconv.FormatUint(uint64(s.Catg), 10))
		rec = wire.AppendField(rec, "name", s.Name)
		body = wire.AppendRecord(body, rec)
	}
	return c.Send(wire.NewFrame(wire.PacketSubcategoryList, []byte(body)))
}

func deliverOfflineMessages(ctx context.Context, c *Connection) error {
	msgs, err := c.server.DB.DrainOfflineMessages(ctx, c.UID())
	if err != nil {
		return err
	}
	for _, m := range msgs {
		body := append(encodeU32(m.FromUID), m.Message...)
		if err := c.Send(wire.NewFrame(wire.PacketIMIn, body)); err != nil {
			return err
		}
	}
	return nil
}

func (f generalFlow) HandlePacket(ctx context.Context, c *Connection, fr wire.Frame) error {
	if acceptSilently(fr.Type) {
		return nil
	}
	switch fr.Type {
	case wire.PacketGetPrivacy:
		return f.handleGetPrivacy(ctx, c)
	case wire.PacketSetPrivacy:
		return f.handleSetPrivacy(ctx, c, fr)
	case wire.PacketListCategory, wire.PacketNewListCategory:
		return sendCategoryList(ctx, c)
	case wire.PacketListSubcategory:
		return f.handleListSubcategoryRooms(ctx, c, fr)
	case wire.PacketSendGlobalNumbers:
		return c.Send(wire.NewFrame(wire.PacketGlobalNumbers, nil))
	case wire.PacketChangeStatus:
		return f.handleChangeStatus(ctx, c, fr)
	case wire.PacketSetBuddyDisplay:
		return f.handleSetBuddyDisplay(ctx, c, fr)
	case wire.PacketAddBuddy:
		return f.handleAddBuddy(ctx, c, fr)
	case wire.PacketRemoveBuddy:
		return f.handleRemoveBuddy(ctx, c, fr)
	case wire.PacketBlockBuddy:
		return f.handleBlockBuddy(ctx, c, fr)
	case wire.PacketUnblockBuddy:
		return f.handleUnblockBuddy(ctx, c, fr)
	case wire.PacketSearchUser:
		return f.handleSearchUser(ctx, c, fr)
	case wire.PacketSearchRoom:
		return f.handleSearchRoom(ctx, c, fr)
	case wire.PacketIMOut:
		return f.handleIMOut(ctx, c, fr)
	case wire.PacketRoomMessageOut:
		return f.handleRoomMessageOut(ctx, c, fr)
	case wire.PacketNudgeOut:
		return f.handleNudgeOut(ctx, c, fr)
	case wire.PacketRoomJoin, wire.PacketRoomJoinAsAdmin, wire.PacketRoomJoinAsAdmin2:
		return f.handleRoomJoin(ctx, c, fr)
	case wire.PacketRoomLeave:
		return f.handleRoomLeave(ctx, c, fr)
	case wire.PacketRoomClose:
		return f.handleRoomLeave(ctx, c, fr)
	case wire.PacketRoomCreate:
		return f.handleRoomCreate(ctx, c, fr)
	case wire.PacketRoomHandUp:
		return f.handleRaiseHand(ctx, c, fr, true)
	case wire.PacketRoomHandDown:
		return f.handleRaiseHand(ctx, c, fr, false)
	case wire.PacketRoomSetAllMics:
		return f.handleRoomFlag(ctx, c, fr, func(rid, uid uint32, on bool) error {
			if err := c.server.Rooms.SetAllMics(ctx, rid, uid, on); err != nil {
				return err
			}
			onFlag := byte(0)
			if on {
				onFlag = 1
			}
			body := append(encodeU32(rid), 0, onFlag)
			body = append(body, encodeU32(uid)...)
			pkt := wire.NewFrame(wire.PacketRoomSetMic, body)
			if err := c.server.Rooms.BroadcastToRoom(ctx, rid, uid, pkt); err != nil {
				return err
			}
			return c.Send(pkt)
		})
	case wire.PacketRoomLowerAllHands:
		return f.handleRoomOnly(ctx, c, fr, func(rid, uid uint32) error {
			return c.server.Rooms.LowerAllHands(ctx, rid, uid)
		})
	case wire.PacketRoomNewUserMic:
		return f.handleRoomFlag(ctx, c, fr, func(rid, uid uint32, on bool) error {
			return c.server.Rooms.NewUserMic(ctx, rid, uid, on)
		})
	case wire.PacketRoomReddotText:
		return f.handleRoomFlag(ctx, c, fr, func(rid, uid uint32, on bool) error {
			return c.server.Rooms.SetReddotFlags(ctx, rid, uid, true, on)
		})
	case wire.PacketRoomReddotVideo:
		return f.handleRoomFlag(ctx, c, fr, func(rid, uid uint32, on bool) error {
			return c.server.Rooms.SetReddotFlags(ctx, rid, uid, false, on)
		})
	case wire.PacketRoomReddotUser:
		return f.handleRoomTarget(ctx, c, fr, func(rid, admin, uid uint32) error {
			return c.server.Rooms.ReddotUser(ctx, rid, admin, uid, true)
		})
	case wire.PacketRoomUnreddotUser:
		return f.handleRoomTarget(ctx, c, fr, func(rid, admin, uid uint32) error {
			return c.server.Rooms.ReddotUser(ctx, rid, admin, uid, false)
		})
	case wire.PacketRoomSetTopic:
		return f.handleRoomTopic(ctx, c, fr)
	case wire.PacketRoomBanUser, wire.PacketRoomBanNick:
		return f.handleRoomBan(ctx, c, fr)
	case wire.PacketRoomUnbanUser:
		return f.handleRoomTarget(ctx, c, fr, func(rid, admin, uid uint32) error {
			return c.server.Rooms.UnbanUser(ctx, rid, admin, uid)
		})
	case wire.PacketRoomBounceUser, wire.PacketRoomBounceReason:
		return f.handleRoomBounce(ctx, c, fr)
	case wire.PacketRoomUnbounceUser:
		return f.handleRoomTarget(ctx, c, fr, func(rid, admin, uid uint32) error {
			return c.server.Rooms.UnbounceUser(ctx, rid, admin, uid)
		})
	default:
		return nil
	}
}

func (generalFlow) handleGetPrivacy(ctx context.Context, c *Connection) error {
	user := c.cachedUser()
	return c.Send(wire.NewFrame(wire.PacketGetPrivacy, []byte{user.Privacy}))
}

func (generalFlow) handleSetPrivacy(ctx context.Context, c *Connection, fr wire.Frame) error {
	if len(fr.Body) < 1 {
		return nil
	}
	return c.server.DB.SetPrivacy(ctx, c.UID(), fr.Body[0])
}

func (generalFlow) handleListSubcategoryRooms(ctx context.Context, c *Connection, fr wire.Frame) error {
	if len(fr.Body) < 8 {
		return nil
	}
	catid := binary.BigEndian.Uint32(fr.Body[0:4])
	subcatg := binary.BigEndian.Uint32(fr.Body[4:8])
	rooms, err := c.server.DB.RoomsForSubcategory(ctx, catid, subcatg)
	if err != nil {
		return err
	}
	return c.Send(wire.NewFrame(wire.PacketSubcategoryRoomList, encodeRoomList(rooms)))
}

func encodeRoomList(rooms []store.Room) []byte {
	body := ""
	for _, r := range rooms {
		rec := wire.AppendField("", "id", strconv.FormatUint(uint64(r.ID), 10))
		rec = wire.AppendField(rec, "name", r.Name)
		rec = wire.AppendField(rec, "topic", r.Topic)
		body = wire.AppendRecord(body, rec)
	}
	return []byte(body)
}

// handleChangeStatus reads a status:u32 BE optionally followed by a status
// message; encodeStatus puts the same two fields after the uid.
func (generalFlow) handleChangeStatus(ctx context.Context, c *Connection, fr wire.Frame) error {
	if len(fr.Body) < 4 {
		return nil
	}
	status := binary.BigEndian.Uint32(fr.Body[0:4])
	msg := string(fr.Body[4:])
	c.setStatus(status, msg)
	return c.server.Buddies.BroadcastStatus(ctx, c.UID(), status, msg)
}

func (generalFlow) handleSetBuddyDisplay(ctx context.Context, c *Connection, fr wire.Frame) error {
	if len(fr.Body) < 4 {
		return nil
	}
	buddy := binary.BigEndian.Uint32(fr.Body[0:4])
	display := string(fr.Body[4:])
	return c.server.DB.SetBuddyDisplay(ctx, c.UID(), buddy, display)
}

func (generalFlow) handleAddBuddy(ctx context.Context, c *Connection, fr wire.Frame) error {
	parts := strings.SplitN(string(fr.Body), "\n", 2)
	nick := parts[0]
	display := ""
	if len(parts) > 1 {
		display = parts[1]
	}
	return c.server.Buddies.AddBuddy(ctx, c.UID(), nick, display)
}

func (generalFlow) handleRemoveBuddy(ctx context.Context, c *Connection, fr wire.Frame) error {
	if len(fr.Body) < 4 {
		return nil
	}
	buddy := binary.BigEndian.Uint32(fr.Body[0:4])
	if err := c.server.Buddies.RemoveBuddy(ctx, c.UID(), buddy); err != nil {
		return err
	}
	return c.Send(wire.NewFrame(wire.PacketBuddyRemoved, encodeU32(buddy)))
}

func (generalFlow) handleBlockBuddy(ctx context.Context, c *Connection, fr wire.Frame) error {
	nick := string(fr.Body)
	result, err := c.server.Buddies.BlockBuddy(ctx, c.UID(), nick)
	if err != nil {
		return err
	}
	body := append(encodeU32(result.BuddyUID), byte(result.Disposition))
	body = append(body, result.Message...)
	return c.Send(wire.NewFrame(wire.PacketBlockResponse, body))
}

func (generalFlow) handleUnblockBuddy(ctx context.Context, c *Connection, fr wire.Frame) error {
	if len(fr.Body) < 4 {
		return nil
	}
	buddy := binary.BigEndian.Uint32(fr.Body[0:4])
	return c.server.Buddies.UnblockBuddy(ctx, c.UID(), buddy)
}

func (generalFlow) handleSearchUser(ctx context.Context, c *Connection, fr wire.Frame) error {
	parts := strings.SplitN(string(fr.Body), "\n", 2)
	if len(parts) != 2 {
		return nil
	}
	body, err := c.server.Users.SearchUsersRecord(ctx, parts[0], parts[1], 50)
	if err != nil {
		return err
	}
	return c.Send(wire.NewFrame(wire.PacketSearchResults, []byte(body)))
}

func (generalFlow) handleSearchRoom(ctx context.Context, c *Connection, fr wire.Frame) error {
	matches, err := c.server.Rooms.SearchRooms(ctx, string(fr.Body))
	if err != nil {
		return err
	}
	return c.Send(wire.NewFrame(wire.PacketRoomSearchResults, encodeRoomList(matches)))
}

func (generalFlow) handleIMOut(ctx context.Context, c *Connection, fr wire.Frame) error {
	if len(fr.Body) < 4 {
		return nil
	}
	toUID := binary.BigEndian.Uint32(fr.Body[0:4])
	msg := string(fr.Body[4:])
	fromUID := c.UID()

	blocked, err := c.server.DB.UserBlockedMe(ctx, fromUID, toUID)
	if err != nil {
		return err
	}
	if blocked {
		return nil
	}

	if sess, online := c.server.Registry.Lookup(toUID); online {
		body := append(encodeU32(fromUID), msg...)
		return sess.Send(wire.NewFrame(wire.PacketIMIn, body))
	}
	return c.server.DB.SpoolOfflineMessage(ctx, fromUID, toUID, time.Now().UTC().Format(time.RFC3339), msg)
}

func (generalFlow) handleRoomMessageOut(ctx context.Context, c *Connection, fr wire.Frame) error {
	if len(fr.Body) < 4 {
		return nil
	}
	rid := binary.BigEndian.Uint32(fr.Body[0:4])
	msg := string(fr.Body[4:])
	uid := c.UID()

	if cmd, ok := service.ParseSlashCommand(msg); ok {
		if cmd.Name == "w" {
			target, rest, _ := strings.Cut(cmd.Args, ":")
			result, err := c.server.Rooms.Whisper(ctx, rid, uid, c.cachedUser().Nickname, strings.TrimSpace(target), strings.TrimSpace(rest))
			if err != nil {
				return nil
			}
			if sess, online := c.server.Registry.Lookup(uid); online {
				_ = sess.Send(wire.NewFrame(wire.PacketIMIn, append(encodeU32(uid), result.ToSelf...)))
			}
			return nil
		}
		return nil
	}

	invisible, err := c.server.Rooms.Store.UserIsInvisible(ctx, rid, uid)
	if err != nil {
		return err
	}
	if invisible {
		return nil
	}

	body := append(encodeU32(uid), msg...)
	return c.server.Rooms.BroadcastToRoom(ctx, rid, uid, wire.NewFrame(wire.PacketRoomMessageIn, body))
}

func (generalFlow) handleNudgeOut(ctx context.Context, c *Connection, fr wire.Frame) error {
	if len(fr.Body) < 4 {
		return nil
	}
	targetUID := binary.BigEndian.Uint32(fr.Body[0:4])
	if c.ProtocolVersion() < wire.ProtocolVersion82 {
		return nil
	}
	sess, online := c.server.Registry.Lookup(targetUID)
	if !online {
		return nil
	}
	return sess.Send(wire.NewFrame(wire.PacketNudgeIn, encodeU32(c.UID())))
}

func (generalFlow) handleRoomJoin(ctx context.Context, c *Connection, fr wire.Frame) error {
	if len(fr.Body) < 4 {
		return nil
	}
	rid := binary.BigEndian.Uint32(fr.Body[0:4])
	if err := c.server.Rooms.Join(ctx, rid, c.UID()); err != nil {
		return nil
	}
	return c.server.Rooms.BroadcastToRoom(ctx, rid, c.UID(), wire.NewFrame(wire.PacketRoomUserJoined, encodeU32(c.UID())))
}

func (generalFlow) handleRoomLeave(ctx context.Context, c *Connection, fr wire.Frame) error {
	if len(fr.Body) < 4 {
		return nil
	}
	rid := binary.BigEndian.Uint32(fr.Body[0:4])
	if err := c.server.Rooms.Leave(ctx, rid, c.UID()); err != nil {
		return err
	}
	return c.server.Rooms.BroadcastToRoom(ctx, rid, c.UID(), wire.NewFrame(wire.PacketRoomUserLeft, encodeU32(c.UID())))
}

func (generalFlow) handleRoomCreate(ctx context.Context, c *Connection, fr wire.Frame) error {
	name := string(fr.Body)
	rid, err := c.server.Rooms.CreateRoom(ctx, store.Room{Name: name, Code: int(c.UID())}, c.UID())
	if err != nil {
		return err
	}
	return c.Send(wire.NewFrame(wire.PacketMyRoomInfo, encodeU32(rid)))
}

func (generalFlow) handleRaiseHand(ctx context.Context, c *Connection, fr wire.Frame, on bool) error {
	if len(fr.Body) < 4 {
		return nil
	}
	rid := binary.BigEndian.Uint32(fr.Body[0:4])
	if err := c.server.Rooms.RaiseHand(ctx, rid, c.UID(), on); err != nil {
		return nil
	}
	pkt := wire.PacketRoomUserHandUp
	if !on {
		pkt = wire.PacketRoomUserHandDown
	}
	return c.server.Rooms.BroadcastToRoom(ctx, rid, c.UID(), wire.NewFrame(pkt, encodeU32(c.UID())))
}

func (generalFlow) handleRoomFlag(ctx context.Context, c *Connection, fr wire.Frame, apply func(rid, uid uint32, on bool) error) error {
	if len(fr.Body) < 5 {
		return nil
	}
	rid := binary.BigEndian.Uint32(fr.Body[0:4])
	on := fr.Body[4] != 0
	return apply(rid, c.UID(), on)
}

func (generalFlow) handleRoomOnly(ctx context.Context, c *Connection, fr wire.Frame, apply func(rid, uid uint32) error) error {
	if len(fr.Body) < 4 {
		return nil
	}
	rid := binary.BigEndian.Uint32(fr.Body[0:4])
	return apply(rid, c.UID())
}

func (generalFlow) handleRoomTopic(ctx context.Context, c *Connection, fr wire.Frame) error {
	if len(fr.Body) < 4 {
		return nil
	}
	rid := binary.BigEndian.Uint32(fr.Body[0:4])
	topic := string(fr.Body[4:])
	setter := c.UID()
	if err := c.server.Rooms.SetTopic(ctx, rid, setter, topic); err != nil {
		return nil
	}
	body := append(append(encodeU32(rid), encodeU32(setter)...), topic...)
	return c.server.Rooms.BroadcastToRoom(ctx, rid, setter, wire.NewFrame(wire.PacketRoomTopic, body))
}

func (generalFlow) handleRoomTarget(ctx context.Context, c *Connection, fr wire.Frame, apply func(rid, admin, uid uint32) error) error {
	if len(fr.Body) < 8 {
		return nil
	}
	rid := binary.BigEndian.Uint32(fr.Body[0:4])
	target := binary.BigEndian.Uint32(fr.Body[4:8])
	return apply(rid, c.UID(), target)
}

func (generalFlow) handleRoomBan(ctx context.Context, c *Connection, fr wire.Frame) error {
	if len(fr.Body) < 8 {
		return nil
	}
	rid := binary.BigEndian.Uint32(fr.Body[0:4])
	target := binary.BigEndian.Uint32(fr.Body[4:8])
	return c.server.Rooms.BanUser(ctx, rid, c.UID(), target)
}

func (generalFlow) handleRoomBounce(ctx context.Context, c *Connection, fr wire.Frame) error {
	if len(fr.Body) < 8 {
		return nil
	}
	rid := binary.BigEndian.Uint32(fr.Body[0:4])
	target := binary.BigEndian.Uint32(fr.Body[4:8])
	reason := ""
	if len(fr.Body) > 8 {
		reason = string(fr.Body[8:])
	}
	return c.server.Rooms.BounceUser(ctx, rid, c.UID(), target, reason)
}
