package service

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palserver/paltalk-server/internal/presence"
	"github.com/palserver/paltalk-server/internal/store"
	"github.com/palserver/paltalk-server/wire"
)

type fakeBuddyStore struct {
	buddies  map[uint32][]store.BuddyEntry
	blocked  map[uint32][]store.BuddyEntry
	reverse  map[uint32][]uint32
	blockedByMap map[uint32]map[uint32]bool // blockedByMap[blocker][blockee] = true
	nicknames map[string]uint32
	added    []struct{ uid, buddy uint32 }
}

func newFakeBuddyStore() *fakeBuddyStore {
	return &fakeBuddyStore{
		buddies:      map[uint32][]store.BuddyEntry{},
		blocked:      map[uint32][]store.BuddyEntry{},
		reverse:      map[uint32][]uint32{},
		blockedByMap: map[uint32]map[uint32]bool{},
		nicknames:    map[string]uint32{},
	}
}

func (f *fakeBuddyStore) ListBuddies(ctx context.Context, uid uint32) ([]store.BuddyEntry, error) {
	return f.buddies[uid], nil
}
func (f *fakeBuddyStore) ListBlocked(ctx context.Context, uid uint32) ([]store.BuddyEntry, error) {
	return f.blocked[uid], nil
}
func (f *fakeBuddyStore) ReverseBuddies(ctx context.Context, uid uint32) ([]uint32, error) {
	return f.reverse[uid], nil
}
func (f *fakeBuddyStore) AddBuddy(ctx context.Context, uid, buddy uint32, display string) error {
	f.added = append(f.added, struct{ uid, buddy uint32 }{uid, buddy})
	return nil
}
func (f *fakeBuddyStore) RemoveBuddy(ctx context.Context, uid, buddy uint32) error { return nil }
func (f *fakeBuddyStore) SetBuddyDisplay(ctx context.Context, uid, buddy uint32, display string) error {
	return nil
}
func (f *fakeBuddyStore) BlockUser(ctx context.Context, uid, buddy uint32) error {
	if f.blockedByMap[uid] == nil {
		f.blockedByMap[uid] = map[uint32]bool{}
	}
	f.blockedByMap[uid][buddy] = true
	return nil
}
func (f *fakeBuddyStore) UnblockUser(ctx context.Context, uid, buddy uint32) error { return nil }
func (f *fakeBuddyStore) UserBlockedMe(ctx context.Context, uid, other uint32) (bool, error) {
	return f.blockedByMap[other][uid], nil
}
func (f *fakeBuddyStore) IBlockedUser(ctx context.Context, uid, other uint32) (bool, error) {
	return f.blockedByMap[uid][other], nil
}
func (f *fakeBuddyStore) LookupUID(ctx context.Context, nickname string) (uint32, error) {
	if uid, ok := f.nicknames[nickname]; ok {
		return uid, nil
	}
	return wire.UIDAll, nil
}

type fakePresenceSession struct {
	uid     uint32
	version uint16
	status  uint32
	msg     string
	sent    []wire.Frame
}

func (f *fakePresenceSession) UID() uint32             { return f.uid }
func (f *fakePresenceSession) ProtocolVersion() uint16 { return f.version }
func (f *fakePresenceSession) Status() (uint32, string) { return f.status, f.msg }
func (f *fakePresenceSession) Send(fr wire.Frame) error { f.sent = append(f.sent, fr); return nil }
func (f *fakePresenceSession) Kick(reason string)       {}

func TestBuddyListFrame(t *testing.T) {
	fs := newFakeBuddyStore()
	fs.buddies[1] = []store.BuddyEntry{{UID: 2, Nickname: "buddy1"}}
	svc := NewBuddyService(fs, presence.NewRegistry())

	frame, err := svc.BuddyListFrame(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, wire.PacketBuddyList, frame.Type)
	assert.Contains(t, string(frame.Body), "buddy1")
}

func TestBuddyStatusFramesReflectsBlockAndOnline(t *testing.T) {
	fs := newFakeBuddyStore()
	fs.buddies[1] = []store.BuddyEntry{
		{UID: 2, Nickname: "onlineBuddy"},
		{UID: 3, Nickname: "blockedBuddy"},
		{UID: 4, Nickname: "offlineBuddy"},
	}
	fs.blockedByMap[1] = map[uint32]bool{3: true}

	reg := presence.NewRegistry()
	reg.Register(2, &fakePresenceSession{uid: 2, status: wire.StatusOnline})

	svc := NewBuddyService(fs, reg)
	frames, err := svc.BuddyStatusFrames(context.Background(), 1, wire.ProtocolVersion82)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, wire.StatusOnline, binary.BigEndian.Uint32(frames[0].Body[4:8]))
	assert.Equal(t, wire.StatusBlocked, binary.BigEndian.Uint32(frames[1].Body[4:8]))
	assert.Equal(t, wire.StatusOffline, binary.BigEndian.Uint32(frames[2].Body[4:8]))
}

func TestAddBuddyResolvesNicknameAndRejectsUnknown(t *testing.T) {
	fs := newFakeBuddyStore()
	fs.nicknames["known"] = 5
	svc := NewBuddyService(fs, presence.NewRegistry())

	err := svc.AddBuddy(context.Background(), 1, "known", "")
	require.NoError(t, err)
	require.Len(t, fs.added, 1)
	assert.Equal(t, uint32(5), fs.added[0].buddy)

	err = svc.AddBuddy(context.Background(), 1, "ghost", "")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestBlockBuddyUnknownNickname(t *testing.T) {
	fs := newFakeBuddyStore()
	svc := NewBuddyService(fs, presence.NewRegistry())

	res, err := svc.BlockBuddy(context.Background(), 1, "ghost")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Disposition)
}

func TestBlockBuddySuccess(t *testing.T) {
	fs := newFakeBuddyStore()
	fs.nicknames["target"] = 9
	svc := NewBuddyService(fs, presence.NewRegistry())

	res, err := svc.BlockBuddy(context.Background(), 1, "target")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Disposition)
	assert.Equal(t, uint32(9), res.BuddyUID)
}

func TestBroadcastStatusSkipsBlockers(t *testing.T) {
	fs := newFakeBuddyStore()
	fs.reverse[1] = []uint32{2, 3}
	fs.blockedByMap[3] = map[uint32]bool{1: true} // 3 has blocked 1

	reg := presence.NewRegistry()
	watcher2 := &fakePresenceSession{uid: 2, version: wire.ProtocolVersion82}
	watcher3 := &fakePresenceSession{uid: 3, version: wire.ProtocolVersion82}
	reg.Register(2, watcher2)
	reg.Register(3, watcher3)

	svc := NewBuddyService(fs, reg)
	require.NoError(t, svc.BroadcastStatus(context.Background(), 1, wire.StatusOnline, ""))

	assert.Len(t, watcher2.sent, 1)
	assert.Empty(t, watcher3.sent, "watcher3 blocked uid 1, so it must not receive uid 1's status")
}
