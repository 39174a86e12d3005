// Package wire implements the Paltalk-family binary wire protocol: packet
// framing, the textual record format carried in many packet bodies, and the
// two generations of field obfuscation used to mask credentials in transit.
package wire

// UID sentinel values. Most real accounts satisfy UIDMin <= uid <= 0x7ffffffe;
// values outside that range (besides UIDNotFound and UIDPaltalkNotifier) are
// errors.
const (
	UIDAll              uint32 = 0xffffffff
	UIDNotFound         uint32 = 0xfffffffe
	UIDPaltalk          uint32 = 0
	UIDPaltalkNotifier  uint32 = 0xffffffe4
	UIDNewUser          uint32 = 0x7fffffff
	UIDMin              uint32 = 2
)

// IsErrorUID mirrors the source's UID_IS_ERROR macro: zero is always an
// error, and any value with the high bit set is an error except for
// UIDNotFound and UIDPaltalkNotifier.
func IsErrorUID(uid uint32) bool {
	if uid == 0 {
		return true
	}
	if uid>>31 != 0 && uid != UIDNotFound && uid != UIDPaltalkNotifier {
		return true
	}
	return false
}

// Room type tags (the `r` column's structural counterpart).
const (
	RoomTypeText         = 0
	RoomTypePrivateVoice = 1
	RoomTypeVoice        = 3
	RoomTypePrivateText  = 5
	RoomTypeAnonymous    = 7
)

// Virtual, hardcoded room categories synthesized at list time rather than
// stored as ordinary rows with a stable membership.
const (
	CategoryTop      uint32 = 0x7530
	CategoryFeatured uint32 = 0x7594
)

const (
	AllRooms      uint32 = 0xffffffff
	AllCategories uint32 = 0xffffffff
)

// Presence status words, as carried in BUDDY_STATUSCHANGE and friends.
const (
	StatusBlocked   uint32 = 0xffffffff
	StatusOffline   uint32 = 0x00000000
	StatusOnline    uint32 = 0x0000001e
	StatusAway      uint32 = 0x00000046
	StatusDND       uint32 = 0x0000005a
	StatusInvisible uint32 = 0x0000006e
)

const (
	NicknameMax  = 26
	StatusMsgMax = 50
)

// Protocol version codes a client may advertise in a packet header. None of
// these are ever rejected outright; they select wire-compatibility branches
// (challenge format, codebook availability, status message inclusion, …).
const (
	ProtocolVersion   uint16 = 0xdead // sent by the server itself
	ProtocolVersion50 uint16 = 0x0047
	ProtocolVersion51 uint16 = 0x004b
	ProtocolVersion70 uint16 = 0x004f
	ProtocolVersion80 uint16 = 0x0053
	ProtocolVersion82 uint16 = 0x0056
	ProtocolVersion90 uint16 = 0x0057
	ProtocolVersion91 uint16 = 0x0058
)

// PacketType identifies the body layout and handling rules for a frame.
// Values and names track the reverse-engineered protocol; client->server
// and server->client types share one numeric space and are disambiguated
// only by direction of travel and the active flow.
type PacketType uint16

// Client -> server packet types.
const (
	PacketFileXferRecvInit    PacketType = 0x0000
	PacketFileXferReject      PacketType = 0xec76
	PacketFileXferSendInit    PacketType = 0xec77
	PacketSearchRoom          PacketType = 0xf510
	PacketGetServiceURL       PacketType = 0xf5d8
	PacketVersionInfo         PacketType = 0xf7b0
	PacketNewChecksums        PacketType = 0xf7b1
	PacketIncompatible3PApp   PacketType = 0xf7b3
	PacketChecksums           PacketType = 0xf7b5
	PacketRegistryIntValue    PacketType = 0xf7c9
	PacketVersions            PacketType = 0xf7ca
	PacketUIDFontdepthEtc     PacketType = 0xf7cc
	PacketSendGlobalNumbers   PacketType = 0xfa24
	PacketRegistrationInfo    PacketType = 0xfa6a
	PacketRegistrationChalng  PacketType = 0xfa73
	PacketRegistration        PacketType = 0xfa74
	PacketCommencingAutojoin  PacketType = 0xfb00
	// PacketClientActionStatus reports back which of the forced client
	// actions requested by PacketClientAction the client actually took.
	PacketClientActionStatus PacketType = 0xfb0a
	PacketVerifyEmail        PacketType = 0xfb75
	PacketEmailVerified      PacketType = 0xfb76
	PacketNewPassword        PacketType = 0xfb78
	PacketLogin              PacketType = 0xfb84
	PacketGetUID             PacketType = 0xfb95
	PacketInitialStatus      PacketType = 0xfb96
	PacketInitialStatus2     PacketType = 0xfba1
	PacketClientDisconnect   PacketType = 0xfbb4
	PacketRoomClose          PacketType = 0xfc54
	PacketRoomNewUserMic     PacketType = 0xfc5c
	PacketRoomReddotVideo    PacketType = 0xfc5d
	PacketRoomReddotText     PacketType = 0xfc5e
	PacketRoomBanNick        PacketType = 0xfc66
	PacketRoomUnbanUser      PacketType = 0xfc67
	PacketRoomBanUser        PacketType = 0xfc68
	PacketRoomUnbounceUser   PacketType = 0xfc71
	PacketRoomGetAdminInfo   PacketType = 0xfc7c
	PacketChangeStatus       PacketType = 0xfd94
	PacketUnblockBuddy       PacketType = 0xfdf8
	PacketGetPrivacy         PacketType = 0xfe02
	PacketBlockBuddy         PacketType = 0xfe0c
	PacketSetPrivacy         PacketType = 0xfe66
	PacketRoomHandDown       PacketType = 0xfe71
	PacketRoomHandUp         PacketType = 0xfe72
	PacketRoomUnreddotUser   PacketType = 0xfe73
	PacketRoomIgnoreUser     PacketType = 0xfe74
	PacketRoomBounceReason   PacketType = 0xfe7a
	PacketRoomMute           PacketType = 0xfe81
	PacketRoomLowerAllHands  PacketType = 0xfe82
	PacketRoomReddotUser     PacketType = 0xfe83
	PacketRoomBounceUser     PacketType = 0xfe84
	PacketRoomInviteOut      PacketType = 0xfe98
	PacketRoomSetAllMics     PacketType = 0xfe9d
	PacketRoomSetTopic       PacketType = 0xfea1
	PacketRoomMessageOut     PacketType = 0xfea2
	PacketListSubcategory    PacketType = 0xfeaf
	PacketNewListCategory    PacketType = 0xfeb0
	PacketListCategory       PacketType = 0xfeb6
	PacketRoomLeave          PacketType = 0xfec0
	PacketRoomJoinAsAdmin2   PacketType = 0xfec3
	PacketRoomJoinAsAdmin    PacketType = 0xfec4
	PacketRoomJoin           PacketType = 0xfeca
	PacketRoomReportUser     PacketType = 0xfecf
	PacketRoomPrivateInvite  PacketType = 0xfed2
	PacketRoomCreate         PacketType = 0xfed4
	PacketSendInvite         PacketType = 0xff38
	PacketSetBuddyDisplay    PacketType = 0xff59
	PacketPing               PacketType = 0xff5e
	PacketNudgeOut           PacketType = 0xff7b
	PacketRegistrationAdInfo PacketType = 0xff7e
	PacketClientHello        PacketType = 0xff9b
	PacketPasswordHint       PacketType = 0xffb9
	PacketSearchUser         PacketType = 0xffbb
	PacketUnknownUser        PacketType = 0xffbc
	PacketAddBuddy           PacketType = 0xffbd
	PacketRemoveBuddy        PacketType = 0xffbe
	PacketUpdateProfile      PacketType = 0xffbf
	PacketAnnouncement       PacketType = 0xffd9
	PacketPersonalsMsgOut    PacketType = 0xffe6
	PacketIMOut              PacketType = 0xffec

	// PT5-specific client -> server.
	PacketPT5Registration PacketType = 0xfb6e
	PacketOldClientHello  PacketType = 0xff9c
)

// Server -> client packet types.
const (
	PacketIMIn                  PacketType = 0x0014
	PacketPersonalsMsgIn        PacketType = 0x001a
	PacketKickUser              PacketType = 0x002a
	PacketBuddyRemoved          PacketType = 0x0042
	PacketBuddyList             PacketType = 0x0043
	PacketSearchResults2        PacketType = 0x0044
	PacketSearchResults         PacketType = 0x0045
	PacketReturnCode            PacketType = 0x0064
	PacketCountryCoreg          PacketType = 0x0065
	PacketHello                 PacketType = 0x0075
	PacketUpgrade               PacketType = 0x0078
	PacketNudgeIn               PacketType = 0x0085
	PacketRoomJoined            PacketType = 0x0136
	PacketRoomUserJoined        PacketType = 0x0137
	PacketRoomTransmittingVideo PacketType = 0x0138
	PacketRoomMediaServer       PacketType = 0x013b
	PacketRoomUserLeft          PacketType = 0x0140
	PacketCategoryCounts        PacketType = 0x014b
	PacketRoomList              PacketType = 0x014c
	PacketNewRoomList           PacketType = 0x0150
	PacketSubcategoryRoomList   PacketType = 0x0151
	PacketRoomUserlist          PacketType = 0x0154
	PacketRoomMessageIn         PacketType = 0x015e
	PacketRoomTopic             PacketType = 0x015f
	PacketRoomSetMic            PacketType = 0x0163
	PacketRoomInviteIn          PacketType = 0x0168
	PacketTCPVoiceRecon         PacketType = 0x0176
	PacketRoomClosed            PacketType = 0x017c
	PacketRoomUserReddotOn      PacketType = 0x017d
	PacketRoomUserMute          PacketType = 0x017f
	PacketRoomIgnore            PacketType = 0x018c
	PacketRoomUserReddotOff     PacketType = 0x018d
	PacketRoomUserHandUp        PacketType = 0x018e
	PacketRoomUserHandDown      PacketType = 0x018f
	PacketBuddyStatusChange     PacketType = 0x0190
	PacketUserData              PacketType = 0x019a
	PacketVerifyPrivacy         PacketType = 0x019b
	PacketCategoryList          PacketType = 0x019c
	PacketSubcategoryList       PacketType = 0x019e
	PacketResetParentalCtrls    PacketType = 0x019f
	PacketBlockResponse         PacketType = 0x01f4
	PacketBlockedBuddies        PacketType = 0x01fe
	PacketUserStatus            PacketType = 0x026c
	PacketForcedIM              PacketType = 0x0294
	PacketBannerInterval        PacketType = 0x02b2
	PacketRoomBannerURL         PacketType = 0x0320
	PacketTargetBannerIM        PacketType = 0x032a
	PacketRoomAdminInfo         PacketType = 0x0384
	PacketServerDisconnect      PacketType = 0x044c
	PacketUIDResponse           PacketType = 0x046b
	PacketChallenge             PacketType = 0x0474
	PacketResetPassword         PacketType = 0x0488
	PacketExpirationInDays      PacketType = 0x048d
	PacketSubscriptionExpired   PacketType = 0x048e
	PacketLoginSuccess          PacketType = 0x04a6
	// PacketPrepareClientAction arms a challenge the client must echo back
	// before PacketClientAction's forced action is allowed to take effect.
	PacketPrepareClientAction PacketType = 0x04ec
	// PacketClientAction is a forced client-side action historically used
	// as a blunt anti-abuse measure; the two defined payload words request
	// a forced shutdown or heap exhaustion, followed by the v1-encoded
	// target uid.
	PacketClientAction         PacketType = 0x04f6
	PacketRoomPremium          PacketType = 0x0528
	PacketDoRegistration       PacketType = 0x058c
	PacketRegistrationSuccess  PacketType = 0x05a0
	PacketRegistrationFailed   PacketType = 0x05a1
	PacketRegistrationNameUsed PacketType = 0x05aa
	PacketGlobalNumbers        PacketType = 0x05dc
	PacketClientControl        PacketType = 0x0834
	PacketGetRegistryInt       PacketType = 0x0837
	PacketSetRegistryInt       PacketType = 0x0838
	PacketDeleteRegistryKey    PacketType = 0x0839
	PacketRoomUnknownEncoded   PacketType = 0x084a
	PacketInteropURL           PacketType = 0x0850
	PacketPopupURL             PacketType = 0x09c4
	PacketSpecialOffer         PacketType = 0x09d8
	PacketServiceURL           PacketType = 0x0a28
	PacketBuddyGroupsList      PacketType = 0x0a8c
	PacketBuddyGroupMembers    PacketType = 0x0a98
	PacketRoomSearchResults    PacketType = 0x0af0
	PacketMyRoomInfo           PacketType = 0x0bc2
	PacketFileXferRequest      PacketType = 0x1389
	PacketFileXferRefused      PacketType = 0x138b
	PacketFileXferAccepted     PacketType = 0x138c
	PacketFileXferError        PacketType = 0x138d
	PacketPubUIDOut            PacketType = 0x1777
	PacketPublishStart         PacketType = 0x17d4
	PacketPublishStop          PacketType = 0x17de
	PacketViewVideoParams      PacketType = 0x17e8
	PacketInviteBother         PacketType = 0xfe4f
	PacketEmailBother          PacketType = 0xfe50
	PacketSetDisplayName       PacketType = 0xfe59
	PacketRedirect             PacketType = 0xff89
	PacketSearchError          PacketType = 0xffbb
	PacketSearchResults3       PacketType = 0xffbf

	// PT5-specific server -> client.
	PacketPT5InviteStatus     PacketType = 0x00c8
	PacketPT5TellYourFriends  PacketType = 0x00c9
	PacketPT5GrantRoomAdmin   PacketType = 0x0172
	PacketPT5SendLogin        PacketType = 0xffb1
)
