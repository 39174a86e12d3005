package store

import "errors"

// Sentinel errors surfaced by the store; callers check these with
// errors.Is rather than matching on driver-specific error types.
var (
	ErrUserNotFound  = errors.New("store: user not found")
	ErrNicknameInUse = errors.New("store: nickname already in use")
	ErrRoomNotFound  = errors.New("store: room not found")
	ErrNotRoomMember = errors.New("store: uid is not a member of the room")
	ErrNotRoomAdmin  = errors.New("store: uid is not an admin of the room")
	ErrInvalidField  = errors.New("store: search field is not searchable")
)

// User is the persisted account record. Field names and semantics mirror
// the `users` table and its 1:1 `secrets` row, minus the password material
// itself (see Credentials).
type User struct {
	UID                     uint32
	Nickname                string
	Email                   string
	First                   string
	Last                    string
	Privacy                 byte // 'A', 'T', or 'P'
	Verified                bool
	Random                  int
	Paid1                   byte // 'N', 'Y', '6', or 'E'
	GetOffersFromUs         bool
	GetOffersFromAffiliates bool
	Banners                 bool
	Admin                   bool
	Staff                   bool
	Created                 string
	LastLogin               string
}

// IsStaff reports whether this user is an admin or support account.
func (u User) IsStaff() bool {
	return u.Admin || u.Staff
}

// NewUser carries the fields a caller supplies at registration time; the
// store fills in defaults (privacy, paid1, created) per §4.4.
type NewUser struct {
	Nickname string
	Email    string
	First    string
	Last     string
	Password string
}

// SecretQuestion pairs a canned question with the user's chosen index.
type SecretQuestion struct {
	Index    int
	Question string
}

// Room is a chat room's persisted configuration.
type Room struct {
	ID          uint32
	Category    uint32
	Subcategory uint32
	Lang        string
	Rating      byte
	Voice       bool
	Private     bool
	Locked      bool
	Color       string
	Name        string
	Mike        bool
	Text        bool
	Video       bool
	Topic       string
	TopicSetter uint32
	Code        int
	Password    string
	Created     string
}

// RoomCount pairs a category id with how many rooms it holds, as returned
// by RoomCountsByCategory.
type RoomCount struct {
	Category uint32
	Count    int
}

// BuddyEntry is one row of a buddy or block listing: the edge's target
// account joined with the fields send_buddy_list projects to the wire.
// Display is only meaningful for buddy edges; block edges carry no
// per-edge override.
type BuddyEntry struct {
	UID      uint32
	Display  string
	Nickname string
	First    string
	Last     string
	Email    string
	Verified bool
	Paid1    byte
	Admin    bool
	Staff    bool
}
