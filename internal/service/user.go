package service

import (
	"context"
	"fmt"
	"unicode"

	"github.com/palserver/paltalk-server/internal/store"
	"github.com/palserver/paltalk-server/wire"
)

// UserStore is the persistence surface UserService needs.
type UserStore interface {
	LookupUID(ctx context.Context, nickname string) (uint32, error)
	NicknameInUse(ctx context.Context, nickname string) (bool, error)
	SuggestNickname(ctx context.Context, base string) (string, error)
	RegisterUser(ctx context.Context, nu store.NewUser) (uint32, error)
	LookupUser(ctx context.Context, uid uint32) (store.User, error)
	UserExists(ctx context.Context, uid uint32) (bool, error)
	CheckPassword(ctx context.Context, uid uint32, password string) (bool, error)
	SetPassword(ctx context.Context, uid uint32, password string) error
	SetPasswordHint(ctx context.Context, uid uint32, hint string) error
	SetSecretQuestion(ctx context.Context, uid uint32, questionIndex int, answer string) error
	SecretQuestionFor(ctx context.Context, uid uint32) (store.SecretQuestion, error)
	CheckQuestionResponse(ctx context.Context, uid uint32, answer string) (bool, error)
	IsStaff(ctx context.Context, uid uint32) (bool, error)
	MarkLoggedIn(ctx context.Context, uid uint32) error
	SetPrivacy(ctx context.Context, uid uint32, privacy byte) error
	SearchUsers(ctx context.Context, field, partial string, limit int) ([]string, error)
	DeviceInList(ctx context.Context, uid uint32, deviceID string) (bool, error)
	DeviceAdd(ctx context.Context, uid uint32, deviceID string) error
	DeviceIncLogins(ctx context.Context, uid uint32, deviceID string) error
}

// ErrInvalidNickname is returned when a requested nickname fails the
// charset or length rules registration enforces.
var ErrInvalidNickname = fmt.Errorf("service: invalid nickname")

// UserService implements §4.4's account lifecycle operations that carry
// business rules beyond a bare store call: nickname validation with
// suggestion fallback, and registration field defaults.
type UserService struct {
	Store UserStore
}

// NewUserService constructs a UserService.
func NewUserService(s UserStore) *UserService {
	return &UserService{Store: s}
}

func validNicknameShape(nick string) bool {
	if nick == "" || len(nick) > wire.NicknameMax {
		return false
	}
	r := []rune(nick)[0]
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// RegisterResult reports what actually happened for a registration
// attempt: success, a validation failure, or a name-in-use suggestion.
type RegisterResult struct {
	UID               uint32
	SuggestedNickname string
	Err               error
}

// Register validates nu's nickname and, on a collision, proposes an
// alternate instead of failing outright — register_user's
// suggest-on-conflict behavior.
func (s *UserService) Register(ctx context.Context, nu store.NewUser) (RegisterResult, error) {
	if !validNicknameShape(nu.Nickname) {
		return RegisterResult{}, ErrInvalidNickname
	}

	inUse, err := s.Store.NicknameInUse(ctx, nu.Nickname)
	if err != nil {
		return RegisterResult{}, err
	}
	if inUse {
		suggestion, err := s.Store.SuggestNickname(ctx, nu.Nickname)
		if err != nil {
			return RegisterResult{}, err
		}
		return RegisterResult{SuggestedNickname: suggestion}, nil
	}

	uid, err := s.Store.RegisterUser(ctx, nu)
	if err != nil {
		return RegisterResult{}, err
	}
	return RegisterResult{UID: uid}, nil
}

// SearchUsersRecord runs a search and renders the record-format reply
// body search_users produces on the wire.
func (s *UserService) SearchUsersRecord(ctx context.Context, field, partial string, limit int) (string, error) {
	nicks, err := s.Store.SearchUsers(ctx, field, partial, limit)
	if err != nil {
		return "", err
	}
	body := ""
	for _, n := range nicks {
		body = wire.AppendValue(body, n)
	}
	return body, nil
}

// EnsureDevice records deviceID for uid if it's new, and always bumps its
// login counter, matching the login flow's device bookkeeping.
func (s *UserService) EnsureDevice(ctx context.Context, uid uint32, deviceID string) (known bool, err error) {
	known, err = s.Store.DeviceInList(ctx, uid, deviceID)
	if err != nil {
		return false, err
	}
	if !known {
		if err := s.Store.DeviceAdd(ctx, uid, deviceID); err != nil {
			return false, err
		}
	}
	if err := s.Store.DeviceIncLogins(ctx, uid, deviceID); err != nil {
		return false, err
	}
	return known, nil
}
