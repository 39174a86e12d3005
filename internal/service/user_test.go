package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palserver/paltalk-server/internal/store"
)

type fakeUserStore struct {
	nicknames    map[string]uint32
	users        map[uint32]store.User
	nextUID      uint32
	suggestCalls int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{nicknames: map[string]uint32{}, users: map[uint32]store.User{}, nextUID: 100}
}

func (f *fakeUserStore) LookupUID(ctx context.Context, nickname string) (uint32, error) {
	if uid, ok := f.nicknames[nickname]; ok {
		return uid, nil
	}
	return 0xffffffff, nil
}
func (f *fakeUserStore) NicknameInUse(ctx context.Context, nickname string) (bool, error) {
	_, ok := f.nicknames[nickname]
	return ok, nil
}
func (f *fakeUserStore) SuggestNickname(ctx context.Context, base string) (string, error) {
	f.suggestCalls++
	return base + "123", nil
}
func (f *fakeUserStore) RegisterUser(ctx context.Context, nu store.NewUser) (uint32, error) {
	f.nextUID++
	f.nicknames[nu.Nickname] = f.nextUID
	f.users[f.nextUID] = store.User{UID: f.nextUID, Nickname: nu.Nickname, Email: nu.Email}
	return f.nextUID, nil
}
func (f *fakeUserStore) LookupUser(ctx context.Context, uid uint32) (store.User, error) {
	u, ok := f.users[uid]
	if !ok {
		return store.User{}, store.ErrUserNotFound
	}
	return u, nil
}
func (f *fakeUserStore) UserExists(ctx context.Context, uid uint32) (bool, error) {
	_, ok := f.users[uid]
	return ok, nil
}
func (f *fakeUserStore) CheckPassword(ctx context.Context, uid uint32, password string) (bool, error) {
	return false, nil
}
func (f *fakeUserStore) SetPassword(ctx context.Context, uid uint32, password string) error { return nil }
func (f *fakeUserStore) SetPasswordHint(ctx context.Context, uid uint32, hint string) error { return nil }
func (f *fakeUserStore) SetSecretQuestion(ctx context.Context, uid uint32, questionIndex int, answer string) error {
	return nil
}
func (f *fakeUserStore) SecretQuestionFor(ctx context.Context, uid uint32) (store.SecretQuestion, error) {
	return store.SecretQuestion{}, nil
}
func (f *fakeUserStore) CheckQuestionResponse(ctx context.Context, uid uint32, answer string) (bool, error) {
	return false, nil
}
func (f *fakeUserStore) IsStaff(ctx context.Context, uid uint32) (bool, error) { return false, nil }
func (f *fakeUserStore) MarkLoggedIn(ctx context.Context, uid uint32) error    { return nil }
func (f *fakeUserStore) SetPrivacy(ctx context.Context, uid uint32, privacy byte) error {
	return nil
}
func (f *fakeUserStore) SearchUsers(ctx context.Context, field, partial string, limit int) ([]string, error) {
	return nil, nil
}
func (f *fakeUserStore) DeviceInList(ctx context.Context, uid uint32, deviceID string) (bool, error) {
	return false, nil
}
func (f *fakeUserStore) DeviceAdd(ctx context.Context, uid uint32, deviceID string) error { return nil }
func (f *fakeUserStore) DeviceIncLogins(ctx context.Context, uid uint32, deviceID string) error {
	return nil
}

func TestRegisterRejectsInvalidNickname(t *testing.T) {
	svc := NewUserService(newFakeUserStore())
	_, err := svc.Register(context.Background(), store.NewUser{Nickname: ""})
	assert.ErrorIs(t, err, ErrInvalidNickname)

	_, err = svc.Register(context.Background(), store.NewUser{Nickname: "_leadingunderscore"})
	assert.ErrorIs(t, err, ErrInvalidNickname)
}

func TestRegisterSucceeds(t *testing.T) {
	fs := newFakeUserStore()
	svc := NewUserService(fs)

	res, err := svc.Register(context.Background(), store.NewUser{Nickname: "newperson", Email: "n@x.com"})
	require.NoError(t, err)
	assert.NotZero(t, res.UID)
	assert.Empty(t, res.SuggestedNickname)
}

func TestRegisterSuggestsOnCollision(t *testing.T) {
	fs := newFakeUserStore()
	fs.nicknames["taken"] = 42
	svc := NewUserService(fs)

	res, err := svc.Register(context.Background(), store.NewUser{Nickname: "taken", Email: "x@x.com"})
	require.NoError(t, err)
	assert.Zero(t, res.UID, "a collision doesn't register anything")
	assert.Equal(t, "taken123", res.SuggestedNickname)
	assert.Equal(t, 1, fs.suggestCalls)
}

func TestEnsureDeviceReportsKnownness(t *testing.T) {
	fs := newFakeUserStore()
	svc := NewUserService(fs)

	known, err := svc.EnsureDevice(context.Background(), 1, "dev-a")
	require.NoError(t, err)
	assert.False(t, known, "fake store reports every device as unknown, but the call must still succeed")
}
