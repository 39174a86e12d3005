package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palserver/paltalk-server/wire"
)

func TestRegisterUserAndLookup(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	uid, err := db.RegisterUser(ctx, NewUser{
		Nickname: "alice", Email: "alice@example.com", First: "Alice", Last: "A", Password: "hunter2",
	})
	require.NoError(t, err)
	assert.NotZero(t, uid)

	got, err := db.LookupUser(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Nickname)
	assert.Equal(t, "alice@example.com", got.Email)

	lookedUpUID, err := db.LookupUID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uid, lookedUpUID)
}

func TestRegisterUserDuplicateNickname(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.RegisterUser(ctx, NewUser{Nickname: "bob", Email: "b@x.com", Password: "pw"})
	require.NoError(t, err)

	_, err = db.RegisterUser(ctx, NewUser{Nickname: "bob", Email: "other@x.com", Password: "pw2"})
	assert.ErrorIs(t, err, ErrNicknameInUse)
}

func TestLookupUIDNotFoundReturnsUIDAll(t *testing.T) {
	db := openTestDB(t)
	uid, err := db.LookupUID(context.Background(), "nosuchuser")
	require.NoError(t, err)
	assert.Equal(t, wire.UIDAll, uid)
	assert.True(t, wire.IsErrorUID(uid))
}

func TestCheckPassword(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	uid, err := db.RegisterUser(ctx, NewUser{Nickname: "carol", Email: "c@x.com", Password: "correct-horse"})
	require.NoError(t, err)

	ok, err := db.CheckPassword(ctx, uid, "correct-horse")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.CheckPassword(ctx, uid, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	// Unknown uid is a non-match, not an error.
	ok, err = db.CheckPassword(ctx, 999999, "anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetPassword(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	uid, err := db.RegisterUser(ctx, NewUser{Nickname: "dave", Email: "d@x.com", Password: "old"})
	require.NoError(t, err)

	require.NoError(t, db.SetPassword(ctx, uid, "new"))

	ok, err := db.CheckPassword(ctx, uid, "old")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = db.CheckPassword(ctx, uid, "new")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSuggestNicknameOnCollision(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.RegisterUser(ctx, NewUser{Nickname: "erin", Email: "e@x.com", Password: "pw"})
	require.NoError(t, err)

	suggestion, err := db.SuggestNickname(ctx, "erin")
	require.NoError(t, err)
	assert.NotEqual(t, "erin", suggestion)
	assert.Contains(t, suggestion, "erin")

	free, err := db.SuggestNickname(ctx, "neverused")
	require.NoError(t, err)
	assert.Equal(t, "neverused", free)
}

func TestSecretQuestionAndAnswer(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	uid, err := db.RegisterUser(ctx, NewUser{Nickname: "frank", Email: "f@x.com", Password: "pw"})
	require.NoError(t, err)

	require.NoError(t, db.SetSecretQuestion(ctx, uid, 2, "Luigi's"))

	sq, err := db.SecretQuestionFor(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 2, sq.Index)
	assert.Contains(t, sq.Question, "restaurant")

	ok, err := db.CheckQuestionResponse(ctx, uid, "luigi's")
	require.NoError(t, err)
	assert.True(t, ok, "answer check is case-insensitive")

	ok, err = db.CheckQuestionResponse(ctx, uid, "wrong answer")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupUserNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.LookupUser(context.Background(), 424242)
	assert.True(t, errors.Is(err, ErrUserNotFound))
}

func TestSearchUsersRejectsUnknownField(t *testing.T) {
	db := openTestDB(t)
	_, err := db.SearchUsers(context.Background(), "password", "x", 10)
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestSearchUsersExcludesPrivateAccounts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	pubUID, err := db.RegisterUser(ctx, NewUser{Nickname: "gregpublic", Email: "g@x.com", Password: "pw"})
	require.NoError(t, err)
	privUID, err := db.RegisterUser(ctx, NewUser{Nickname: "gregprivate", Email: "g2@x.com", Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, db.SetPrivacy(ctx, privUID, 'P'))
	_ = pubUID

	results, err := db.SearchUsers(ctx, "nick", "greg", 10)
	require.NoError(t, err)
	assert.Contains(t, results, "gregpublic")
	assert.NotContains(t, results, "gregprivate")
}
