package server

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palserver/paltalk-server/internal/store"
	"github.com/palserver/paltalk-server/wire"
)

func registrationInfoBody(nickname, password, email string, questionIdx int, answer, first, last string) []byte {
	// EachField (the parser on the receiving end) skips blank lines
	// entirely, so every positional field — including an unused answer —
	// needs a placeholder rather than an empty string.
	if answer == "" {
		answer = "-"
	}
	fields := []string{nickname, password, email, ""}
	fields[3] = itoa(questionIdx)
	fields = append(fields, answer, first, last)
	return []byte(strings.Join(fields, "\n"))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

func TestRegistrationSucceedsAndAssignsUID(t *testing.T) {
	srv := newTestServer(t)
	_, conn := dialedConnection(t, srv)

	sendFrame(t, conn, wire.PacketClientHello, wire.ProtocolVersion70, nil)
	_ = readFrame(t, conn) // HELLO
	_ = readFrame(t, conn) // HELLO echo

	sendFrame(t, conn, wire.PacketRegistration, wire.ProtocolVersion70, nil)
	doReg := readFrame(t, conn)
	assert.Equal(t, wire.PacketDoRegistration, doReg.Type)

	body := registrationInfoBody("brandnew", "secretpw", "b@x.com", 0, "", "Bran", "New")
	sendFrame(t, conn, wire.PacketRegistrationInfo, wire.ProtocolVersion70, body)

	result := readFrame(t, conn)
	assert.Equal(t, wire.PacketRegistrationSuccess, result.Type)
	assert.Len(t, result.Body, 4, "a successful registration replies with the new 4-byte uid")

	uid, err := srv.DB.LookupUID(context.Background(), "brandnew")
	require.NoError(t, err)
	assert.NotEqual(t, wire.UIDAll, uid)
}

func TestRegistrationNicknameCollisionSuggestsAlternate(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, err := srv.DB.RegisterUser(ctx, store.NewUser{Nickname: "taken", Email: "a@x.com", Password: "pw"})
	require.NoError(t, err)

	_, conn := dialedConnection(t, srv)
	sendFrame(t, conn, wire.PacketClientHello, wire.ProtocolVersion70, nil)
	_ = readFrame(t, conn)
	_ = readFrame(t, conn)

	sendFrame(t, conn, wire.PacketRegistration, wire.ProtocolVersion70, nil)
	_ = readFrame(t, conn)

	body := registrationInfoBody("taken", "otherpw", "c@x.com", 0, "", "Tak", "En")
	sendFrame(t, conn, wire.PacketRegistrationInfo, wire.ProtocolVersion70, body)

	result := readFrame(t, conn)
	assert.Equal(t, wire.PacketRegistrationNameUsed, result.Type)
	assert.NotEmpty(t, result.Body, "the collision reply carries a suggested alternate nickname")
}
