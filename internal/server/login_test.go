package server

import (
	"context"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palserver/paltalk-server/internal/config"
	"github.com/palserver/paltalk-server/internal/store"
	"github.com/palserver/paltalk-server/wire"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sqlite")
	db, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{ListenAddr: "127.0.0.1:0", MaxConnections: 10}
	return New(cfg, db, testLogger())
}

// dialedConnection wires a Connection to one end of an in-memory pipe and
// starts serving it in the background, returning the other end for the
// test to drive as a client would.
func dialedConnection(t *testing.T, srv *Server) (*Connection, net.Conn) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	c := newConnection(serverSide, srv)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		clientSide.Close()
		<-done
	})
	return c, clientSide
}

func readFrame(t *testing.T, conn net.Conn) wire.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	f, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	return f
}

func sendFrame(t *testing.T, conn net.Conn, pktType wire.PacketType, version uint16, body []byte) {
	t.Helper()
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, wire.WriteFrame(conn, pktType, version, body))
}

func parseUIDResponse(t *testing.T, body []byte) uint32 {
	t.Helper()
	var uid uint64
	wire.EachFieldKV(string(body), func(k, v string) {
		if k == "uid" {
			uid, _ = strconv.ParseUint(v, 10, 32)
		}
	})
	return uint32(uid)
}

// loginAsUser drives the login flow end to end (hello, get_uid,
// initial_status, login) and returns once LOGIN_SUCCESS (or a rejection)
// arrives, handing back every frame the server sent along the way.
func loginAsUser(t *testing.T, conn net.Conn, nickname, password, deviceID string, challenge uint16) []wire.Frame {
	t.Helper()
	var frames []wire.Frame

	// OnEnter already sent HELLO; drain it.
	frames = append(frames, readFrame(t, conn))

	sendFrame(t, conn, wire.PacketClientHello, wire.ProtocolVersion70, nil)
	frames = append(frames, readFrame(t, conn)) // HELLO echo

	sendFrame(t, conn, wire.PacketGetUID, wire.ProtocolVersion70, []byte(nickname))
	uidResp := readFrame(t, conn)
	frames = append(frames, uidResp)
	uid := parseUIDResponse(t, uidResp.Body)
	require.NotZero(t, uid)

	devObfuscator := wire.NewObfuscator(wire.ProtocolVersion, uint16(uid%0x37), 0, nil)
	encDevice, err := devObfuscator.Encode(1, deviceID)
	require.NoError(t, err)

	body := make([]byte, 0, 8+len(encDevice))
	body = append(body, encodeU32(uid)...)
	body = append(body, encodeU32(wire.StatusOnline)...)
	body = append(body, encDevice...)
	sendFrame(t, conn, wire.PacketInitialStatus, wire.ProtocolVersion70, body)

	challengeFrame := readFrame(t, conn)
	frames = append(frames, challengeFrame)

	passObfuscator := wire.NewObfuscator(wire.ProtocolVersion, challenge, 0, nil)
	encPassword, err := passObfuscator.Encode(1, password)
	require.NoError(t, err)
	ipObfuscator := wire.NewObfuscator(wire.ProtocolVersion, challenge, 0, nil)
	encIP, err := ipObfuscator.Encode(2, testServerIP)
	require.NoError(t, err)

	loginBody := append(encodeU32(uid), []byte(encPassword+"\n"+encIP)...)
	sendFrame(t, conn, wire.PacketLogin, wire.ProtocolVersion70, loginBody)

	result := readFrame(t, conn)
	frames = append(frames, result)
	return frames
}

// encodeU32 is defined in registration.go; reused here to build
// wire-format uint32 fields for request bodies.

// testServerIP is the raw 4-byte server IP loginAsUser reports during
// LOGIN, chosen so the byte-swap assertion is unambiguous.
const testServerIP = "\x01\x02\x03\x04"

func TestLoginHappyPath(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	uid, err := srv.DB.RegisterUser(ctx, store.NewUser{
		Nickname: "loginuser", Email: "l@x.com", Password: "correcthorse",
	})
	require.NoError(t, err)

	c, conn := dialedConnection(t, srv)
	// Read the Challenge field directly to build a matching client-side
	// encoding, the same way a real client would learn it from the
	// CHALLENGE packet's trailing 3 digits (+0x1FD) instead.
	challenge := c.obfuscator.Challenge

	frames := loginAsUser(t, conn, "loginuser", "correcthorse", "device-123", challenge)
	last := frames[len(frames)-1]
	assert.Equal(t, wire.PacketLoginSuccess, last.Type)
	assert.Equal(t, uid, c.UID())

	online, ok := srv.Registry.Lookup(uid)
	require.True(t, ok)
	assert.Same(t, c, online)

	assert.Equal(t, byteSwapIP(testServerIP), c.getServerIP(), "login records the byte-swapped server IP")
}

func TestLoginWrongPasswordIsRejected(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, err := srv.DB.RegisterUser(ctx, store.NewUser{
		Nickname: "wrongpassuser", Email: "w@x.com", Password: "righthorse",
	})
	require.NoError(t, err)

	c, conn := dialedConnection(t, srv)
	challenge := c.obfuscator.Challenge

	frames := loginAsUser(t, conn, "wrongpassuser", "wrongpassword", "device-456", challenge)
	last := frames[len(frames)-1]
	assert.Equal(t, wire.PacketReturnCode, last.Type)
	assert.Zero(t, c.UID(), "a rejected login never assigns a uid to the connection")
	assert.True(t, strings.Contains(string(last.Body), "incorrect password"))
}
