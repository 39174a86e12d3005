package server

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/palserver/paltalk-server/wire"
)

// loginFlow is the handler installed on a fresh connection. It accepts
// version negotiation, nickname lookup, and the login handshake proper,
// per §4.8's login flow.
type loginFlow struct{}

func (loginFlow) OnEnter(ctx context.Context, c *Connection) error {
	return c.Send(wire.NewFrame(wire.PacketHello, nil))
}

func (f loginFlow) HandlePacket(ctx context.Context, c *Connection, fr wire.Frame) error {
	if acceptSilently(fr.Type) && fr.Type != wire.PacketOldClientHello && fr.Type != wire.PacketClientHello {
		return nil
	}
	switch fr.Type {
	case wire.PacketOldClientHello, wire.PacketClientHello:
		return f.handleHello(ctx, c, fr)
	case wire.PacketGetUID:
		return f.handleGetUID(ctx, c, fr)
	case wire.PacketInitialStatus, wire.PacketInitialStatus2:
		return f.handleInitialStatus(ctx, c, fr)
	case wire.PacketLogin:
		return f.handleLogin(ctx, c, fr)
	case wire.PacketUIDFontdepthEtc:
		return f.handleUIDFontdepthEtc(ctx, c, fr)
	case wire.PacketRegistration, wire.PacketPT5Registration:
		if err := c.transitionTo(ctx, &registrationFlow{}); err != nil {
			return err
		}
		if fr.Type == wire.PacketPT5Registration {
			return c.currentFlow().HandlePacket(ctx, c, fr)
		}
		return nil
	default:
		return nil
	}
}

func (loginFlow) handleHello(ctx context.Context, c *Connection, fr wire.Frame) error {
	c.setProtocolVersion(fr.Version)
	return c.Send(wire.NewFrame(wire.PacketHello, []byte("Hello-From:PaLTaLK")))
}

func (loginFlow) handleGetUID(ctx context.Context, c *Connection, fr wire.Frame) error {
	nickname := strings.TrimRight(string(fr.Body), "\x00")
	var uid uint32
	if strings.EqualFold(nickname, "newuser") {
		uid = wire.UIDNewUser
	} else {
		var err error
		uid, err = c.server.DB.LookupUID(ctx, nickname)
		if err != nil {
			return err
		}
	}
	body := wire.AppendField("", "uid", strconv.FormatUint(uint64(uid), 10))
	body = wire.AppendField(body, "nickname", nickname)
	return c.Send(wire.NewFrame(wire.PacketUIDResponse, []byte(body)))
}

// initialStatusBody is the fixed-prefix layout accepted by
// INITIAL_STATUS/INITIAL_STATUS_2: a uid, a status word, then the
// v1-encoded device identifier filling the remainder of the body.
type initialStatusBody struct {
	uid      uint32
	status   uint32
	deviceID string
}

func parseInitialStatus(body []byte) (initialStatusBody, error) {
	if len(body) < 8 {
		return initialStatusBody{}, fmt.Errorf("server: initial status: short body")
	}
	return initialStatusBody{
		uid:      binary.BigEndian.Uint32(body[0:4]),
		status:   binary.BigEndian.Uint32(body[4:8]),
		deviceID: string(body[8:]),
	}, nil
}

func (loginFlow) handleInitialStatus(ctx context.Context, c *Connection, fr wire.Frame) error {
	in, err := parseInitialStatus(fr.Body)
	if err != nil {
		return err
	}

	deviceChallenge := uint16(in.uid % 0x37)
	deviceObfuscator := wire.NewObfuscator(wire.ProtocolVersion, deviceChallenge, 0, nil)
	deviceID, err := deviceObfuscator.Decode(1, in.deviceID)
	if err != nil {
		deviceID = ""
	}

	user, err := c.server.DB.LookupUser(ctx, in.uid)
	if err != nil {
		body := wire.AppendField("", "msg", "no such user")
		_ = c.Send(wire.NewFrame(wire.PacketReturnCode, append(
			encodeU16(uint16(wire.PacketInitialStatus)), append(encodeU16(1), body...)...)))
		c.close()
		return fmt.Errorf("server: initial status: %w", err)
	}

	c.setCachedUser(user)
	c.setStatus(in.status, "")
	c.setDeviceID(deviceID)

	known, err := c.server.DB.DeviceInList(ctx, in.uid, deviceID)
	if err != nil {
		return err
	}

	challenge := c.obfuscator.Challenge
	var payload []byte
	if c.ProtocolVersion() >= wire.ProtocolVersion82 {
		c.obfuscator.GenerateCodebook()
		payload = append(payload, encodeU16(c.obfuscator.CB1Offset)...)
		payload = append(payload, encodeU16(c.obfuscator.CB2Step)...)
		payload = append(payload, encodeU16(c.obfuscator.CB3Step)...)
		payload = append(payload, make([]byte, 8)...)
	}
	payload = append(payload, []byte("0000")...)
	payload = append(payload, digits3(int(challenge)+0x1FD)...)

	if !known {
		q, err := c.server.DB.SecretQuestionFor(ctx, in.uid)
		if err == nil {
			payload = append(payload, '\n')
			payload = append(payload, q.Question...)
		}
	}

	return c.Send(wire.NewFrame(wire.PacketChallenge, payload))
}

func encodeU16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func digits3(v int) []byte {
	v = ((v % 1000) + 1000) % 1000
	return []byte{'0' + byte((v/100)%10), '0' + byte((v/10)%10), '0' + byte(v%10)}
}

// loginBody splits LOGIN's body into its newline-separated sections,
// tolerating the shorter anonymous-login form.
type loginBody struct {
	uid           uint32
	encPassword   string
	encServerIP   string
	encSecretAns  string
	addDevice     bool
	hasSecretPart bool
}

func parseLoginBody(body []byte) (loginBody, error) {
	if len(body) < 5 {
		return loginBody{}, fmt.Errorf("server: login: short body")
	}
	lb := loginBody{uid: binary.BigEndian.Uint32(body[0:4])}
	rest := string(body[4:])
	parts := strings.Split(rest, "\n")
	if len(parts) < 2 {
		return loginBody{}, fmt.Errorf("server: login: malformed body")
	}
	lb.encPassword = parts[0]
	lb.encServerIP = parts[1]
	if len(parts) >= 4 {
		lb.encSecretAns = parts[2]
		lb.addDevice = parts[3] == "add"
		lb.hasSecretPart = true
	}
	return lb, nil
}

func (f loginFlow) handleLogin(ctx context.Context, c *Connection, fr wire.Frame) error {
	lb, err := parseLoginBody(fr.Body)
	if err != nil {
		return err
	}
	user := c.cachedUser()
	if user.UID != lb.uid {
		return f.rejectLogin(c, "session uid mismatch")
	}

	password, err := c.obfuscator.Decode(1, lb.encPassword)
	if err != nil {
		return f.rejectLogin(c, "incorrect password")
	}

	ok, err := c.server.DB.CheckPassword(ctx, lb.uid, password)
	if err != nil {
		return err
	}
	if !ok {
		return f.rejectLogin(c, "incorrect password")
	}

	if serverIP, err := c.obfuscator.Decode(2, lb.encServerIP); err == nil {
		c.setServerIP(byteSwapIP(serverIP))
	}

	if lb.hasSecretPart {
		answer, err := c.obfuscator.Decode(1, lb.encSecretAns)
		if err == nil {
			if ok, _ := c.server.DB.CheckQuestionResponse(ctx, lb.uid, answer); ok && lb.addDevice {
				if err := c.server.DB.DeviceAdd(ctx, lb.uid, c.getDeviceID()); err != nil {
					c.server.logf("device add uid=%d: %v", lb.uid, err)
				}
			}
		}
	}
	if err := c.server.DB.DeviceIncLogins(ctx, lb.uid, c.getDeviceID()); err != nil {
		c.server.logf("device inc logins uid=%d: %v", lb.uid, err)
	}

	if incumbent, had := c.server.Registry.Register(lb.uid, c); had {
		incumbent.Kick("You have logged in from another location.")
	}
	c.setUID(lb.uid)

	if err := c.server.DB.MarkLoggedIn(ctx, lb.uid); err != nil {
		c.server.logf("mark logged in uid=%d: %v", lb.uid, err)
	}

	return c.Send(wire.NewFrame(wire.PacketLoginSuccess, nil))
}

func (loginFlow) rejectLogin(c *Connection, msg string) error {
	body := append(encodeU16(uint16(wire.PacketLogin)), encodeU16(0x63)...)
	body = append(body, msg...)
	return c.Send(wire.NewFrame(wire.PacketReturnCode, body))
}

// byteSwapIP reverses a 4-byte dotted-decimal-derived IP string's byte
// order, matching the source's little-endian re-storage of the decoded
// big-endian wire value. Non-4-byte inputs pass through unchanged.
func byteSwapIP(s string) string {
	b := []byte(s)
	if len(b) != 4 {
		return s
	}
	b[0], b[1], b[2], b[3] = b[3], b[2], b[1], b[0]
	return string(b)
}

func (loginFlow) handleUIDFontdepthEtc(ctx context.Context, c *Connection, fr wire.Frame) error {
	var requested uint32
	if len(fr.Body) >= 4 {
		requested = binary.BigEndian.Uint32(fr.Body[0:4])
	}

	uid := c.UID()
	current, err := c.server.DB.BanLevel(ctx, uid)
	if err != nil {
		return err
	}

	switch {
	case requested != 0 && int(requested) != current:
		if err := c.server.DB.SetBanLevel(ctx, uid, int(requested)); err != nil {
			return err
		}
		banBody := append(encodeU16(1), encodeU16(uint16(requested))...)
		_ = c.Send(wire.NewFrame(wire.PacketClientControl, banBody))
	case requested == 0 && current != 0:
		if err := c.server.DB.SetBanLevel(ctx, uid, 0); err != nil {
			return err
		}
		unbanBody := append(encodeU16(0), encodeU16(0)...)
		_ = c.Send(wire.NewFrame(wire.PacketClientControl, unbanBody))
	}

	return c.transitionTo(ctx, newGeneralFlow())
}
