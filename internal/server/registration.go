package server

import (
	"context"
	"strconv"
	"strings"

	"github.com/palserver/paltalk-server/internal/service"
	"github.com/palserver/paltalk-server/internal/store"
	"github.com/palserver/paltalk-server/wire"
)

// registrationFlow handles new-account creation, per §4.8's registration
// flow. v5 clients normally suppress their registration dialog, so they get
// a fabricated RETURN_CODE on entry instead of DO_REGISTRATION.
type registrationFlow struct{}

func isV5(c *Connection) bool {
	v := c.ProtocolVersion()
	return v == wire.ProtocolVersion50 || v == wire.ProtocolVersion51
}

func (registrationFlow) OnEnter(ctx context.Context, c *Connection) error {
	if isV5(c) {
		body := append(encodeU16(uint16(wire.PacketDoRegistration)), encodeU16(0)...)
		return c.Send(wire.NewFrame(wire.PacketReturnCode, body))
	}

	challenge := c.obfuscator.Challenge
	var payload []byte
	if c.ProtocolVersion() >= wire.ProtocolVersion82 {
		c.obfuscator.GenerateCodebook()
		payload = append(payload, encodeU16(c.obfuscator.CB1Offset)...)
		payload = append(payload, encodeU16(c.obfuscator.CB2Step)...)
		payload = append(payload, encodeU16(c.obfuscator.CB3Step)...)
	}
	payload = append(payload, digits3(int(challenge)+0x1FD)...)
	return c.Send(wire.NewFrame(wire.PacketDoRegistration, payload))
}

func (f registrationFlow) HandlePacket(ctx context.Context, c *Connection, fr wire.Frame) error {
	if acceptSilently(fr.Type) {
		return nil
	}
	switch fr.Type {
	case wire.PacketRegistrationChalng:
		return f.handleChallenge(ctx, c, fr)
	case wire.PacketRegistrationInfo:
		return f.handleInfo(ctx, c, fr)
	case wire.PacketRegistrationAdInfo:
		return f.handleAdInfo(ctx, c, fr)
	case wire.PacketPT5Registration:
		return f.handlePT5(ctx, c, fr)
	default:
		return nil
	}
}

func (registrationFlow) handleChallenge(ctx context.Context, c *Connection, fr wire.Frame) error {
	decoded, err := c.obfuscator.Decode(1, string(fr.Body))
	if err != nil {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(decoded))
	if err != nil {
		return nil
	}
	c.obfuscator.Challenge = uint16(1 + n)
	return nil
}

// registrationFields mirrors REGISTRATION_INFO's fixed field order.
type registrationFields struct {
	nickname     string
	password     string
	email        string
	questionIdx  int
	answer       string
	first        string
	last         string
}

func parseRegistrationInfo(c *Connection, body []byte) (registrationFields, error) {
	var raw []string
	wire.EachField(string(body), func(i int, line string) {
		raw = append(raw, line)
	})
	if len(raw) < 7 {
		return registrationFields{}, store.ErrInvalidField
	}

	decode := func(variant int, s string) string {
		v, err := c.obfuscator.Decode(variant, s)
		if err != nil {
			return s
		}
		return v
	}

	idx, _ := strconv.Atoi(raw[3])
	return registrationFields{
		nickname:    raw[0],
		password:    decode(2, raw[1]),
		email:       decode(2, raw[2]),
		questionIdx: idx,
		answer:      decode(2, raw[4]),
		first:       raw[5],
		last:        raw[6],
	}, nil
}

func (registrationFlow) handleInfo(ctx context.Context, c *Connection, fr wire.Frame) error {
	fields, err := parseRegistrationInfo(c, fr.Body)
	if err != nil {
		return c.Send(wire.NewFrame(wire.PacketRegistrationFailed, nil))
	}

	result, err := c.server.Users.Register(ctx, store.NewUser{
		Nickname: fields.nickname,
		Email:    fields.email,
		First:    fields.first,
		Last:     fields.last,
		Password: fields.password,
	})
	if err != nil {
		if err == service.ErrInvalidNickname {
			return c.Send(wire.NewFrame(wire.PacketRegistrationFailed, nil))
		}
		return err
	}
	if result.SuggestedNickname != "" {
		return c.Send(wire.NewFrame(wire.PacketRegistrationNameUsed, []byte(result.SuggestedNickname)))
	}

	if fields.questionIdx > 0 {
		if err := c.server.DB.SetSecretQuestion(ctx, result.UID, fields.questionIdx, fields.answer); err != nil {
			c.server.logf("set secret question uid=%d: %v", result.UID, err)
		}
	}

	body := encodeU32(result.UID)
	return c.Send(wire.NewFrame(wire.PacketRegistrationSuccess, body))
}

func encodeU32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func (registrationFlow) handleAdInfo(ctx context.Context, c *Connection, fr wire.Frame) error {
	if strings.Contains(string(fr.Body), "&success=1") {
		return c.transitionFro(ctx)
	}
	return nil
}

func (registrationFlow) handlePT5(ctx context.Context, c *Connection, fr wire.Frame) error {
	fields := map[string]string{}
	wire.EachFieldKV(string(fr.Body), func(k, v string) {
		fields[k] = v
	})

	result, err := c.server.Users.Register(ctx, store.NewUser{
		Nickname: fields["nickname"],
		Email:    fields["email"],
		First:    fields["first"],
		Last:     fields["last"],
		Password: fields["password"],
	})
	if err != nil || result.SuggestedNickname != "" {
		body := append(encodeU16(uint16(wire.PacketPT5Registration)), encodeU16(1)...)
		return c.Send(wire.NewFrame(wire.PacketReturnCode, body))
	}

	body := append(encodeU16(uint16(wire.PacketPT5Registration)), encodeU16(0)...)
	if err := c.Send(wire.NewFrame(wire.PacketReturnCode, body)); err != nil {
		return err
	}
	return c.Send(wire.NewFrame(wire.PacketPT5SendLogin, nil))
}
