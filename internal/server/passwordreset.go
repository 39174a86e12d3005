package server

import (
	"context"
	"encoding/binary"
	"strings"

	"github.com/palserver/paltalk-server/wire"
)

// passwordResetFlow handles the forgot-password dialog, per §4.8's
// password-reset flow.
type passwordResetFlow struct{}

func (passwordResetFlow) OnEnter(ctx context.Context, c *Connection) error {
	payload := digits3(int(c.obfuscator.Challenge) + 0x1FD)
	return c.Send(wire.NewFrame(wire.PacketResetPassword, payload))
}

func (f passwordResetFlow) HandlePacket(ctx context.Context, c *Connection, fr wire.Frame) error {
	if acceptSilently(fr.Type) {
		return nil
	}
	switch fr.Type {
	case wire.PacketNewPassword:
		return f.handleNewPassword(ctx, c, fr)
	case wire.PacketPasswordHint:
		return f.handlePasswordHint(ctx, c, fr)
	default:
		return nil
	}
}

func (passwordResetFlow) handleNewPassword(ctx context.Context, c *Connection, fr wire.Frame) error {
	parts := strings.SplitN(string(fr.Body), "\n", 2)
	if len(parts) != 2 {
		return nil
	}

	oldPassword, err := c.obfuscator.Decode(1, parts[0])
	if err != nil {
		return nil
	}

	zeroChallenge := wire.NewObfuscator(wire.ProtocolVersion, 0, 0, nil)
	newPassword, err := zeroChallenge.Decode(1, parts[1])
	if err != nil {
		return nil
	}

	uid := c.UID()
	ok, err := c.server.DB.CheckPassword(ctx, uid, oldPassword)
	if err != nil {
		return err
	}
	if !ok {
		body := append(encodeU16(uint16(wire.PacketNewPassword)), encodeU16(0x63)...)
		return c.Send(wire.NewFrame(wire.PacketReturnCode, body))
	}

	if err := c.server.DB.SetPassword(ctx, uid, newPassword); err != nil {
		return err
	}
	body := append(encodeU16(uint16(wire.PacketNewPassword)), encodeU16(0)...)
	return c.Send(wire.NewFrame(wire.PacketReturnCode, body))
}

func (passwordResetFlow) handlePasswordHint(ctx context.Context, c *Connection, fr wire.Frame) error {
	if len(fr.Body) < 2 {
		return nil
	}
	questionIdx := int(binary.BigEndian.Uint16(fr.Body[0:2]))
	rest := string(fr.Body[2:])
	parts := strings.SplitN(rest, "\n", 2)
	if len(parts) != 2 {
		return nil
	}
	answer, hint := parts[0], parts[1]

	uid := c.UID()
	if err := c.server.DB.SetSecretQuestion(ctx, uid, questionIdx, answer); err != nil {
		return err
	}
	if err := c.server.DB.SetPasswordHint(ctx, uid, hint); err != nil {
		return err
	}
	return c.transitionFro(ctx)
}
