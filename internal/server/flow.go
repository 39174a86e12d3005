package server

import (
	"context"

	"github.com/palserver/paltalk-server/wire"
)

// Flow is one of the four installed-handler states the spec describes:
// login, registration, password_reset, general. Each models the packet
// types it accepts and the reply sequence that follows.
type Flow interface {
	// OnEnter runs once when the flow becomes active, typically sending a
	// transition packet to prompt the client (HELLO, DO_REGISTRATION, …).
	OnEnter(ctx context.Context, c *Connection) error
	// HandlePacket processes one frame while this flow is installed.
	HandlePacket(ctx context.Context, c *Connection, f wire.Frame) error
}

// acceptSilently is shared by every flow for the handful of packet types
// that are always accepted without action: client version probes the
// server doesn't need to react to.
func acceptSilently(t wire.PacketType) bool {
	switch t {
	case wire.PacketChecksums, wire.PacketNewChecksums, wire.PacketVersionInfo,
		wire.PacketVersions, wire.PacketClientHello, wire.PacketOldClientHello,
		wire.PacketPing, wire.PacketIncompatible3PApp, wire.PacketRegistryIntValue:
		return true
	default:
		return false
	}
}
