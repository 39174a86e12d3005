// Package server drives each TCP connection through the login →
// (registration | password_reset) → general flow state machine, grounded
// in the teacher's server/oscar package: a goroutine per connection reads
// frames into a channel, a select loop drains them alongside outbound
// traffic and shutdown signals, mirroring dispatchIncomingMessages.
package server

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/palserver/paltalk-server/internal/store"
	"github.com/palserver/paltalk-server/wire"
)

// outboxSize bounds how many frames can be queued for a slow reader before
// Send blocks; the teacher's equivalent channel is similarly small since a
// connection that can't keep up should exert backpressure, not buffer
// without limit.
const outboxSize = 64

// Connection is one live client socket and everything the protocol state
// machine needs to know about it. It implements presence.Session.
type Connection struct {
	conn   net.Conn
	server *Server

	mu              sync.RWMutex
	uid             uint32
	protocolVersion uint16
	status          uint32
	statusMsg       string
	deviceID        string
	serverIP        string
	user            store.User
	obfuscator      *wire.Obfuscator

	out    chan wire.Frame
	closed chan struct{}
	once   sync.Once

	flowStack []Flow
	flow      Flow
}

// newConnection builds a Connection for a freshly accepted socket. The
// check-digit LCG is seeded from the wall clock (time.Now in nanoseconds,
// truncated to 32 bits).
func newConnection(conn net.Conn, srv *Server) *Connection {
	challenge := uint16(1 + rand.Intn(226))
	seed := uint32(time.Now().UnixNano())
	return &Connection{
		conn:       conn,
		server:     srv,
		obfuscator: wire.NewObfuscator(wire.ProtocolVersion, challenge, seed, nil),
		out:        make(chan wire.Frame, outboxSize),
		closed:     make(chan struct{}),
	}
}

// UID implements presence.Session.
func (c *Connection) UID() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uid
}

func (c *Connection) setUID(uid uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uid = uid
}

// ProtocolVersion implements presence.Session.
func (c *Connection) ProtocolVersion() uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.protocolVersion
}

func (c *Connection) setProtocolVersion(v uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.protocolVersion = v
}

// Status implements presence.Session.
func (c *Connection) Status() (uint32, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status, c.statusMsg
}

func (c *Connection) setStatus(status uint32, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
	c.statusMsg = msg
}

func (c *Connection) cachedUser() store.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

func (c *Connection) setCachedUser(u store.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = u
}

func (c *Connection) setDeviceID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceID = id
}

func (c *Connection) getDeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceID
}

// setServerIP records the byte-swapped, little-endian server IP the
// client reported during LOGIN.
func (c *Connection) setServerIP(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serverIP = ip
}

func (c *Connection) getServerIP() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverIP
}

// Send implements presence.Session: enqueue f for delivery, non-blocking
// against a connection that has already started shutting down.
func (c *Connection) Send(f wire.Frame) error {
	select {
	case c.out <- f:
		return nil
	case <-c.closed:
		return fmt.Errorf("server: connection closed")
	}
}

// Kick implements presence.Session: enqueue a SERVER_DISCONNECT and close
// the connection once the writer has had a chance to drain it, per §4.9's
// kick flow.
func (c *Connection) Kick(reason string) {
	_ = c.Send(wire.NewFrame(wire.PacketServerDisconnect, []byte(reason)))
	time.AfterFunc(2*time.Second, c.close)
}

func (c *Connection) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// transitionTo installs a new flow, stashing the current one so
// transitionFro can pop back to it, and runs the new flow's entry action.
func (c *Connection) transitionTo(ctx context.Context, f Flow) error {
	c.mu.Lock()
	if c.flow != nil {
		c.flowStack = append(c.flowStack, c.flow)
	}
	c.flow = f
	c.mu.Unlock()
	return f.OnEnter(ctx, c)
}

// transitionFro pops the previously stashed flow and restores it.
func (c *Connection) transitionFro(ctx context.Context) error {
	c.mu.Lock()
	if len(c.flowStack) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("server: no flow to return to")
	}
	prev := c.flowStack[len(c.flowStack)-1]
	c.flowStack = c.flowStack[:len(c.flowStack)-1]
	c.flow = prev
	c.mu.Unlock()
	return nil
}

func (c *Connection) currentFlow() Flow {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flow
}

// serve runs the connection's full lifetime: entering the login flow,
// then looping frames in from the socket and out from c.out until the
// connection closes or the server shuts down.
func (c *Connection) serve(ctx context.Context) error {
	if err := c.transitionTo(ctx, &loginFlow{}); err != nil {
		return err
	}

	inCh := make(chan wire.Frame, 1)
	errCh := make(chan error, 1)
	go func() {
		defer close(inCh)
		defer close(errCh)
		for {
			f, err := wire.ReadFrame(c.conn)
			if err != nil {
				errCh <- err
				return
			}
			inCh <- f
			if f.Type == wire.PacketClientDisconnect {
				return
			}
		}
	}()

	for {
		select {
		case f, ok := <-inCh:
			if !ok {
				return nil
			}
			if f.Type == wire.PacketClientDisconnect {
				return nil
			}
			if err := c.currentFlow().HandlePacket(ctx, c, f); err != nil {
				c.server.logf("flow error uid=%d type=%#x: %v", c.UID(), f.Type, err)
			}
		case f := <-c.out:
			if err := wire.WriteFrame(c.conn, f.Type, f.Version, f.Body); err != nil {
				return err
			}
		case err := <-errCh:
			return err
		case <-c.closed:
			c.drainOutbox()
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// drainOutbox flushes any frames already queued (notably the
// SERVER_DISCONNECT enqueued by Kick) before the socket is torn down.
func (c *Connection) drainOutbox() {
	for {
		select {
		case f := <-c.out:
			_ = wire.WriteFrame(c.conn, f.Type, f.Version, f.Body)
		default:
			return
		}
	}
}
