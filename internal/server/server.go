package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/palserver/paltalk-server/internal/config"
	"github.com/palserver/paltalk-server/internal/presence"
	"github.com/palserver/paltalk-server/internal/service"
	"github.com/palserver/paltalk-server/internal/store"
)

// Server owns the listening socket and every live connection, grounded in
// the teacher's oscar.Server: an accept loop handing each socket to its own
// goroutine, and a WaitGroup-tracked shutdown that waits for all of them to
// drain before returning.
type Server struct {
	cfg config.Config
	log *slog.Logger

	DB       *store.DB
	Registry *presence.Registry
	Users    *service.UserService
	Buddies  *service.BuddyService
	Rooms    *service.RoomService

	listener net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	connWg         sync.WaitGroup
}

// New wires a Server from its config and already-open store, constructing
// the service layer and presence registry it hands to every connection.
func New(cfg config.Config, db *store.DB, log *slog.Logger) *Server {
	registry := presence.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:            cfg,
		log:            log,
		DB:             db,
		Registry:       registry,
		Users:          service.NewUserService(db),
		Buddies:        service.NewBuddyService(db, registry),
		Rooms:          service.NewRoomService(db, registry),
		conns:          make(map[net.Conn]struct{}),
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
}

func (s *Server) logf(format string, args ...any) {
	s.log.Warn(fmt.Sprintf(format, args...))
}

// Addr returns the listener's bound address, or nil before ListenAndServe
// has started accepting connections.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe binds the configured address and accepts connections
// until the context is canceled or Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.log.Info("listening", "addr", s.cfg.ListenAddr)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdownCtx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logf("accept: %v", err)
			continue
		}

		s.mu.Lock()
		if len(s.conns) >= s.cfg.MaxConnections {
			s.mu.Unlock()
			_ = conn.Close()
			continue
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.connWg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.connWg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	c := newConnection(conn, s)
	if err := c.serve(s.shutdownCtx); err != nil {
		s.logf("connection %s: %v", conn.RemoteAddr(), err)
	}

	if c.UID() != 0 {
		s.Registry.Unregister(c.UID(), c)
		if err := s.DB.LeaveAllRooms(context.Background(), c.UID()); err != nil {
			s.logf("leave all rooms for uid=%d: %v", c.UID(), err)
		}
	}
}

// Shutdown stops accepting new connections and waits for every live
// connection to drain, clearing each one's room membership as it exits —
// the same teardown the source performs before closing its handles.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownCancel()

	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.connWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
