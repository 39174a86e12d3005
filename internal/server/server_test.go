package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palserver/paltalk-server/internal/config"
	"github.com/palserver/paltalk-server/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListenAndServeAcceptsConnections(t *testing.T) {
	db := openMigratedTestDB(t)
	cfg := config.Config{ListenAddr: "127.0.0.1:0", MaxConnections: 10}
	srv := New(cfg, db, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool {
		return srv.Addr() != nil
	}, 2*time.Second, 10*time.Millisecond)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// The connection should stay open long enough to receive the initial
	// HELLO frame sent by the login flow's OnEnter.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 6)
	_, err = io.ReadFull(conn, buf)
	assert.NoError(t, err)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	require.NoError(t, srv.Shutdown(shutdownCtx))
	cancel()

	err = <-serveErr
	assert.True(t, err == nil || err == net.ErrClosed || isUseOfClosedConn(err))
}

func TestListenAndServeRejectsOverCapacity(t *testing.T) {
	db := openMigratedTestDB(t)
	cfg := config.Config{ListenAddr: "127.0.0.1:0", MaxConnections: 0}
	srv := New(cfg, db, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool {
		return srv.Addr() != nil
	}, 2*time.Second, 10*time.Millisecond)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// With MaxConnections at zero, the accept loop should close the
	// connection immediately rather than spin up a Connection for it.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Error(t, err, "an over-capacity accept gets no HELLO and the socket closes")
}

func isUseOfClosedConn(err error) bool {
	return err != nil && (err.Error() == "use of closed network connection" ||
		netOpError(err))
}

func netOpError(err error) bool {
	_, ok := err.(*net.OpError)
	return ok
}

func openMigratedTestDB(t *testing.T) *store.DB {
	t.Helper()
	path := t.TempDir() + "/test.sqlite"
	db, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}
