// Package store is the persistence adapter: a thin, typed layer over a
// SQLite-backed tabular store, grounded in the teacher's SQLiteUserStore
// but widened to cover users, devices, buddies, blocks, rooms, and
// moderation state. The package also carries the embedded schema
// migrations and applies them through DB.Migrate, which cmd/server calls
// right after Open.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
	"github.com/patrickmn/go-cache"
	_ "modernc.org/sqlite"
)

// Migrations holds the embedded schema migration set. DB.Migrate applies
// these with golang-migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// directoryCacheTTL bounds how long the rarely-changing category and
// subcategory directory is served from memory before the next listing
// re-reads it from disk. Directory edits are an admin-time operation, not
// a per-connection one, so a short TTL is plenty to spare every login's
// CATEGORY_LIST/SUBCATEGORY_LIST send a round trip.
const directoryCacheTTL = 30 * time.Second

// DB wraps the two logical handles the engine needs: a single serialized
// write connection (mirroring the source's single write handle, now
// enforced with SetMaxOpenConns(1) since goroutines replace the source's
// single thread) and an unlimited-concurrency read pool. dirCache holds the
// category/subcategory directory, the one piece of this schema read on
// nearly every connection's entry into the general flow but written almost
// never.
type DB struct {
	Write *sql.DB
	Read  *sql.DB

	dirCache *cache.Cache
}

// Open opens path twice — once as the shared write handle, once as a
// read pool — matching the source's two-handles-per-process contract.
// Open does not create or migrate the schema; call Migrate for that.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(wal)", path)

	w, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open write handle: %w", err)
	}
	w.SetMaxOpenConns(1)

	r, err := sql.Open("sqlite", dsn)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("store: open read handle: %w", err)
	}

	return &DB{Write: w, Read: r, dirCache: cache.New(directoryCacheTTL, 2*directoryCacheTTL)}, nil
}

// Migrate applies every pending schema migration from the embedded
// Migrations filesystem, grounded in the teacher's SQLiteUserStore
// bootstrap: wrap the embedded tree in httpfs, drive it against the write
// handle through the sqlite migrate driver. A no-op if the schema is
// already current.
func (d *DB) Migrate() error {
	sub, err := fs.Sub(Migrations, "migrations")
	if err != nil {
		return fmt.Errorf("store: prepare migration subdirectory: %w", err)
	}

	source, err := httpfs.New(http.FS(sub), ".")
	if err != nil {
		return fmt.Errorf("store: create migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(d.Write, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("store: create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("httpfs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("store: create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: run migrations: %w", err)
	}
	return nil
}

// Close closes both handles.
func (d *DB) Close() error {
	werr := d.Write.Close()
	rerr := d.Read.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// WithTx runs fn inside a write-side transaction, committing on return
// regardless of whether fn returned an error — the source's commit-even-
// on-error pattern: a partial, logged failure is preferred over leaving a
// client's request hanging indefinitely on a rolled-back handler. Callers
// that need the error still receive it.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.Write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}

	fnErr := fn(tx)
	if cerr := tx.Commit(); cerr != nil {
		return fmt.Errorf("store: commit: %w", cerr)
	}
	return fnErr
}
