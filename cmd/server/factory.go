package main

import (
	"fmt"
	"log/slog"

	"github.com/kelseyhightower/envconfig"

	"github.com/palserver/paltalk-server/internal/config"
	"github.com/palserver/paltalk-server/internal/logging"
	"github.com/palserver/paltalk-server/internal/server"
	"github.com/palserver/paltalk-server/internal/store"
)

// Container groups together the dependencies every listener needs,
// grounded in the teacher's cmd/server.Container.
type Container struct {
	cfg    config.Config
	logger *slog.Logger
	db     *store.DB
}

// MakeCommonDeps loads config from the environment, opens and migrates the
// store, and builds the logger shared by the server.
func MakeCommonDeps() (Container, error) {
	c := Container{}

	if err := envconfig.Process("", &c.cfg); err != nil {
		return c, fmt.Errorf("unable to process app config: %w", err)
	}

	c.logger = logging.New(c.cfg)

	db, err := store.Open(c.cfg.DBPath)
	if err != nil {
		return c, fmt.Errorf("unable to open store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		return c, fmt.Errorf("unable to migrate store: %w", err)
	}
	c.db = db

	return c, nil
}

// Chat builds the chat engine's server from the common deps.
func Chat(deps Container) *server.Server {
	return server.New(deps.cfg, deps.db, deps.logger)
}
