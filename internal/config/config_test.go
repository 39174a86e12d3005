package config

import (
	"os"
	"testing"

	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigProcessFromEnv(t *testing.T) {
	t.Setenv("LISTEN_ADDR", "127.0.0.1:6001")
	t.Setenv("DB_PATH", "test.sqlite")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DISABLE_AUTH", "true")
	t.Setenv("MAX_CONNECTIONS", "50")

	var cfg Config
	require.NoError(t, envconfig.Process("", &cfg))

	assert.Equal(t, "127.0.0.1:6001", cfg.ListenAddr)
	assert.Equal(t, "test.sqlite", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DisableAuth)
	assert.Equal(t, 50, cfg.MaxConnections)
}

func TestConfigProcessRequiresFields(t *testing.T) {
	for _, v := range []string{"LISTEN_ADDR", "DB_PATH", "LOG_LEVEL", "DISABLE_AUTH", "MAX_CONNECTIONS"} {
		os.Unsetenv(v)
	}

	var cfg Config
	err := envconfig.Process("", &cfg)
	assert.Error(t, err, "every field is marked required, so a bare environment fails processing")
}
