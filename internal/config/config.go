// Package config defines the engine's runtime configuration, populated
// from the environment the way the teacher's config package is.
package config

//go:generate go run github.com/palserver/paltalk-server/cmd/config_generator unix settings.env
type Config struct {
	ListenAddr     string `envconfig:"LISTEN_ADDR" required:"true" val:"0.0.0.0:5001" description:"The address the chat service binds to."`
	DBPath         string `envconfig:"DB_PATH" required:"true" val:"paltalk.sqlite" description:"Path to the SQLite database file. The file and schema are auto-created if they don't exist."`
	LogLevel       string `envconfig:"LOG_LEVEL" required:"true" val:"info" description:"Logging granularity. One of 'debug', 'info', 'warn', 'error'."`
	DisableAuth    bool   `envconfig:"DISABLE_AUTH" required:"true" val:"false" description:"Development flag. It is parsed but the server does not read it: login always verifies the password and never auto-registers unknown users."`
	MaxConnections int    `envconfig:"MAX_CONNECTIONS" required:"true" val:"10240" description:"Maximum number of simultaneous client connections."`
}
