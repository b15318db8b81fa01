// Package config loads the process configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config holds every setting of the server binary. Defaults are provided via
// struct tags; all variables are optional.
type Config struct {
	// Addr is the listen address. ENV: WSBRIDGE_ADDR
	Addr string `env:"WSBRIDGE_ADDR,default=:9090"`
	// Path is the HTTP path serving WebSocket upgrades. ENV: WSBRIDGE_PATH
	Path string `env:"WSBRIDGE_PATH,default=/"`

	// FragmentTimeout is how long an incomplete fragmented message is kept.
	// ENV: WSBRIDGE_FRAGMENT_TIMEOUT
	FragmentTimeout time.Duration `env:"WSBRIDGE_FRAGMENT_TIMEOUT,default=600s"`
	// DelayBetweenMessages spaces outbound messages apart.
	// ENV: WSBRIDGE_DELAY_BETWEEN_MESSAGES
	DelayBetweenMessages time.Duration `env:"WSBRIDGE_DELAY_BETWEEN_MESSAGES,default=0s"`
	// MaxMessageSize caps one inbound frame in bytes.
	// ENV: WSBRIDGE_MAX_MESSAGE_SIZE
	MaxMessageSize int64 `env:"WSBRIDGE_MAX_MESSAGE_SIZE,default=10000000"`
	// UnregisterTimeout is how long inactive pipeline resources are kept.
	// ENV: WSBRIDGE_UNREGISTER_TIMEOUT
	UnregisterTimeout time.Duration `env:"WSBRIDGE_UNREGISTER_TIMEOUT,default=10s"`
	// BinaryOnly makes the pipeline emit binary frames only.
	// ENV: WSBRIDGE_BINARY_ONLY
	BinaryOnly bool `env:"WSBRIDGE_BINARY_ONLY,default=false"`
	// UseCompression enables permessage-deflate. ENV: WSBRIDGE_USE_COMPRESSION
	UseCompression bool `env:"WSBRIDGE_USE_COMPRESSION,default=false"`

	// AuthServiceURL enables the HTTP service authenticator when set.
	// ENV: WSBRIDGE_AUTH_SERVICE_URL
	AuthServiceURL string `env:"WSBRIDGE_AUTH_SERVICE_URL"`
	// AuthTokenSecret enables the JWT token authenticator when set and no
	// service URL is configured. ENV: WSBRIDGE_AUTH_TOKEN_SECRET
	AuthTokenSecret string `env:"WSBRIDGE_AUTH_TOKEN_SECRET"`
	// AuthTimeout bounds one authentication check. ENV: WSBRIDGE_AUTH_TIMEOUT
	AuthTimeout time.Duration `env:"WSBRIDGE_AUTH_TIMEOUT,default=90s"`

	// RedisAddr enables the Redis client registry when set, like
	// "localhost:6379". ENV: WSBRIDGE_REDIS_ADDR
	RedisAddr string `env:"WSBRIDGE_REDIS_ADDR"`

	// StatsLogInterval emits a periodic statistics log when positive.
	// ENV: WSBRIDGE_STATS_LOG_INTERVAL
	StatsLogInterval time.Duration `env:"WSBRIDGE_STATS_LOG_INTERVAL,default=60s"`

	// LogLevel is one of trace, debug, info, warn, error.
	// ENV: WSBRIDGE_LOG_LEVEL
	LogLevel string `env:"WSBRIDGE_LOG_LEVEL,default=info"`
	// LogDir writes daily-rotated log files there when set; empty logs to
	// stdout. ENV: WSBRIDGE_LOG_DIR
	LogDir string `env:"WSBRIDGE_LOG_DIR"`
}

// Load reads the configuration from the environment.
//
// Returns:
//   - The populated Config, or an error if a variable fails to parse
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode configuration: %w", err)
	}

	return cfg, nil
}
