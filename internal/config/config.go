// Package config loads runtime configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds everything the daemon needs to start.
type Config struct {
	ListenAddr string `env:"DCU_LISTEN_ADDR,default=:8080"`

	// DatabaseURL is the postgres DSN for identities and submissions.
	DatabaseURL string `env:"DCU_DATABASE_URL,required"`

	// RedisURL backs sessions and the event stream.
	RedisURL string `env:"DCU_REDIS_URL,default=redis://localhost:6379/0"`

	// SigningKeyHex is the hex-encoded P-256 private key scalar used to
	// sign session tokens. When empty an ephemeral key is generated and
	// sessions do not survive restarts.
	SigningKeyHex string `env:"DCU_SIGNING_KEY"`

	SessionTTL time.Duration `env:"DCU_SESSION_TTL,default=720h"`
}

// Load reads the configuration from the environment. A .env file in
// the working directory is merged in when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
