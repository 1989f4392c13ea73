// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
)

// Config holds every setting of the chat server.
type Config struct {
	Addr     string `env:"ADDR,default=:8080"`
	DataDir  string `env:"DATA_DIR,default=/data"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	JWTKey      string `env:"JWT_KEY"`
	JWTIssuer   string `env:"JWT_ISSUER"`
	JWTAudience string `env:"JWT_AUDIENCE"`

	WSWriteWait      time.Duration `env:"WS_WRITE_WAIT,default=10s"`
	WSPongWait       time.Duration `env:"WS_PONG_WAIT,default=60s"`
	WSPingPeriod     time.Duration `env:"WS_PING_PERIOD,default=54s"`
	WSMaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE,default=4096"`

	RegistrySweepSpec string `env:"REGISTRY_SWEEP_SPEC,default=@every 5m"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=30s"`
}

// Read reads the configuration from the process environment without
// validating it. Callers that only need the listen address, such as the
// health check, use it so they run without the server secrets.
func Read() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}

// FromEnvSet reads and validates the configuration from an explicit environment.
func FromEnvSet(set env.EnvSet) (Config, error) {
	cfg, err := Parse(set)
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Parse reads the configuration from an explicit environment without validating it.
func Parse(set env.EnvSet) (Config, error) {
	var cfg Config
	if err := env.Unmarshal(set, &cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}

// Validate checks the relations between settings.
func (c Config) Validate() error {
	if c.JWTKey == "" {
		return errors.New("JWT_KEY is required")
	}
	if len(c.JWTKey) < 32 {
		return errors.New("JWT_KEY must be at least 32 bytes")
	}
	if c.WSPingPeriod >= c.WSPongWait {
		return fmt.Errorf("WS_PING_PERIOD (%s) must be shorter than WS_PONG_WAIT (%s)", c.WSPingPeriod, c.WSPongWait)
	}
	if c.WSMaxMessageSize <= 0 {
		return errors.New("WS_MAX_MESSAGE_SIZE must be positive")
	}
	return nil
}
