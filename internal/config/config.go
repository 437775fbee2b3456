// Package config loads service configuration from config.yml and environment
// variables, with sane development defaults.
package config

import (
	"time"

	"github.com/gotify/configor"
)

// Configuration is the full service configuration.
type Configuration struct {
	Service struct {
		Name        string `default:"be-approvals" env:"SERVICE_NAME"`
		Version     string `default:"dev" env:"SERVICE_VERSION"`
		Environment string `default:"development" env:"ENVIRONMENT"`
	}
	Log struct {
		Level string `default:"info" env:"LOG_LEVEL"`
	}
	Server struct {
		Port               int `default:"8086" env:"SERVER_PORT"`
		ReadTimeoutSec     int `default:"15" env:"SERVER_READ_TIMEOUT_SEC"`
		WriteTimeoutSec    int `default:"15" env:"SERVER_WRITE_TIMEOUT_SEC"`
		IdleTimeoutSec     int `default:"60" env:"SERVER_IDLE_TIMEOUT_SEC"`
		ShutdownTimeoutSec int `default:"10" env:"SERVER_SHUTDOWN_TIMEOUT_SEC"`
		RequestTimeoutSec  int `default:"30" env:"SERVER_REQUEST_TIMEOUT_SEC"`
	}
	Database struct {
		Host     string `default:"127.0.0.1" env:"DB_HOST"`
		Port     int    `default:"5432" env:"DB_PORT"`
		User     string `default:"postgres" env:"DB_USER"`
		Password string `default:"postgres" env:"DB_PASSWORD"`
		Database string `default:"approvals" env:"DB_NAME"`
		SSLMode  string `default:"disable" env:"DB_SSLMODE"`
		MaxConns int32  `default:"10" env:"DB_MAX_CONNS"`
		MinConns int32  `default:"2" env:"DB_MIN_CONNS"`
	}
	Nats struct {
		// Empty URL disables notification publishing.
		URL string `default:"" env:"NATS_URL"`
	}
	Clients struct {
		DocumentsURL string `default:"http://localhost:8085" env:"DOCUMENTS_URL"`
		// Empty URL falls back to snapshot-membership authorization.
		IdentityURL string `default:"" env:"IDENTITY_URL"`
	}
}

// Load reads config.yml (when present) and applies environment overrides.
func Load() (*Configuration, error) {
	cfg := new(Configuration)
	if err := configor.New(&configor.Config{}).Load(cfg, "config.yml"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadTimeout returns the server read timeout as a duration.
func (c *Configuration) ReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeoutSec) * time.Second
}

// WriteTimeout returns the server write timeout as a duration.
func (c *Configuration) WriteTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeoutSec) * time.Second
}

// IdleTimeout returns the server idle timeout as a duration.
func (c *Configuration) IdleTimeout() time.Duration {
	return time.Duration(c.Server.IdleTimeoutSec) * time.Second
}

// ShutdownTimeout returns the graceful shutdown budget as a duration.
func (c *Configuration) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSec) * time.Second
}

// RequestTimeout returns the per-request handler timeout as a duration.
func (c *Configuration) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSec) * time.Second
}
