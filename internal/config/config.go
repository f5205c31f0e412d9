// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds action-invoker configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"action-invoker"`

	// Subject overrides (empty = package defaults)
	InvokerSubject      string `envconfig:"INVOKER_SUBJECT"`
	BackendSubject      string `envconfig:"BACKEND_SUBJECT"`
	RefreshEventSubject string `envconfig:"REFRESH_EVENT_SUBJECT"`

	// Timeouts
	RequestTimeout        time.Duration `envconfig:"INVOKER_REQUEST_TIMEOUT" default:"25s"`
	BackendRequestTimeout time.Duration `envconfig:"BACKEND_REQUEST_TIMEOUT" default:"20s"`
	AutoSubmitDelay       time.Duration `envconfig:"AUTO_SUBMIT_DELAY" default:"5ms"`

	// Metadata: DATABASE_URL wins over METADATA_FILE when set.
	MetadataFile string `envconfig:"METADATA_FILE"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`

	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP health endpoint (INVOKER_HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"INVOKER_HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// AutoConfirm answers confirmation prompts when no user is present. When
	// false, precondition warnings and critical confirmations are declined.
	AutoConfirm bool `envconfig:"AUTO_CONFIRM" default:"false"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// UsesDatabase reports whether operation metadata is read from Postgres.
func (c *Config) UsesDatabase() bool {
	return c.DatabaseURL != ""
}

// ListenAddr returns HTTPAddr, or all interfaces on HTTPPort.
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// ValidateForServe checks required config when running the invoker server.
func (c *Config) ValidateForServe() error {
	if c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required for serve", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - INVOKER_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.BackendRequestTimeout <= 0 {
		return fmt.Errorf("%s - BACKEND_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.AutoSubmitDelay < 0 {
		return fmt.Errorf("%s - AUTO_SUBMIT_DELAY must not be negative", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.RunMigrations && !c.UsesDatabase() {
		return fmt.Errorf("%s - RUN_MIGRATIONS requires DATABASE_URL", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, seed).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
