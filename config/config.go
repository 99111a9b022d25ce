// Package config loads the maintenance service configuration from the
// environment.
//
// Values come from the process environment, then from a .env file in the
// working directory. Every variable carries the SCALAR_ prefix. Loading
// fails fast on a missing required value or an invalid format.
package config

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/2thetop/scalar/maintenance"
	"github.com/2thetop/scalar/retry"
)

// EnvPrefix is the prefix of every configuration variable.
const EnvPrefix = "scalar"

// DotScalarDir is the per-enlistment state directory.
const DotScalarDir = ".scalar"

const redacted = "***REDACTED***"

// SecretString is a string that never prints or serializes its value.
type SecretString string

// String returns a redacted placeholder.
func (s SecretString) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// MarshalJSON returns the redacted placeholder.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// LogValue keeps the secret out of structured logs.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// Unmask returns the raw value.
func (s SecretString) Unmask() string {
	return string(s)
}

// Config is the service configuration. It is immutable after Load.
type Config struct {
	EnlistmentRoot string       `envconfig:"ENLISTMENT_ROOT" validate:"required,dir"`
	OriginURL      string       `envconfig:"ORIGIN_URL" validate:"required,url"`
	CacheServerURL string       `envconfig:"CACHE_SERVER_URL" validate:"omitempty,url"`
	AuthToken      SecretString `envconfig:"AUTH_TOKEN"`
	Unattended     bool         `envconfig:"UNATTENDED" default:"false"`
	LogLevel       string       `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	SocketPath     string       `envconfig:"SOCKET_PATH"`

	// Embedded so their variables keep the plain SCALAR_ prefix.
	RetryConfig
	HTTPConfig
	StepsConfig
}

// RetryConfig tunes object download retries.
type RetryConfig struct {
	MaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"6" validate:"min=1"`
	MinWait     time.Duration `envconfig:"RETRY_MIN_WAIT" default:"250ms" validate:"gt=0"`
	MaxWait     time.Duration `envconfig:"RETRY_MAX_WAIT" default:"10s" validate:"gtefield=MinWait"`
}

// HTTPConfig tunes the object transport.
type HTTPConfig struct {
	Timeout   time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s" validate:"gt=0"`
	UserAgent string        `envconfig:"HTTP_USER_AGENT" default:"scalar-maintenance"`
}

// StepsConfig tunes the maintenance steps.
type StepsConfig struct {
	FetchBatchSize        int    `envconfig:"FETCH_BATCH_SIZE" default:"4000" validate:"min=1"`
	FetchMaxCommits       int    `envconfig:"FETCH_MAX_COMMITS" default:"1000" validate:"min=1"`
	PackfileBatchSize     string `envconfig:"PACKFILE_BATCH_SIZE" default:"2g" validate:"required"`
	LooseObjectsBatchSize int    `envconfig:"LOOSE_OBJECTS_BATCH_SIZE" default:"50000" validate:"min=1"`
}

// GitDir returns the enlistment's .git directory.
func (c *Config) GitDir() string {
	return filepath.Join(c.EnlistmentRoot, ".git")
}

// DotScalarPath returns the enlistment's .scalar directory.
func (c *Config) DotScalarPath() string {
	return filepath.Join(c.EnlistmentRoot, DotScalarDir)
}

// IPCSocketPath returns SocketPath, defaulting to .scalar/maintenance.sock.
func (c *Config) IPCSocketPath() string {
	if c.SocketPath != "" {
		return c.SocketPath
	}
	return filepath.Join(c.DotScalarPath(), "maintenance.sock")
}

// SlogLevel returns the parsed log level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RetryPolicy returns the download retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.RetryConfig.MaxAttempts,
		MinWait:     c.RetryConfig.MinWait,
		MaxWait:     c.RetryConfig.MaxWait,
	}
}

// MaintenanceConfig returns step tuning with the default run intervals.
func (c *Config) MaintenanceConfig() maintenance.Config {
	mc := maintenance.DefaultConfig()
	mc.FetchBatchSize = c.StepsConfig.FetchBatchSize
	mc.FetchMaxCommits = c.StepsConfig.FetchMaxCommits
	mc.PackfileBatchSize = c.StepsConfig.PackfileBatchSize
	mc.LooseObjectsBatchSize = c.StepsConfig.LooseObjectsBatchSize
	return mc
}
