package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vovakirdan/wirechat-relay/internal/media"
)

// History store drivers.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// Default history locations, used when history.path is left empty.
const (
	DefaultJSONPath   = "chatRecords.json"
	DefaultSQLitePath = "chatRecords.db"
	DefaultBadgerPath = "chatRecords.badger"
)

// Config holds server configuration values.
type Config struct {
	Addr               string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	ReadHeaderTimeout  time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" validate:"gte=0"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gte=0"`
	LogLevel           string        `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes" validate:"gt=0"`
	SendBuffer         int           `mapstructure:"send_buffer" yaml:"send_buffer" validate:"gt=0"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute" validate:"gte=0"`
	History            HistoryConfig `mapstructure:"history" yaml:"history"`
	Media              MediaConfig   `mapstructure:"media" yaml:"media"`
}

// HistoryConfig selects and locates the history store.
type HistoryConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=json sqlite badger"`
	// Path is a file for json and sqlite, a directory for badger.
	// Empty selects the driver's default location.
	Path string `mapstructure:"path" yaml:"path"`
}

// ResolvedPath returns Path or, when it is empty, the driver's default location.
func (h HistoryConfig) ResolvedPath() string {
	if h.Path != "" {
		return h.Path
	}
	switch h.Driver {
	case DriverSQLite:
		return DefaultSQLitePath
	case DriverBadger:
		return DefaultBadgerPath
	default:
		return DefaultJSONPath
	}
}

// MediaConfig tunes chunked media handling.
type MediaConfig struct {
	ChunkIdleTimeout time.Duration `mapstructure:"chunk_idle_timeout" yaml:"chunk_idle_timeout" validate:"gte=0"`
	NotifyFailures   bool          `mapstructure:"notify_failures" yaml:"notify_failures"`
}

// defaultMaxMessageBytes fits one full client chunk plus the envelope fields.
var defaultMaxMessageBytes = int64(media.EncodedLen(media.ChunkSize)) + 64<<10

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":3000",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		MaxMessageBytes:    defaultMaxMessageBytes,
		SendBuffer:         64,
		RateLimitPerMinute: 0,
		History: HistoryConfig{
			Driver: DriverJSON,
		},
	}
}

var validate = validator.New()

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.SendBuffer != 0 {
		c.SendBuffer = other.SendBuffer
	}
	if other.RateLimitPerMinute != 0 {
		c.RateLimitPerMinute = other.RateLimitPerMinute
	}
	if other.History.Driver != "" {
		c.History.Driver = other.History.Driver
	}
	if other.History.Path != "" {
		c.History.Path = other.History.Path
	}
	if other.Media.ChunkIdleTimeout != 0 {
		c.Media.ChunkIdleTimeout = other.Media.ChunkIdleTimeout
	}
	if other.Media.NotifyFailures {
		c.Media.NotifyFailures = true
	}
}
