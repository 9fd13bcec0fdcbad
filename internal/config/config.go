// Package config holds the runtime configuration of sprachcache. Values come
// from SPRACHCACHE_* environment variables with built-in defaults, and are
// overlaid with whatever the config file or command-line flags set.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"

	"github.com/telcprep/sprachcache/internal/tts"
)

// EnvPrefix prefixes every environment variable read by Parse.
const EnvPrefix = "SPRACHCACHE_"

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config contains all settings.
type Config struct {
	// Owner scopes cache entries when running as a single-user CLI.
	Owner    string `env:"OWNER"     envDefault:"local"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Debug    bool   `env:"DEBUG"`
	DataDir  string `env:"DATA_DIR"`

	Store       StoreConfig       `envPrefix:"STORE_"`
	Gateway     GatewayConfig     `envPrefix:"GATEWAY_"`
	Fallback    FallbackConfig    `envPrefix:"FALLBACK_"`
	Playback    PlaybackConfig    `envPrefix:"PLAYBACK_"`
	Maintenance MaintenanceConfig `envPrefix:"MAINTENANCE_"`
	Server      ServerConfig      `envPrefix:"SERVER_"`
}

// StoreConfig selects the cache backend.
type StoreConfig struct {
	Driver           string `env:"DRIVER"            envDefault:"sqlite"`
	DSN              string `env:"DSN"`
	Path             string `env:"PATH"`
	MemoryEntries    int    `env:"MEMORY_ENTRIES"    envDefault:"1000"`
	CompressionLevel int    `env:"COMPRESSION_LEVEL" envDefault:"1"`
	MaxOpenConns     int    `env:"MAX_OPEN_CONNS"    envDefault:"10"`
}

// GatewayConfig configures the hosted synthesis endpoint.
type GatewayConfig struct {
	URL               string        `env:"URL"`
	APIKey            string        `env:"API_KEY"`
	Timeout           time.Duration `env:"TIMEOUT"             envDefault:"30s"`
	RetryMax          int           `env:"RETRY_MAX"           envDefault:"2"`
	RequestsPerMinute int           `env:"REQUESTS_PER_MINUTE" envDefault:"60"`
}

// FallbackConfig configures the local speech engine.
type FallbackConfig struct {
	Enabled        bool   `env:"ENABLED"          envDefault:"true"`
	Binary         string `env:"BINARY"           envDefault:"espeak-ng"`
	WordsPerMinute int    `env:"WORDS_PER_MINUTE" envDefault:"160"`
	Pitch          int    `env:"PITCH"            envDefault:"50"`
}

// PlaybackConfig configures local audio output.
type PlaybackConfig struct {
	Rate       float64       `env:"RATE"        envDefault:"1.0"`
	QueuePause time.Duration `env:"QUEUE_PAUSE" envDefault:"500ms"`
	Language   string        `env:"LANGUAGE"    envDefault:"de"`
	Voice      string        `env:"VOICE"       envDefault:"default"`
	Volume     float64       `env:"VOLUME"      envDefault:"1.0"`
	FFmpeg     string        `env:"FFMPEG"      envDefault:"ffmpeg"`
}

// MaintenanceConfig configures stale entry eviction.
type MaintenanceConfig struct {
	RetentionDays int           `env:"RETENTION_DAYS" envDefault:"30"`
	Interval      time.Duration `env:"INTERVAL"       envDefault:"24h"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string        `env:"ADDR"         envDefault:":8088"`
	CORSOrigins []string      `env:"CORS_ORIGINS" envDefault:"*"`
	ReadTimeout time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
}

// StorePath returns the SQLite database file, defaulting to the data
// directory.
func (c Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(c.DataDir, "sprachcache.db")
}

// DefaultDataDir returns the per-user data directory.
func DefaultDataDir() (string, error) {
	dirs, err := gap.NewScope(gap.User, "sprachcache").DataDirs()
	if err != nil {
		return "", fmt.Errorf("could not determine data directory: %w", err)
	}
	if len(dirs) == 0 {
		return "", errors.New("could not determine data directory")
	}
	return dirs[0], nil
}

// expandPaths resolves a leading ~ in every path setting.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.DataDir, &c.Store.Path, &c.Fallback.Binary, &c.Playback.FFmpeg} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("unable to expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks ranges and required combinations.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Owner) == "" {
		return errors.New("owner must not be empty")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	switch c.Store.Driver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("store dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("store driver must be one of sqlite, postgres or memory, got %q", c.Store.Driver)
	}
	if c.Store.Driver == DriverMemory && c.Store.MemoryEntries < 1 {
		return fmt.Errorf("store memory_entries must be positive, got %d", c.Store.MemoryEntries)
	}
	if c.Store.CompressionLevel < 0 || c.Store.CompressionLevel > 22 {
		return fmt.Errorf("store compression_level must be between 0 and 22, got %d", c.Store.CompressionLevel)
	}

	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway timeout must be positive, got %s", c.Gateway.Timeout)
	}
	if c.Gateway.RetryMax < 0 || c.Gateway.RetryMax > 10 {
		return fmt.Errorf("gateway retry_max must be between 0 and 10, got %d", c.Gateway.RetryMax)
	}
	if c.Gateway.RequestsPerMinute < 0 {
		return fmt.Errorf("gateway requests_per_minute must not be negative, got %d", c.Gateway.RequestsPerMinute)
	}

	if c.Fallback.Pitch < 0 || c.Fallback.Pitch > 99 {
		return fmt.Errorf("fallback pitch must be between 0 and 99, got %d", c.Fallback.Pitch)
	}
	if c.Fallback.WordsPerMinute < 80 || c.Fallback.WordsPerMinute > 450 {
		return fmt.Errorf("fallback words_per_minute must be between 80 and 450, got %d", c.Fallback.WordsPerMinute)
	}

	if c.Playback.Rate < tts.MinRate || c.Playback.Rate > tts.MaxRate {
		return fmt.Errorf("playback rate must be between %.1f and %.1f, got %.2f", tts.MinRate, tts.MaxRate, c.Playback.Rate)
	}
	if c.Playback.QueuePause < 0 {
		return fmt.Errorf("playback queue_pause must not be negative, got %s", c.Playback.QueuePause)
	}
	if c.Playback.Volume < 0 || c.Playback.Volume > 1 {
		return fmt.Errorf("playback volume must be between 0.0 and 1.0, got %.2f", c.Playback.Volume)
	}

	if c.Maintenance.RetentionDays < 1 {
		return fmt.Errorf("maintenance retention_days must be at least 1, got %d", c.Maintenance.RetentionDays)
	}
	if c.Maintenance.Interval < time.Minute {
		return fmt.Errorf("maintenance interval must be at least 1m, got %s", c.Maintenance.Interval)
	}
	return nil
}
