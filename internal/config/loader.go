package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// Parse reads the configuration from the environment only.
func Parse() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: EnvPrefix})
	if err != nil {
		return cfg, fmt.Errorf("error parsing environment: %w", err)
	}
	return cfg, nil
}

// Load parses the environment, applies every key v has a value for, fills
// in derived defaults and validates the result.
func Load(v *viper.Viper) (Config, error) {
	cfg, err := Parse()
	if err != nil {
		return cfg, err
	}
	if v != nil {
		overlay(&cfg, v)
	}

	if cfg.DataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return cfg, err
		}
		cfg.DataDir = dir
	}
	if err := cfg.expandPaths(); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func overlay(cfg *Config, v *viper.Viper) {
	// Global settings
	if v.IsSet("owner") {
		cfg.Owner = v.GetString("owner")
	}
	if v.IsSet("log_level") {
		cfg.LogLevel = v.GetString("log_level")
	}
	if v.IsSet("debug") {
		cfg.Debug = v.GetBool("debug")
	}
	if v.IsSet("data_dir") {
		cfg.DataDir = v.GetString("data_dir")
	}

	// Store settings
	if v.IsSet("store.driver") {
		cfg.Store.Driver = v.GetString("store.driver")
	}
	if v.IsSet("store.dsn") {
		cfg.Store.DSN = v.GetString("store.dsn")
	}
	if v.IsSet("store.path") {
		cfg.Store.Path = v.GetString("store.path")
	}
	if v.IsSet("store.memory_entries") {
		cfg.Store.MemoryEntries = v.GetInt("store.memory_entries")
	}
	if v.IsSet("store.compression_level") {
		cfg.Store.CompressionLevel = v.GetInt("store.compression_level")
	}
	if v.IsSet("store.max_open_conns") {
		cfg.Store.MaxOpenConns = v.GetInt("store.max_open_conns")
	}

	// Gateway settings
	if v.IsSet("gateway.url") {
		cfg.Gateway.URL = v.GetString("gateway.url")
	}
	if v.IsSet("gateway.api_key") {
		cfg.Gateway.APIKey = v.GetString("gateway.api_key")
	}
	if v.IsSet("gateway.timeout") {
		cfg.Gateway.Timeout = v.GetDuration("gateway.timeout")
	}
	if v.IsSet("gateway.retry_max") {
		cfg.Gateway.RetryMax = v.GetInt("gateway.retry_max")
	}
	if v.IsSet("gateway.requests_per_minute") {
		cfg.Gateway.RequestsPerMinute = v.GetInt("gateway.requests_per_minute")
	}

	// Fallback settings
	if v.IsSet("fallback.enabled") {
		cfg.Fallback.Enabled = v.GetBool("fallback.enabled")
	}
	if v.IsSet("fallback.binary") {
		cfg.Fallback.Binary = v.GetString("fallback.binary")
	}
	if v.IsSet("fallback.words_per_minute") {
		cfg.Fallback.WordsPerMinute = v.GetInt("fallback.words_per_minute")
	}
	if v.IsSet("fallback.pitch") {
		cfg.Fallback.Pitch = v.GetInt("fallback.pitch")
	}

	// Playback settings
	if v.IsSet("playback.rate") {
		cfg.Playback.Rate = v.GetFloat64("playback.rate")
	}
	if v.IsSet("playback.queue_pause") {
		cfg.Playback.QueuePause = v.GetDuration("playback.queue_pause")
	}
	if v.IsSet("playback.language") {
		cfg.Playback.Language = v.GetString("playback.language")
	}
	if v.IsSet("playback.voice") {
		cfg.Playback.Voice = v.GetString("playback.voice")
	}
	if v.IsSet("playback.volume") {
		cfg.Playback.Volume = v.GetFloat64("playback.volume")
	}
	if v.IsSet("playback.ffmpeg") {
		cfg.Playback.FFmpeg = v.GetString("playback.ffmpeg")
	}

	// Maintenance settings
	if v.IsSet("maintenance.retention_days") {
		cfg.Maintenance.RetentionDays = v.GetInt("maintenance.retention_days")
	}
	if v.IsSet("maintenance.interval") {
		cfg.Maintenance.Interval = v.GetDuration("maintenance.interval")
	}

	// Server settings
	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.cors_origins") {
		cfg.Server.CORSOrigins = v.GetStringSlice("server.cors_origins")
	}
	if v.IsSet("server.read_timeout") {
		cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	}
}
