package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/telcprep/sprachcache/internal/audio"
	"github.com/telcprep/sprachcache/internal/cache"
	"github.com/telcprep/sprachcache/internal/config"
	"github.com/telcprep/sprachcache/internal/content"
	"github.com/telcprep/sprachcache/internal/fallback"
	"github.com/telcprep/sprachcache/internal/gateway"
	"github.com/telcprep/sprachcache/internal/logging"
	"github.com/telcprep/sprachcache/internal/playback"
	"github.com/telcprep/sprachcache/internal/speech"
	"github.com/telcprep/sprachcache/internal/tts"
)

// app holds the services shared by all commands.
type app struct {
	cfg         config.Config
	store       *cache.Store
	speech      *speech.Service
	content     *content.Service
	maintenance *cache.Maintenance
}

func openBackend(ctx context.Context, cfg config.Config) (cache.Backend, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return cache.NewMemoryStore(cfg.Store.MemoryEntries)
	case config.DriverPostgres:
		return cache.OpenSQLStore(ctx, cache.SQLConfig{
			Driver:           cache.DriverPostgres,
			DSN:              cfg.Store.DSN,
			CompressionLevel: cfg.Store.CompressionLevel,
			MaxOpenConns:     cfg.Store.MaxOpenConns,
		})
	default:
		path := cfg.StorePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
			return nil, fmt.Errorf("unable to create data directory: %w", err)
		}
		return cache.OpenSQLStore(ctx, cache.SQLConfig{
			Driver:           cache.DriverSQLite,
			DSN:              path,
			CompressionLevel: cfg.Store.CompressionLevel,
		})
	}
}

func newApp(ctx context.Context) (*app, error) {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to open cache: %w", err)
	}
	store := cache.NewStore(backend, cache.StoreOptions{Logger: logging.New("cache")})

	var synth tts.Synthesizer
	if cfg.Gateway.URL != "" {
		gc := gateway.DefaultConfig()
		gc.URL = cfg.Gateway.URL
		gc.APIKey = cfg.Gateway.APIKey
		gc.Timeout = cfg.Gateway.Timeout
		gc.RetryMax = cfg.Gateway.RetryMax
		gc.RequestsPerMinute = cfg.Gateway.RequestsPerMinute
		gc.UserAgent = "sprachcache/" + Version

		client, err := gateway.NewClient(gc, logging.New("gateway"))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		synth = client
	}

	return &app{
		cfg:     cfg,
		store:   store,
		speech:  speech.NewService(store, synth, logging.New("speech")),
		content: content.NewService(store, logging.New("content")),
		maintenance: cache.NewMaintenance(store, cache.MaintenanceConfig{
			RetentionDays: cfg.Maintenance.RetentionDays,
			Interval:      cfg.Maintenance.Interval,
		}, logging.New("maintenance")),
	}, nil
}

// controller builds a playback controller on the local audio device.
func (a *app) controller(hooks playback.Hooks) (*playback.Controller, error) {
	pc := audio.DefaultPlayerConfig()
	pc.Volume = a.cfg.Playback.Volume
	pc.FFmpegBinary = a.cfg.Playback.FFmpeg

	player, err := audio.NewPlayer(pc, logging.New("audio"))
	if err != nil {
		return nil, err
	}

	var speaker tts.Speaker
	if a.cfg.Fallback.Enabled {
		speaker = fallback.New(fallback.Config{
			Binary:         a.cfg.Fallback.Binary,
			WordsPerMinute: a.cfg.Fallback.WordsPerMinute,
			Pitch:          a.cfg.Fallback.Pitch,
		}, logging.New("fallback"))
	}

	return playback.New(a.speech, player, speaker, playback.Config{
		Rate:       a.cfg.Playback.Rate,
		QueuePause: a.cfg.Playback.QueuePause,
		Hooks:      hooks,
		Logger:     logging.New("playback"),
	}), nil
}

// Close flushes pending cache writes and closes the store.
func (a *app) Close() error {
	return a.store.Close()
}
