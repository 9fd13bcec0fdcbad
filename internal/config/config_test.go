package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Owner != "local" || cfg.Store.Driver != DriverSQLite {
		t.Errorf("unexpected defaults: owner %q driver %q", cfg.Owner, cfg.Store.Driver)
	}
	if cfg.Playback.QueuePause != 500*time.Millisecond {
		t.Errorf("QueuePause = %s, want 500ms", cfg.Playback.QueuePause)
	}
	if cfg.Maintenance.RetentionDays != 30 || cfg.Maintenance.Interval != 24*time.Hour {
		t.Errorf("maintenance defaults = %+v", cfg.Maintenance)
	}
	if !cfg.Fallback.Enabled {
		t.Error("fallback should be enabled by default")
	}
}

func TestParseEnvironment(t *testing.T) {
	t.Setenv("SPRACHCACHE_OWNER", "student-7")
	t.Setenv("SPRACHCACHE_STORE_DRIVER", "memory")
	t.Setenv("SPRACHCACHE_GATEWAY_TIMEOUT", "5s")
	t.Setenv("SPRACHCACHE_SERVER_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Owner != "student-7" || cfg.Store.Driver != DriverMemory {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.Gateway.Timeout != 5*time.Second {
		t.Errorf("Gateway.Timeout = %s", cfg.Gateway.Timeout)
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
}

func TestLoadOverlaysViper(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sprachcache.yml")
	yaml := `owner: "kurs-b2"
data_dir: "` + dir + `"
store:
  driver: memory
  memory_entries: 50
playback:
  rate: 1.25
  queue_pause: 1s
maintenance:
  retention_days: 7
`
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Owner != "kurs-b2" || cfg.Store.MemoryEntries != 50 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Playback.Rate != 1.25 || cfg.Playback.QueuePause != time.Second {
		t.Errorf("playback = %+v", cfg.Playback)
	}
	if cfg.Maintenance.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d, want 7", cfg.Maintenance.RetentionDays)
	}
	// Unset keys keep their defaults.
	if cfg.Gateway.RetryMax != 2 {
		t.Errorf("RetryMax = %d, want default 2", cfg.Gateway.RetryMax)
	}
	if cfg.StorePath() != filepath.Join(dir, "sprachcache.db") {
		t.Errorf("StorePath() = %q", cfg.StorePath())
	}
}

func TestLoadExpandsHome(t *testing.T) {
	v := viper.New()
	v.Set("store.path", "~/telc/cache.db")
	v.Set("data_dir", t.TempDir())

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if strings.HasPrefix(cfg.Store.Path, "~") {
		t.Errorf("Store.Path not expanded: %q", cfg.Store.Path)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg, err := Parse()
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty owner", func(c *Config) { c.Owner = " " }, "owner"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "redis" }, "store driver"},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = DriverPostgres }, "dsn"},
		{"postgres with dsn", func(c *Config) {
			c.Store.Driver = DriverPostgres
			c.Store.DSN = "postgres://localhost/telc"
		}, ""},
		{"rate too fast", func(c *Config) { c.Playback.Rate = 3 }, "playback rate"},
		{"rate too slow", func(c *Config) { c.Playback.Rate = 0.25 }, "playback rate"},
		{"negative retries", func(c *Config) { c.Gateway.RetryMax = -1 }, "retry_max"},
		{"no retention", func(c *Config) { c.Maintenance.RetentionDays = 0 }, "retention_days"},
		{"tight interval", func(c *Config) { c.Maintenance.Interval = time.Second }, "interval"},
		{"pitch", func(c *Config) { c.Fallback.Pitch = 120 }, "pitch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
