package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
)

var envKeys = []string{
	"SPOTIFY_ID",
	"SPOTIFY_SECRET",
	"LASTFM_API_KEY",
	"DATABASE_URL",
	"WRAPPED_CACHE_PATH",
	"WRAPPED_TOP_N",
	"WRAPPED_ENRICH_TIMEOUT",
	"WRAPPED_LOG_FORMAT",
}

// clearEnv blanks every variable Load reads; empty values are ignored.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_FileValues(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
top_n: 25
dedupe:
  tolerance: 5s
enrich:
  batch_size: 50
  workers: 8
  rate_per_second: 2.5
  max_attempts: 3
  timeout: 2m
  ttl: 0s
cache:
  path: /tmp/wrapped.db
moods:
  clusters: 4
spotify:
  client_id: file-id
  client_secret: file-secret
log:
  format: json
`)

	cfg, errs := Load(path)
	if len(errs) != 0 {
		t.Fatalf("Load() errors = %v", errs)
	}

	if cfg.TopN != 25 {
		t.Errorf("TopN = %d, want 25", cfg.TopN)
	}
	if cfg.Dedupe.Tolerance != 5*time.Second {
		t.Errorf("Dedupe.Tolerance = %v, want 5s", cfg.Dedupe.Tolerance)
	}
	if cfg.Enrich.BatchSize != 50 || cfg.Enrich.Workers != 8 || cfg.Enrich.MaxAttempts != 3 {
		t.Errorf("Enrich = %+v", cfg.Enrich)
	}
	if cfg.Enrich.RatePerSecond != 2.5 {
		t.Errorf("RatePerSecond = %v, want 2.5", cfg.Enrich.RatePerSecond)
	}
	if cfg.Enrich.Timeout != 2*time.Minute {
		t.Errorf("Timeout = %v, want 2m", cfg.Enrich.Timeout)
	}
	if cfg.Enrich.TTL != 0 {
		t.Errorf("TTL = %v, want 0", cfg.Enrich.TTL)
	}
	if cfg.Cache.Path != "/tmp/wrapped.db" {
		t.Errorf("Cache.Path = %q", cfg.Cache.Path)
	}
	if cfg.Moods.Clusters != 4 || cfg.Moods.MinSize != DefaultMinMoodSize {
		t.Errorf("Moods = %+v", cfg.Moods)
	}
	if !cfg.SpotifyEnabled() {
		t.Error("SpotifyEnabled() = false, want true")
	}
	if cfg.LastFMEnabled() {
		t.Error("LastFMEnabled() = true, want false")
	}
	if cfg.Log.Format != LogFormatJSON {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}

	// Unset keys keep their defaults.
	if cfg.Enrich.Burst != DefaultBurst || cfg.Enrich.MaxBackoff != DefaultMaxBackoff {
		t.Errorf("defaults lost: %+v", cfg.Enrich)
	}
	if cfg.Tags.Concurrency != DefaultTagConcurrency {
		t.Errorf("Tags.Concurrency = %d, want %d", cfg.Tags.Concurrency, DefaultTagConcurrency)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
top_n: 25
spotify:
  client_id: file-id
  client_secret: file-secret
enrich:
  timeout: 2m
`)
	t.Setenv("SPOTIFY_ID", "env-id")
	t.Setenv("LASTFM_API_KEY", "lfm")
	t.Setenv("WRAPPED_TOP_N", "3")
	t.Setenv("WRAPPED_ENRICH_TIMEOUT", "15s")
	t.Setenv("DATABASE_URL", "postgres://localhost/wrapped")

	cfg, errs := Load(path)
	if len(errs) != 0 {
		t.Fatalf("Load() errors = %v", errs)
	}

	if cfg.Spotify.ClientID != "env-id" || cfg.Spotify.ClientSecret != "file-secret" {
		t.Errorf("Spotify = %+v", cfg.Spotify)
	}
	if cfg.TopN != 3 {
		t.Errorf("TopN = %d, want 3", cfg.TopN)
	}
	if cfg.Enrich.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", cfg.Enrich.Timeout)
	}
	if cfg.DatabaseURL != "postgres://localhost/wrapped" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if !cfg.LastFMEnabled() {
		t.Error("LastFMEnabled() = false, want true")
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("WRAPPED_TOP_N", "many")
	t.Setenv("WRAPPED_ENRICH_TIMEOUT", "soon")

	_, errs := Load(writeConfig(t, "top_n: 5\n"))
	if len(errs) != 2 {
		t.Fatalf("Load() errors = %v, want 2", errs)
	}
	for _, err := range errs {
		if !errors.Is(err, ErrInvalidEnvValue) {
			t.Errorf("error %v should wrap ErrInvalidEnvValue", err)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	cfg, errs := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if cfg != nil {
		t.Errorf("Load() cfg = %+v, want nil", cfg)
	}
	if len(errs) != 1 {
		t.Errorf("Load() errors = %v, want 1", errs)
	}
}

func TestLoad_DefaultPathInHome(t *testing.T) {
	clearEnv(t)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })

	home := t.TempDir()
	t.Setenv("HOME", home)
	if err := os.WriteFile(filepath.Join(home, DefaultFileName), []byte("top_n: 7\ncache:\n  path: ~/wrapped.db\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, errs := Load("")
	if len(errs) != 0 {
		t.Fatalf("Load() errors = %v", errs)
	}
	if cfg.TopN != 7 {
		t.Errorf("TopN = %d, want 7", cfg.TopN)
	}
	if want := filepath.Join(home, "wrapped.db"); cfg.Cache.Path != want {
		t.Errorf("Cache.Path = %q, want %q", cfg.Cache.Path, want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"defaults are valid", func(*Config) {}, nil},
		{"zero top n", func(c *Config) { c.TopN = 0 }, ErrInvalidTopN},
		{"zero tolerance", func(c *Config) { c.Dedupe.Tolerance = 0 }, ErrInvalidTolerance},
		{"batch above service limit", func(c *Config) { c.Enrich.BatchSize = 101 }, ErrInvalidBatchSize},
		{"zero workers", func(c *Config) { c.Enrich.Workers = 0 }, ErrInvalidWorkers},
		{"zero rate", func(c *Config) { c.Enrich.RatePerSecond = 0 }, ErrInvalidRate},
		{"zero attempts", func(c *Config) { c.Enrich.MaxAttempts = 0 }, ErrInvalidAttempts},
		{"negative jitter", func(c *Config) { c.Enrich.MaxJitter = -time.Second }, ErrInvalidBackoff},
		{"zero timeout", func(c *Config) { c.Enrich.Timeout = 0 }, ErrInvalidTimeout},
		{"negative ttl", func(c *Config) { c.Enrich.TTL = -time.Hour }, ErrInvalidTTL},
		{"negative clusters", func(c *Config) { c.Moods.Clusters = -1 }, ErrInvalidClusters},
		{"zero tag concurrency", func(c *Config) { c.Tags.Concurrency = 0 }, ErrInvalidTagPool},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, ErrInvalidLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()

			if tt.wantErr == nil {
				if len(errs) != 0 {
					t.Errorf("Validate() = %v, want no errors", errs)
				}
				return
			}
			if len(errs) != 1 || !errors.Is(errs[0], tt.wantErr) {
				t.Errorf("Validate() = %v, want [%v]", errs, tt.wantErr)
			}
		})
	}
}
