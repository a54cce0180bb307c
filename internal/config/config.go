// Package config provides configuration loading and validation for the CLI.
// It uses koanf to read an optional YAML file and lets environment variables
// (optionally from a .env file) override it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/mitchellh/go-homedir"
)

// DefaultFileName is the config file looked up in the home directory.
const DefaultFileName = ".spotify-wrapped.yaml"

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Defaults.
const (
	DefaultTopN            = 10
	DefaultDedupeTolerance = 2 * time.Second
	DefaultBatchSize       = 100
	DefaultWorkers         = 4
	DefaultRatePerSecond   = 5.0
	DefaultBurst           = 1
	DefaultMaxAttempts     = 5
	DefaultInitialBackoff  = 500 * time.Millisecond
	DefaultMaxBackoff      = 30 * time.Second
	DefaultMaxJitter       = 250 * time.Millisecond
	DefaultEnrichTimeout   = 60 * time.Second
	DefaultFeatureTTL      = 30 * 24 * time.Hour
	DefaultTagConcurrency  = 5
	DefaultMinMoodSize     = 2

	// MaxBatchSize is the most track ids the audio-features endpoint accepts.
	MaxBatchSize = 100
)

// Configuration validation errors.
var (
	ErrInvalidTopN      = errors.New("top_n must be positive")
	ErrInvalidTolerance = errors.New("dedupe.tolerance must be positive")
	ErrInvalidBatchSize = fmt.Errorf("enrich.batch_size must be between 1 and %d", MaxBatchSize)
	ErrInvalidWorkers   = errors.New("enrich.workers must be positive")
	ErrInvalidRate      = errors.New("enrich.rate_per_second must be positive")
	ErrInvalidBurst     = errors.New("enrich.burst must be positive")
	ErrInvalidAttempts  = errors.New("enrich.max_attempts must be positive")
	ErrInvalidBackoff   = errors.New("enrich backoff durations must not be negative")
	ErrInvalidTimeout   = errors.New("enrich.timeout must be positive")
	ErrInvalidTTL       = errors.New("enrich.ttl must not be negative")
	ErrInvalidClusters  = errors.New("moods.clusters must not be negative")
	ErrInvalidTagPool   = errors.New("tags.concurrency must be positive")
	ErrInvalidLogFormat = errors.New("log.format must be text or json")
	ErrInvalidEnvValue  = errors.New("invalid environment value")
)

// Config holds all configuration values.
type Config struct {
	TopN        int           `koanf:"top_n"`
	Dedupe      DedupeConfig  `koanf:"dedupe"`
	Enrich      EnrichConfig  `koanf:"enrich"`
	Cache       CacheConfig   `koanf:"cache"`
	DatabaseURL string        `koanf:"database_url"`
	Moods       MoodsConfig   `koanf:"moods"`
	Tags        TagsConfig    `koanf:"tags"`
	Log         LogConfig     `koanf:"log"`
	Spotify     SpotifyConfig `koanf:"spotify"`
	LastFM      LastFMConfig  `koanf:"lastfm"`
}

// DedupeConfig controls duplicate detection.
type DedupeConfig struct {
	Tolerance time.Duration `koanf:"tolerance"`
}

// EnrichConfig controls audio-feature lookups.
type EnrichConfig struct {
	BatchSize      int           `koanf:"batch_size"`
	Workers        int           `koanf:"workers"`
	RatePerSecond  float64       `koanf:"rate_per_second"`
	Burst          int           `koanf:"burst"`
	MaxAttempts    uint          `koanf:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
	MaxJitter      time.Duration `koanf:"max_jitter"`
	Timeout        time.Duration `koanf:"timeout"`
	TTL            time.Duration `koanf:"ttl"` // 0 keeps cached vectors forever
}

// CacheConfig locates the SQLite feature cache.
type CacheConfig struct {
	Path string `koanf:"path"`
}

// MoodsConfig controls mood clustering. Clusters = 0 disables it.
type MoodsConfig struct {
	Clusters int `koanf:"clusters"`
	MinSize  int `koanf:"min_size"`
}

// TagsConfig controls Last.fm tag lookups.
type TagsConfig struct {
	Concurrency int `koanf:"concurrency"`
}

// LogConfig controls log output.
type LogConfig struct {
	Format string `koanf:"format"`
}

// SpotifyConfig holds client-credentials for the Spotify Web API.
type SpotifyConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
}

// LastFMConfig holds the Last.fm API key.
type LastFMConfig struct {
	APIKey string `koanf:"api_key"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		TopN:   DefaultTopN,
		Dedupe: DedupeConfig{Tolerance: DefaultDedupeTolerance},
		Enrich: EnrichConfig{
			BatchSize:      DefaultBatchSize,
			Workers:        DefaultWorkers,
			RatePerSecond:  DefaultRatePerSecond,
			Burst:          DefaultBurst,
			MaxAttempts:    DefaultMaxAttempts,
			InitialBackoff: DefaultInitialBackoff,
			MaxBackoff:     DefaultMaxBackoff,
			MaxJitter:      DefaultMaxJitter,
			Timeout:        DefaultEnrichTimeout,
			TTL:            DefaultFeatureTTL,
		},
		Cache: CacheConfig{Path: defaultCachePath()},
		Moods: MoodsConfig{MinSize: DefaultMinMoodSize},
		Tags:  TagsConfig{Concurrency: DefaultTagConcurrency},
		Log:   LogConfig{Format: LogFormatText},
	}
}

// DefaultPath returns ~/.spotify-wrapped.yaml, or "" if the home directory
// cannot be determined.
func DefaultPath() string {
	home, err := homedir.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, DefaultFileName)
}

// Load reads configuration from an optional YAML file, a .env file in the
// working directory and environment variables, in increasing precedence.
// An empty path falls back to DefaultPath when that file exists.
// Returns the loaded config and a slice of validation errors (empty if valid).
// A config file that cannot be read is returned as the only error.
func Load(path string) (*Config, []error) {
	loadDotEnv(".env")

	k := koanf.New(".")
	if path == "" {
		if p := DefaultPath(); p != "" && fileExists(p) {
			path = p
		}
	}
	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, []error{fmt.Errorf("expanding config path %s: %w", path, err)}
		}
		if err := k.Load(file.Provider(expanded), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("loading config file %s: %w", expanded, err)}
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, []error{fmt.Errorf("decoding config: %w", err)}
	}

	errs := cfg.applyEnv()
	if expanded, err := homedir.Expand(cfg.Cache.Path); err == nil {
		cfg.Cache.Path = expanded
	}

	return cfg, append(errs, cfg.Validate()...)
}

// Validate checks every field and returns all problems found.
// Missing credentials are not errors; they disable the matching integration.
func (c *Config) Validate() []error {
	var errs []error
	check := func(ok bool, err error) {
		if !ok {
			errs = append(errs, err)
		}
	}

	check(c.TopN > 0, ErrInvalidTopN)
	check(c.Dedupe.Tolerance > 0, ErrInvalidTolerance)
	check(c.Enrich.BatchSize > 0 && c.Enrich.BatchSize <= MaxBatchSize, ErrInvalidBatchSize)
	check(c.Enrich.Workers > 0, ErrInvalidWorkers)
	check(c.Enrich.RatePerSecond > 0, ErrInvalidRate)
	check(c.Enrich.Burst > 0, ErrInvalidBurst)
	check(c.Enrich.MaxAttempts > 0, ErrInvalidAttempts)
	check(c.Enrich.InitialBackoff >= 0 && c.Enrich.MaxBackoff >= 0 && c.Enrich.MaxJitter >= 0, ErrInvalidBackoff)
	check(c.Enrich.Timeout > 0, ErrInvalidTimeout)
	check(c.Enrich.TTL >= 0, ErrInvalidTTL)
	check(c.Moods.Clusters >= 0, ErrInvalidClusters)
	check(c.Tags.Concurrency > 0, ErrInvalidTagPool)
	check(c.Log.Format == LogFormatText || c.Log.Format == LogFormatJSON, ErrInvalidLogFormat)

	return errs
}

// SpotifyEnabled reports whether Spotify credentials are configured.
func (c *Config) SpotifyEnabled() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}

// LastFMEnabled reports whether a Last.fm API key is configured.
func (c *Config) LastFMEnabled() bool {
	return c.LastFM.APIKey != ""
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() []error {
	var errs []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("SPOTIFY_ID", &c.Spotify.ClientID)
	setString("SPOTIFY_SECRET", &c.Spotify.ClientSecret)
	setString("LASTFM_API_KEY", &c.LastFM.APIKey)
	setString("DATABASE_URL", &c.DatabaseURL)
	setString("WRAPPED_CACHE_PATH", &c.Cache.Path)
	setString("WRAPPED_LOG_FORMAT", &c.Log.Format)

	if v := os.Getenv("WRAPPED_TOP_N"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("WRAPPED_TOP_N must be an integer: %w", ErrInvalidEnvValue))
		} else {
			c.TopN = n
		}
	}
	if v := os.Getenv("WRAPPED_ENRICH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("WRAPPED_ENRICH_TIMEOUT must be a duration: %w", ErrInvalidEnvValue))
		} else {
			c.Enrich.Timeout = d
		}
	}

	return errs
}

// loadDotEnv loads path into the environment if it exists. Variables that are
// already set win.
func loadDotEnv(path string) {
	if fileExists(path) {
		_ = godotenv.Load(path)
	}
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		home, herr := homedir.Dir()
		if herr != nil {
			return "spotify-wrapped.db"
		}
		dir = filepath.Join(home, ".cache")
	}
	return filepath.Join(dir, "spotify-wrapped", "features.db")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
