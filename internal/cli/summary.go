package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/justestif/go-spotify-wrapped/internal/auth"
	"github.com/justestif/go-spotify-wrapped/internal/clustering"
	"github.com/justestif/go-spotify-wrapped/internal/config"
	"github.com/justestif/go-spotify-wrapped/internal/db"
	"github.com/justestif/go-spotify-wrapped/internal/features"
	"github.com/justestif/go-spotify-wrapped/internal/history"
	"github.com/justestif/go-spotify-wrapped/internal/lastfm"
	"github.com/justestif/go-spotify-wrapped/internal/metrics"
	"github.com/justestif/go-spotify-wrapped/internal/pipeline"
	"github.com/justestif/go-spotify-wrapped/internal/spotify"
	"github.com/justestif/go-spotify-wrapped/internal/tags"
)

// Export file names, for both the extended and the account-data download.
var exportPatterns = []string{"Streaming_History*.json", "StreamingHistory*.json"}

type summaryFlags struct {
	top         int
	noEnrich    bool
	timeout     time.Duration
	metricsFile string
}

func (a *app) summaryCmd() *cobra.Command {
	var flags summaryFlags

	cmd := &cobra.Command{
		Use:   "summary FILE|DIR...",
		Short: "Summarize one or more streaming history exports",
		Long: `Reads Spotify streaming history exports and prints totals, listening
patterns, top artists and tracks and, when credentials are configured,
audio-feature profiles of the top tracks.

Directories are searched for Streaming_History*.json and StreamingHistory*.json.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSummary(cmd.Context(), args, flags)
		},
	}

	cmd.Flags().IntVarP(&flags.top, "top", "n", 0, "number of top artists and tracks (default from config)")
	cmd.Flags().BoolVar(&flags.noEnrich, "no-enrich", false, "skip audio-feature and genre lookups")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "time budget for enrichment (default from config)")
	cmd.Flags().StringVar(&flags.metricsFile, "metrics-file", "", "write Prometheus metrics to this file")
	return cmd
}

func (a *app) runSummary(ctx context.Context, args []string, flags summaryFlags) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if flags.top > 0 {
		cfg.TopN = flags.top
	}
	if flags.timeout > 0 {
		cfg.Enrich.Timeout = flags.timeout
	}

	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	payloads, err := readPayloads(files)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics()
	if err := m.Register(reg); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithMetrics(m),
	}
	if cfg.Moods.Clusters > 0 {
		opts = append(opts, pipeline.WithMoodClustering(clustering.MoodConfig{
			NumClusters:    cfg.Moods.Clusters,
			MinClusterSize: cfg.Moods.MinSize,
		}))
	}
	if !flags.noEnrich {
		enrichOpts, closeFn := a.enrichmentOptions(ctx, cfg, m)
		defer closeFn()
		opts = append(opts, enrichOpts...)
	}

	engine := pipeline.New(pipeline.Config{
		TopN:            cfg.TopN,
		DedupeTolerance: cfg.Dedupe.Tolerance,
		EnrichTimeout:   cfg.Enrich.Timeout,
	}, opts...)

	result, runErr := engine.Run(ctx, payloads)

	if flags.metricsFile != "" {
		if err := prometheus.WriteToTextfile(flags.metricsFile, reg); err != nil {
			a.logger.Warn("writing metrics file", "path", flags.metricsFile, "err", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	if a.format == formatJSON {
		return writeJSON(a.stdout, newSummaryOutput(result))
	}
	return writeSummaryTable(a.stdout, result)
}

// enrichmentOptions wires the optional external integrations. Anything that
// cannot be set up is logged and left out; the summary still runs.
// The returned func releases the persistent store.
func (a *app) enrichmentOptions(ctx context.Context, cfg *config.Config, m *metrics.Metrics) ([]pipeline.Option, func()) {
	var opts []pipeline.Option
	closeFn := func() {}

	if !cfg.SpotifyEnabled() && !cfg.LastFMEnabled() {
		a.logger.Info("enrichment disabled: set SPOTIFY_ID and SPOTIFY_SECRET or LASTFM_API_KEY to enable")
		return nil, closeFn
	}

	store, err := db.Open(ctx, cfg.DatabaseURL, cfg.Cache.Path)
	if err != nil {
		a.logger.Warn("feature cache unavailable", "err", err)
	} else {
		closeFn = func() {
			if err := store.Close(); err != nil {
				a.logger.Warn("closing feature cache", "err", err)
			}
		}
	}

	if cfg.SpotifyEnabled() {
		client, err := a.spotifyClient(ctx, cfg)
		if err != nil {
			a.logger.Warn("audio features disabled", "err", err)
		} else {
			fetcher := features.NewBatchFetcher(client, features.FetcherConfig{
				Limiter: rate.NewLimiter(rate.Limit(cfg.Enrich.RatePerSecond), cfg.Enrich.Burst),
				Backoff: features.BackoffPolicy{
					Attempts:     cfg.Enrich.MaxAttempts,
					InitialDelay: cfg.Enrich.InitialBackoff,
					MaxDelay:     cfg.Enrich.MaxBackoff,
					MaxJitter:    cfg.Enrich.MaxJitter,
				},
				Logger:  a.logger,
				Metrics: m,
			})
			cacheOpts := []features.Option{
				features.WithBatchSize(cfg.Enrich.BatchSize),
				features.WithWorkers(cfg.Enrich.Workers),
				features.WithTTL(cfg.Enrich.TTL),
				features.WithLogger(a.logger),
				features.WithMetrics(m),
			}
			if store != nil {
				cacheOpts = append(cacheOpts, features.WithStore(store))
			}
			opts = append(opts,
				pipeline.WithEnricher(features.NewCache(fetcher, cacheOpts...)),
				pipeline.WithResolver(pipeline.ThrottledResolver(client, fetcher)),
			)
		}
	}

	if cfg.LastFMEnabled() {
		var fetcher tags.TagFetcher = lastfm.NewClient(&lastfm.Config{APIKey: cfg.LastFM.APIKey})
		if store != nil {
			fetcher = tags.NewCachedTagFetcher(store, fetcher, a.logger)
		}
		opts = append(opts, pipeline.WithTagger(tags.NewService(fetcher,
			tags.WithConcurrency(cfg.Tags.Concurrency),
			tags.WithLogger(a.logger),
		)))
	}

	return opts, closeFn
}

func (a *app) spotifyClient(ctx context.Context, cfg *config.Config) (*spotify.Client, error) {
	authOpts := []auth.Option{auth.WithLogger(a.logger)}
	if cache, err := auth.DefaultTokenCache(); err == nil {
		authOpts = append(authOpts, auth.WithTokenCache(cache))
	}

	authenticator, err := auth.New(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, authOpts...)
	if err != nil {
		return nil, err
	}
	httpClient, err := authenticator.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticating with spotify: %w", err)
	}
	return spotify.NewFromHTTP(httpClient, ""), nil
}

// collectFiles expands directories into the export files they contain.
// Plain file arguments are used as given. A file named twice is read once.
func collectFiles(args []string) ([]string, error) {
	var files []string
	seen := make(map[string]struct{})
	add := func(path string) {
		key := filepath.Clean(path)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		files = append(files, path)
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", arg, err)
		}
		if !info.IsDir() {
			add(arg)
			continue
		}

		var found []string
		for _, pattern := range exportPatterns {
			matches, err := filepath.Glob(filepath.Join(arg, pattern))
			if err != nil {
				return nil, fmt.Errorf("searching %s: %w", arg, err)
			}
			found = append(found, matches...)
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("no streaming history files in %s", arg)
		}
		slices.Sort(found)
		for _, f := range found {
			add(f)
		}
	}
	return files, nil
}

func readPayloads(files []string) ([][]history.RawRecord, error) {
	payloads := make([][]history.RawRecord, 0, len(files))
	for _, path := range files {
		records, err := readPayload(path)
		if err != nil {
			return nil, err
		}
		slog.Debug("read export file", "path", path, "records", len(records))
		payloads = append(payloads, records)
	}
	return payloads, nil
}

func readPayload(path string) ([]history.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	records, err := history.ParsePayload(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return records, nil
}
