// Package pipeline runs one listening-history upload through every stage:
// normalization, deduplication, aggregation, enrichment and synthesis.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-spotify-wrapped/internal/aggregate"
	"github.com/justestif/go-spotify-wrapped/internal/clustering"
	"github.com/justestif/go-spotify-wrapped/internal/features"
	"github.com/justestif/go-spotify-wrapped/internal/history"
	"github.com/justestif/go-spotify-wrapped/internal/insight"
	"github.com/justestif/go-spotify-wrapped/internal/metrics"
	"github.com/justestif/go-spotify-wrapped/internal/tags"
)

// DefaultEnrichTimeout bounds the enrichment stage when Config leaves it unset.
const DefaultEnrichTimeout = 60 * time.Second

// ErrEmptyDataset is returned when no usable play survives validation and
// deduplication.
var ErrEmptyDataset = errors.New("no usable listening data")

// Enricher resolves feature vectors for track ids. Missing ids are unavailable.
type Enricher interface {
	Enrich(ctx context.Context, ids []string) (map[string]features.FeatureVector, features.Report)
}

// Resolver finds the track id of a track known only by name.
type Resolver interface {
	ResolveTrackID(ctx context.Context, artist, track string) (string, error)
}

// Throttler runs a request under a shared rate limit, retrying it while the
// service reports features.ErrRateLimited. *features.BatchFetcher implements it.
type Throttler interface {
	Call(ctx context.Context, op func(context.Context) error, logAttrs ...any) error
}

// ThrottledResolver routes every lookup of r through t.
func ThrottledResolver(r Resolver, t Throttler) Resolver {
	return throttledResolver{resolver: r, throttler: t}
}

type throttledResolver struct {
	resolver  Resolver
	throttler Throttler
}

func (r throttledResolver) ResolveTrackID(ctx context.Context, artist, track string) (string, error) {
	var id string
	err := r.throttler.Call(ctx, func(ctx context.Context) error {
		var err error
		id, err = r.resolver.ResolveTrackID(ctx, artist, track)
		return err
	}, "track", track)
	return id, err
}

// Tagger fetches genre tags for artists.
type Tagger interface {
	FetchTagsForArtists(ctx context.Context, artists []string) ([]tags.ArtistTags, error)
}

// Config holds per-run policy.
type Config struct {
	TopN            int
	DedupeTolerance time.Duration
	// EnrichTimeout bounds id resolution, feature enrichment and tag lookups
	// together. Work left when it expires is skipped, not failed.
	EnrichTimeout time.Duration
}

// DefaultConfig returns the standard run policy.
func DefaultConfig() Config {
	return Config{
		TopN:            insight.DefaultTopN,
		DedupeTolerance: history.DefaultTolerance,
		EnrichTimeout:   DefaultEnrichTimeout,
	}
}

// Result is the outcome of one run.
type Result struct {
	RunID   string
	Summary insight.Summary
	Report  features.Report
	// Moods is nil unless mood clustering is enabled.
	Moods        []clustering.MoodCluster
	MoodOutliers []clustering.Track
}

// Engine runs the pipeline. Enrichment, id resolution and tagging are optional.
type Engine struct {
	cfg      Config
	enricher Enricher
	resolver Resolver
	tagger   Tagger
	moods    *clustering.MoodConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithEnricher enables audio-feature enrichment of the top tracks.
func WithEnricher(e Enricher) Option {
	return func(p *Engine) {
		p.enricher = e
	}
}

// WithResolver enables track id lookup for top tracks exported without ids.
func WithResolver(r Resolver) Option {
	return func(p *Engine) {
		p.resolver = r
	}
}

// WithTagger enables genre tags for the top artists.
func WithTagger(t Tagger) Option {
	return func(p *Engine) {
		p.tagger = t
	}
}

// WithMoodClustering groups enriched top tracks into moods.
func WithMoodClustering(cfg clustering.MoodConfig) Option {
	return func(p *Engine) {
		p.moods = &cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Engine) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Engine) {
		p.metrics = m
	}
}

// New creates an Engine. Zero Config fields take defaults.
func New(cfg Config, opts ...Option) *Engine {
	defaults := DefaultConfig()
	if cfg.TopN <= 0 {
		cfg.TopN = defaults.TopN
	}
	if cfg.DedupeTolerance <= 0 {
		cfg.DedupeTolerance = defaults.DedupeTolerance
	}
	if cfg.EnrichTimeout <= 0 {
		cfg.EnrichTimeout = defaults.EnrichTimeout
	}

	e := &Engine{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run processes the export payloads of one upload.
// It returns ErrEmptyDataset when nothing usable remains after validation and
// an *insight.InvariantError when stages disagree. Enrichment problems never
// fail a run; they leave features unavailable.
func (e *Engine) Run(ctx context.Context, payloads [][]history.RawRecord) (*Result, error) {
	runID := uuid.NewString()
	logger := e.logger.With("run_id", runID)
	start := time.Now()

	set, stats := history.Normalize(payloads...)
	for reason, n := range stats.DroppedByReason {
		e.metrics.AddDropped(reason, n)
	}
	set, duplicates := history.Dedupe(set, e.cfg.DedupeTolerance)
	e.metrics.AddDuplicates(duplicates)

	logger.Info("normalized listening history",
		"files", len(payloads),
		"records", stats.Total,
		"dropped", stats.Dropped,
		"duplicates", duplicates,
		"events", set.Len(),
	)

	if set.Len() == 0 {
		e.metrics.IncRuns(metrics.StatusEmpty)
		return nil, ErrEmptyDataset
	}

	histogram := aggregate.Temporal(set)
	ranking := aggregate.Rank(set)

	enrichCtx, cancel := context.WithTimeout(ctx, e.cfg.EnrichTimeout)
	defer cancel()

	e.resolveTrackIDs(enrichCtx, logger, ranking.Tracks)

	vectors, report := e.enrich(enrichCtx, ranking.Tracks)
	artistTags := e.fetchTags(enrichCtx, logger, aggregate.Top(ranking.Artists, e.cfg.TopN))

	if err := ctx.Err(); err != nil {
		e.metrics.IncRuns(metrics.StatusFailure)
		return nil, fmt.Errorf("running pipeline: %w", err)
	}

	summary, err := insight.Synthesize(insight.Input{
		Events:            set,
		Stats:             stats,
		DuplicatesRemoved: duplicates,
		Histogram:         histogram,
		Ranking:           ranking,
		Features:          vectors,
		ArtistTags:        artistTags,
		TopN:              e.cfg.TopN,
	})
	if err != nil {
		e.metrics.IncRuns(metrics.StatusFailure)
		return nil, fmt.Errorf("synthesizing summary: %w", err)
	}

	result := &Result{
		RunID:   runID,
		Summary: summary,
		Report:  report,
	}
	if e.moods != nil {
		result.Moods, result.MoodOutliers = clustering.DetectMoods(moodTracks(summary.TopTracks), *e.moods)
	}

	e.metrics.IncRuns(metrics.StatusSuccess)
	logger.Info("pipeline finished",
		"top_tracks", len(summary.TopTracks),
		"enriched", len(vectors),
		"duration", time.Since(start),
	)
	return result, nil
}

// resolveTrackIDs fills in missing ids of the top tracks in place. Failures
// leave the id empty.
func (e *Engine) resolveTrackIDs(ctx context.Context, logger *slog.Logger, tracks []aggregate.Entity) {
	if e.resolver == nil {
		return
	}

	for i := range tracks[:min(e.cfg.TopN, len(tracks))] {
		t := &tracks[i]
		if t.TrackID != "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		id, err := e.resolver.ResolveTrackID(ctx, t.ArtistName, t.DisplayName)
		if err != nil {
			logger.Warn("resolving track id", "track", t.DisplayName, "artist", t.ArtistName, "err", err)
			continue
		}
		t.TrackID = id
	}
}

func (e *Engine) enrich(ctx context.Context, tracks []aggregate.Entity) (map[string]features.FeatureVector, features.Report) {
	if e.enricher == nil {
		return nil, features.Report{}
	}

	var ids []string
	for _, t := range aggregate.Top(tracks, e.cfg.TopN) {
		if t.TrackID != "" {
			ids = append(ids, t.TrackID)
		}
	}
	if len(ids) == 0 {
		return nil, features.Report{}
	}
	return e.enricher.Enrich(ctx, ids)
}

// fetchTags returns tags keyed by artist key. Partial results survive a timeout.
func (e *Engine) fetchTags(ctx context.Context, logger *slog.Logger, artists []aggregate.Entity) map[string][]insight.Tag {
	if e.tagger == nil || len(artists) == 0 {
		return nil
	}

	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.DisplayName
	}

	results, err := e.tagger.FetchTagsForArtists(ctx, names)
	if err != nil {
		logger.Warn("fetching artist tags", "artists", len(names), "err", err)
	}

	byName := tags.ByArtist(results)
	out := make(map[string][]insight.Tag, len(byName))
	for _, a := range artists {
		found, ok := byName[tags.NormalizeArtist(a.DisplayName)]
		if !ok {
			continue
		}
		converted := make([]insight.Tag, len(found))
		for i, t := range found {
			converted[i] = insight.Tag{Name: t.Name, Count: int(t.Count)}
		}
		out[a.Key] = converted
	}
	return out
}

func moodTracks(top []insight.RankedTrack) []clustering.Track {
	out := make([]clustering.Track, len(top))
	for i, t := range top {
		out[i] = clustering.Track{
			ID:       t.TrackID,
			Name:     t.DisplayName,
			Artist:   t.ArtistName,
			TotalMs:  t.TotalMs,
			Features: t.Features,
		}
	}
	return out
}
