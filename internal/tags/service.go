// Package tags provides a service for fetching Last.fm genre tags for artists.
package tags

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/justestif/go-spotify-wrapped/internal/lastfm"
)

// TagSource indicates where the tags came from.
type TagSource string

const (
	// SourceLastFM means tags came from artist.getTopTags.
	SourceLastFM TagSource = "lastfm"
	// SourceCache means tags came from the persistent cache.
	SourceCache TagSource = "cache"
	// SourceNone means no tags were found.
	SourceNone TagSource = "none"
)

// Default concurrency for batch processing.
const DefaultConcurrency = 5

// ArtistTags holds the tags fetched for an artist.
type ArtistTags struct {
	Artist string
	Tags   []lastfm.Tag
	Source TagSource
	Error  error // Non-nil if fetching failed
}

// TagFetcher abstracts the Last.fm client for testing.
type TagFetcher interface {
	ArtistTags(ctx context.Context, artist string) ([]lastfm.Tag, error)
}

// sourced is implemented by fetchers that know whether a result came from cache.
type sourced interface {
	ArtistTagsWithSource(ctx context.Context, artist string) ([]lastfm.Tag, TagSource, error)
}

// Service fetches tags for many artists with bounded concurrency.
type Service struct {
	fetcher     TagFetcher
	concurrency int
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithConcurrency sets the number of concurrent tag fetch operations.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a new tag service.
func NewService(fetcher TagFetcher, opts ...Option) *Service {
	s := &Service{
		fetcher:     fetcher,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchTagsForArtists fetches tags for multiple artists concurrently.
// Results are returned in the same order as the input.
// Individual fetch errors are captured in ArtistTags.Error rather than failing the batch.
func (s *Service) FetchTagsForArtists(ctx context.Context, artists []string) ([]ArtistTags, error) {
	if len(artists) == 0 {
		return []ArtistTags{}, nil
	}

	results := make([]ArtistTags, len(artists))

	type workItem struct {
		index  int
		artist string
	}
	workCh := make(chan workItem, len(artists))

	// Feed work items
	for i, a := range artists {
		workCh <- workItem{index: i, artist: a}
	}
	close(workCh)

	// Process with worker pool
	var wg sync.WaitGroup
	for i := 0; i < min(s.concurrency, len(artists)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workCh {
				if ctx.Err() != nil {
					results[work.index] = ArtistTags{
						Artist: work.artist,
						Tags:   []lastfm.Tag{},
						Source: SourceNone,
						Error:  ctx.Err(),
					}
					continue
				}
				results[work.index] = s.fetchOne(ctx, work.artist)
			}
		}()
	}

	wg.Wait()

	// Check if context was cancelled
	if ctx.Err() != nil {
		return results, ctx.Err()
	}

	return results, nil
}

func (s *Service) fetchOne(ctx context.Context, artist string) ArtistTags {
	var (
		tags   []lastfm.Tag
		source = SourceLastFM
		err    error
	)
	if sf, ok := s.fetcher.(sourced); ok {
		tags, source, err = sf.ArtistTagsWithSource(ctx, artist)
	} else {
		tags, err = s.fetcher.ArtistTags(ctx, artist)
	}

	result := ArtistTags{Artist: artist, Tags: tags, Source: source, Error: err}
	switch {
	case err != nil:
		s.logger.Debug("artist tag lookup failed", "artist", artist, "err", err)
		result.Source = SourceNone
		result.Tags = []lastfm.Tag{}
	case len(tags) == 0:
		result.Source = SourceNone
		result.Tags = []lastfm.Tag{}
	}
	return result
}

// ByArtist indexes successful results by normalized artist name.
func ByArtist(results []ArtistTags) map[string][]lastfm.Tag {
	out := make(map[string][]lastfm.Tag, len(results))
	for _, r := range results {
		if r.Error != nil || len(r.Tags) == 0 {
			continue
		}
		out[NormalizeArtist(r.Artist)] = r.Tags
	}
	return out
}

// NormalizeArtist is the cache key for an artist name.
func NormalizeArtist(artist string) string {
	return strings.ToLower(strings.Join(strings.Fields(artist), " "))
}
