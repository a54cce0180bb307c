package tags

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/justestif/go-spotify-wrapped/internal/db"
	"github.com/justestif/go-spotify-wrapped/internal/lastfm"
)

// CacheTTL is the duration after which cached tags are considered stale.
const CacheTTL = 30 * 24 * time.Hour // 30 days

// TagStore is the part of db.Store the cache needs.
type TagStore interface {
	GetArtistTags(ctx context.Context, artists []string) (map[string][]db.ArtistTag, error)
	UpsertArtistTags(ctx context.Context, tags []db.ArtistTag) error
}

// CachedTagFetcher implements TagFetcher with database persistence.
// It checks the store first, then falls back to the underlying fetcher for
// misses and stale entries, persisting new results.
type CachedTagFetcher struct {
	store   TagStore
	fetcher TagFetcher
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewCachedTagFetcher wraps fetcher with store persistence.
func NewCachedTagFetcher(store TagStore, fetcher TagFetcher, logger *slog.Logger) *CachedTagFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedTagFetcher{
		store:   store,
		fetcher: fetcher,
		ttl:     CacheTTL,
		now:     time.Now,
		logger:  logger,
	}
}

// ArtistTags implements TagFetcher.
func (c *CachedTagFetcher) ArtistTags(ctx context.Context, artist string) ([]lastfm.Tag, error) {
	tags, _, err := c.ArtistTagsWithSource(ctx, artist)
	return tags, err
}

// ArtistTagsWithSource returns the tags and whether they came from the store.
func (c *CachedTagFetcher) ArtistTagsWithSource(ctx context.Context, artist string) ([]lastfm.Tag, TagSource, error) {
	key := NormalizeArtist(artist)

	cached, err := c.store.GetArtistTags(ctx, []string{key})
	if err != nil {
		// Fall through to Last.fm; a broken cache should not hide tags.
		c.logger.Warn("reading cached artist tags failed", "artist", artist, "err", err)
	} else if rows := cached[key]; len(rows) > 0 && c.now().Sub(rows[0].FetchedAt) < c.ttl {
		return dbTagsToLastfmTags(rows), SourceCache, nil
	}

	tags, err := c.fetcher.ArtistTags(ctx, artist)
	if err != nil {
		return nil, SourceNone, err
	}

	if err := c.persist(ctx, key, tags); err != nil {
		c.logger.Warn("persisting artist tags failed", "artist", artist, "err", err)
	}
	return tags, SourceLastFM, nil
}

func (c *CachedTagFetcher) persist(ctx context.Context, key string, tags []lastfm.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	now := c.now().UTC()
	rows := make([]db.ArtistTag, len(tags))
	for i, t := range tags {
		rows[i] = db.ArtistTag{
			Artist:    key,
			TagName:   t.Name,
			TagCount:  int(t.Count),
			FetchedAt: now,
		}
	}
	if err := c.store.UpsertArtistTags(context.WithoutCancel(ctx), rows); err != nil {
		return fmt.Errorf("persisting tags: %w", err)
	}
	return nil
}

// dbTagsToLastfmTags converts stored tags to lastfm.Tag.
func dbTagsToLastfmTags(rows []db.ArtistTag) []lastfm.Tag {
	tags := make([]lastfm.Tag, len(rows))
	for i, t := range rows {
		tags[i] = lastfm.Tag{
			Name:  t.TagName,
			Count: lastfm.Count(t.TagCount),
		}
	}
	return tags
}
