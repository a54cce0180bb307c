package db

import (
	"context"
	"time"

	"github.com/justestif/go-spotify-wrapped/internal/features"
)

// Store persists enrichment results across runs. Both *DB and *SQLite
// implement it.
type Store interface {
	features.Store

	// PruneFeatures removes vectors fetched before olderThan.
	PruneFeatures(ctx context.Context, olderThan time.Time) (int64, error)

	GetArtistTags(ctx context.Context, artists []string) (map[string][]ArtistTag, error)
	UpsertArtistTags(ctx context.Context, tags []ArtistTag) error

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*SQLite)(nil)
)

// Open connects to PostgreSQL when databaseURL is set and opens the SQLite
// file at sqlitePath otherwise.
func Open(ctx context.Context, databaseURL, sqlitePath string) (Store, error) {
	if databaseURL != "" {
		pg, err := New(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	lite, err := OpenSQLite(ctx, sqlitePath)
	if err != nil {
		return nil, err
	}
	return lite, nil
}
