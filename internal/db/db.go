// Package db provides persistent storage for enrichment results: track audio
// features and artist tags. PostgreSQL is used when a database URL is
// configured, otherwise a local SQLite file.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/go-spotify-wrapped/internal/features"
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool and applies the schema.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{pool: pool}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the cache tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// Features returns a FeatureRepository.
func (db *DB) Features() *FeatureRepository {
	return &FeatureRepository{pool: db.pool}
}

// ArtistTags returns an ArtistTagRepository.
func (db *DB) ArtistTags() *ArtistTagRepository {
	return &ArtistTagRepository{pool: db.pool}
}

// GetFeatures implements Store.
func (db *DB) GetFeatures(ctx context.Context, ids []string) (map[string]features.FeatureVector, error) {
	return db.Features().GetByIDs(ctx, ids)
}

// UpsertFeatures implements Store.
func (db *DB) UpsertFeatures(ctx context.Context, vectors []features.FeatureVector) error {
	return db.Features().UpsertBatch(ctx, vectors)
}

// PruneFeatures implements Store.
func (db *DB) PruneFeatures(ctx context.Context, olderThan time.Time) (int64, error) {
	return db.Features().DeleteOlderThan(ctx, olderThan)
}

// GetArtistTags implements Store.
func (db *DB) GetArtistTags(ctx context.Context, artists []string) (map[string][]ArtistTag, error) {
	return db.ArtistTags().GetForArtists(ctx, artists)
}

// UpsertArtistTags implements Store.
func (db *DB) UpsertArtistTags(ctx context.Context, tags []ArtistTag) error {
	return db.ArtistTags().UpsertBatch(ctx, tags)
}

// Stats implements Store.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Backend: BackendPostgres}

	var oldest, newest *time.Time
	err := db.pool.QueryRow(ctx,
		`SELECT count(*), min(fetched_at), max(fetched_at) FROM track_features`,
	).Scan(&stats.Features, &oldest, &newest)
	if err != nil {
		return Stats{}, fmt.Errorf("counting features: %w", err)
	}
	if oldest != nil {
		stats.OldestFetch = *oldest
	}
	if newest != nil {
		stats.NewestFetch = *newest
	}

	err = db.pool.QueryRow(ctx, `SELECT count(DISTINCT artist) FROM artist_tags`).Scan(&stats.Artists)
	if err != nil {
		return Stats{}, fmt.Errorf("counting artist tags: %w", err)
	}
	return stats, nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS track_features (
		track_id         TEXT PRIMARY KEY,
		danceability     DOUBLE PRECISION NOT NULL,
		energy           DOUBLE PRECISION NOT NULL,
		valence          DOUBLE PRECISION NOT NULL,
		tempo            DOUBLE PRECISION NOT NULL,
		acousticness     DOUBLE PRECISION NOT NULL,
		instrumentalness DOUBLE PRECISION NOT NULL,
		speechiness      DOUBLE PRECISION NOT NULL,
		liveness         DOUBLE PRECISION NOT NULL,
		loudness         DOUBLE PRECISION NOT NULL,
		fetched_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_track_features_fetched_at ON track_features (fetched_at)`,
	`CREATE TABLE IF NOT EXISTS artist_tags (
		artist     TEXT NOT NULL,
		tag_name   TEXT NOT NULL,
		tag_count  INTEGER NOT NULL,
		fetched_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (artist, tag_name)
	)`,
}
