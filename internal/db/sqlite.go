package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/justestif/go-spotify-wrapped/internal/features"
)

// sqliteMaxVars stays well below SQLite's bound-parameter limit.
const sqliteMaxVars = 500

// SQLite is a Store backed by a local SQLite file.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates a SQLite database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLite{db: sqlDB, path: path}
	if err := s.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS track_features (
		track_id         TEXT PRIMARY KEY,
		danceability     REAL NOT NULL,
		energy           REAL NOT NULL,
		valence          REAL NOT NULL,
		tempo            REAL NOT NULL,
		acousticness     REAL NOT NULL,
		instrumentalness REAL NOT NULL,
		speechiness      REAL NOT NULL,
		liveness         REAL NOT NULL,
		loudness         REAL NOT NULL,
		fetched_at       INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_track_features_fetched_at ON track_features(fetched_at);

	CREATE TABLE IF NOT EXISTS artist_tags (
		artist     TEXT NOT NULL,
		tag_name   TEXT NOT NULL,
		tag_count  INTEGER NOT NULL,
		fetched_at INTEGER NOT NULL,
		PRIMARY KEY (artist, tag_name)
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// GetFeatures implements Store.
func (s *SQLite) GetFeatures(ctx context.Context, ids []string) (map[string]features.FeatureVector, error) {
	result := make(map[string]features.FeatureVector, len(ids))

	for start := 0; start < len(ids); start += sqliteMaxVars {
		chunk := ids[start:min(start+sqliteMaxVars, len(ids))]
		query := `
			SELECT track_id, danceability, energy, valence, tempo, acousticness,
				instrumentalness, speechiness, liveness, loudness, fetched_at
			FROM track_features
			WHERE track_id IN (` + placeholders(len(chunk)) + `)`

		rows, err := s.db.QueryContext(ctx, query, stringArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("querying features: %w", err)
		}
		for rows.Next() {
			var (
				v         features.FeatureVector
				fetchedAt int64
			)
			if err := rows.Scan(
				&v.TrackID,
				&v.Danceability,
				&v.Energy,
				&v.Valence,
				&v.Tempo,
				&v.Acousticness,
				&v.Instrumentalness,
				&v.Speechiness,
				&v.Liveness,
				&v.Loudness,
				&fetchedAt,
			); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning features: %w", err)
			}
			v.FetchedAt = time.UnixMilli(fetchedAt).UTC()
			result[v.TrackID] = v
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("reading features: %w", err)
		}
	}
	return result, nil
}

// UpsertFeatures implements Store.
func (s *SQLite) UpsertFeatures(ctx context.Context, vectors []features.FeatureVector) error {
	if len(vectors) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO track_features (
			track_id, danceability, energy, valence, tempo, acousticness,
			instrumentalness, speechiness, liveness, loudness, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(track_id) DO UPDATE SET
			danceability = excluded.danceability,
			energy = excluded.energy,
			valence = excluded.valence,
			tempo = excluded.tempo,
			acousticness = excluded.acousticness,
			instrumentalness = excluded.instrumentalness,
			speechiness = excluded.speechiness,
			liveness = excluded.liveness,
			loudness = excluded.loudness,
			fetched_at = excluded.fetched_at`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, v := range vectors {
		if _, err := stmt.ExecContext(ctx,
			v.TrackID, v.Danceability, v.Energy, v.Valence, v.Tempo, v.Acousticness,
			v.Instrumentalness, v.Speechiness, v.Liveness, v.Loudness, v.FetchedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("upserting features for %s: %w", v.TrackID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing features: %w", err)
	}
	return nil
}

// PruneFeatures implements Store.
func (s *SQLite) PruneFeatures(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM track_features WHERE fetched_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning features: %w", err)
	}
	return res.RowsAffected()
}

// GetArtistTags implements Store.
func (s *SQLite) GetArtistTags(ctx context.Context, artists []string) (map[string][]ArtistTag, error) {
	result := make(map[string][]ArtistTag)

	for start := 0; start < len(artists); start += sqliteMaxVars {
		chunk := artists[start:min(start+sqliteMaxVars, len(artists))]
		query := `
			SELECT artist, tag_name, tag_count, fetched_at
			FROM artist_tags
			WHERE artist IN (` + placeholders(len(chunk)) + `)
			ORDER BY artist, tag_count DESC, tag_name`

		rows, err := s.db.QueryContext(ctx, query, stringArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("querying artist tags: %w", err)
		}
		for rows.Next() {
			var (
				tag       ArtistTag
				fetchedAt int64
			)
			if err := rows.Scan(&tag.Artist, &tag.TagName, &tag.TagCount, &fetchedAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning tag: %w", err)
			}
			tag.FetchedAt = time.UnixMilli(fetchedAt).UTC()
			result[tag.Artist] = append(result[tag.Artist], tag)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("reading artist tags: %w", err)
		}
	}
	return result, nil
}

// UpsertArtistTags implements Store.
func (s *SQLite) UpsertArtistTags(ctx context.Context, tags []ArtistTag) error {
	if len(tags) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO artist_tags (artist, tag_name, tag_count, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(artist, tag_name) DO UPDATE SET
			tag_count = excluded.tag_count,
			fetched_at = excluded.fetched_at`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tags {
		if _, err := stmt.ExecContext(ctx, t.Artist, t.TagName, t.TagCount, t.FetchedAt.UnixMilli()); err != nil {
			return fmt.Errorf("upserting tag %s for %s: %w", t.TagName, t.Artist, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing artist tags: %w", err)
	}
	return nil
}

// Stats implements Store.
func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Backend: BackendSQLite}

	var oldest, newest sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*), min(fetched_at), max(fetched_at) FROM track_features`,
	).Scan(&stats.Features, &oldest, &newest)
	if err != nil {
		return Stats{}, fmt.Errorf("counting features: %w", err)
	}
	if oldest.Valid {
		stats.OldestFetch = time.UnixMilli(oldest.Int64).UTC()
	}
	if newest.Valid {
		stats.NewestFetch = time.UnixMilli(newest.Int64).UTC()
	}

	err = s.db.QueryRowContext(ctx, `SELECT count(DISTINCT artist) FROM artist_tags`).Scan(&stats.Artists)
	if err != nil {
		return Stats{}, fmt.Errorf("counting artist tags: %w", err)
	}
	return stats, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
