package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/go-spotify-wrapped/internal/features"
)

// FeatureRepository handles track feature database operations.
type FeatureRepository struct {
	pool *pgxpool.Pool
}

// UpsertBatch inserts or updates multiple feature vectors efficiently.
func (r *FeatureRepository) UpsertBatch(ctx context.Context, vectors []features.FeatureVector) error {
	if len(vectors) == 0 {
		return nil
	}

	query := `
		INSERT INTO track_features (
			track_id, danceability, energy, valence, tempo, acousticness,
			instrumentalness, speechiness, liveness, loudness, fetched_at
		)
		SELECT * FROM unnest(
			$1::text[], $2::float8[], $3::float8[], $4::float8[], $5::float8[], $6::float8[],
			$7::float8[], $8::float8[], $9::float8[], $10::float8[], $11::timestamptz[]
		)
		ON CONFLICT (track_id) DO UPDATE SET
			danceability = EXCLUDED.danceability,
			energy = EXCLUDED.energy,
			valence = EXCLUDED.valence,
			tempo = EXCLUDED.tempo,
			acousticness = EXCLUDED.acousticness,
			instrumentalness = EXCLUDED.instrumentalness,
			speechiness = EXCLUDED.speechiness,
			liveness = EXCLUDED.liveness,
			loudness = EXCLUDED.loudness,
			fetched_at = EXCLUDED.fetched_at
	`

	n := len(vectors)
	var (
		ids              = make([]string, n)
		danceability     = make([]float64, n)
		energy           = make([]float64, n)
		valence          = make([]float64, n)
		tempo            = make([]float64, n)
		acousticness     = make([]float64, n)
		instrumentalness = make([]float64, n)
		speechiness      = make([]float64, n)
		liveness         = make([]float64, n)
		loudness         = make([]float64, n)
		fetchedAts       = make([]time.Time, n)
	)
	for i, v := range vectors {
		ids[i] = v.TrackID
		danceability[i] = v.Danceability
		energy[i] = v.Energy
		valence[i] = v.Valence
		tempo[i] = v.Tempo
		acousticness[i] = v.Acousticness
		instrumentalness[i] = v.Instrumentalness
		speechiness[i] = v.Speechiness
		liveness[i] = v.Liveness
		loudness[i] = v.Loudness
		fetchedAts[i] = v.FetchedAt
	}

	_, err := r.pool.Exec(ctx, query,
		ids, danceability, energy, valence, tempo, acousticness,
		instrumentalness, speechiness, liveness, loudness, fetchedAts,
	)
	if err != nil {
		return fmt.Errorf("batch upserting features: %w", err)
	}
	return nil
}

// GetByIDs retrieves feature vectors for multiple tracks, keyed by track ID.
// Unknown IDs are absent from the result.
func (r *FeatureRepository) GetByIDs(ctx context.Context, ids []string) (map[string]features.FeatureVector, error) {
	result := make(map[string]features.FeatureVector, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `
		SELECT track_id, danceability, energy, valence, tempo, acousticness,
			instrumentalness, speechiness, liveness, loudness, fetched_at
		FROM track_features
		WHERE track_id = ANY($1)
	`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("querying features: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v features.FeatureVector
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
			&v.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning features: %w", err)
		}
		v.FetchedAt = v.FetchedAt.UTC()
		result[v.TrackID] = v
	}
	return result, rows.Err()
}

// DeleteOlderThan removes vectors fetched before olderThan and returns how
// many were removed.
func (r *FeatureRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM track_features WHERE fetched_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("pruning features: %w", err)
	}
	return tag.RowsAffected(), nil
}
