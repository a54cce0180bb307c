package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ArtistTagRepository handles artist tag database operations.
type ArtistTagRepository struct {
	pool *pgxpool.Pool
}

// UpsertBatch inserts or updates multiple tags efficiently.
func (r *ArtistTagRepository) UpsertBatch(ctx context.Context, tags []ArtistTag) error {
	if len(tags) == 0 {
		return nil
	}

	query := `
		INSERT INTO artist_tags (artist, tag_name, tag_count, fetched_at)
		SELECT * FROM unnest($1::text[], $2::text[], $3::int[], $4::timestamptz[])
		ON CONFLICT (artist, tag_name) DO UPDATE SET
			tag_count = EXCLUDED.tag_count,
			fetched_at = EXCLUDED.fetched_at
	`

	artists := make([]string, len(tags))
	tagNames := make([]string, len(tags))
	tagCounts := make([]int32, len(tags))
	fetchedAts := make([]time.Time, len(tags))

	for i, t := range tags {
		artists[i] = t.Artist
		tagNames[i] = t.TagName
		tagCounts[i] = int32(t.TagCount)
		fetchedAts[i] = t.FetchedAt
	}

	_, err := r.pool.Exec(ctx, query, artists, tagNames, tagCounts, fetchedAts)
	if err != nil {
		return fmt.Errorf("batch upserting artist tags: %w", err)
	}
	return nil
}

// GetForArtists retrieves tags for multiple artists, returning a map of
// artist to tags ordered by count.
func (r *ArtistTagRepository) GetForArtists(ctx context.Context, artists []string) (map[string][]ArtistTag, error) {
	if len(artists) == 0 {
		return make(map[string][]ArtistTag), nil
	}

	query := `
		SELECT artist, tag_name, tag_count, fetched_at
		FROM artist_tags
		WHERE artist = ANY($1)
		ORDER BY artist, tag_count DESC, tag_name
	`
	rows, err := r.pool.Query(ctx, query, artists)
	if err != nil {
		return nil, fmt.Errorf("querying artist tags: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]ArtistTag)
	for rows.Next() {
		var tag ArtistTag
		if err := rows.Scan(
			&tag.Artist,
			&tag.TagName,
			&tag.TagCount,
			&tag.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tag.FetchedAt = tag.FetchedAt.UTC()
		result[tag.Artist] = append(result[tag.Artist], tag)
	}
	return result, rows.Err()
}
