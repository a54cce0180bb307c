package spotify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-spotify-wrapped/internal/features"
)

// AudioFeatures retrieves audio features for one batch of track ids.
// It implements features.Service: tracks Spotify has no features for are left
// out of the result, and a 429 response is reported as features.ErrRateLimited.
// Batches larger than the Spotify limit are rejected.
func (c *Client) AudioFeatures(ctx context.Context, ids []string) (map[string]features.FeatureVector, error) {
	if len(ids) == 0 {
		return map[string]features.FeatureVector{}, nil
	}
	if len(ids) > maxTracksPerRequest {
		return nil, fmt.Errorf("audio features batch of %d exceeds limit of %d", len(ids), maxTracksPerRequest)
	}

	batch := make([]spotify.ID, len(ids))
	for i, id := range ids {
		batch[i] = spotify.ID(id)
	}

	found, err := c.api.GetAudioFeatures(ctx, batch...)
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return map[string]features.FeatureVector{}, nil
		}
		return nil, classify(fmt.Sprintf("fetching audio features (%d tracks)", len(ids)), err)
	}

	result := make(map[string]features.FeatureVector, len(found))
	for _, f := range found {
		if f == nil {
			continue // Track has no audio features
		}
		result[f.ID.String()] = convertAudioFeatures(f)
	}
	return result, nil
}

// convertAudioFeatures copies Spotify's audio features into a FeatureVector.
func convertAudioFeatures(f *spotify.AudioFeatures) features.FeatureVector {
	return features.FeatureVector{
		TrackID:          f.ID.String(),
		Acousticness:     float64(f.Acousticness),
		Danceability:     float64(f.Danceability),
		Energy:           float64(f.Energy),
		Instrumentalness: float64(f.Instrumentalness),
		Liveness:         float64(f.Liveness),
		Loudness:         float64(f.Loudness),
		Speechiness:      float64(f.Speechiness),
		Tempo:            float64(f.Tempo),
		Valence:          float64(f.Valence),
	}
}
