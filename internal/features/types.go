// Package features enriches tracks with audio features from an external
// service, serving from a local cache first and falling back to batched,
// rate-limited lookups that tolerate partial failure.
package features

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited is returned by a Service when the external service rejects a
// request for exceeding its rate limit. It is retried with backoff.
var ErrRateLimited = errors.New("feature service rate limit exceeded")

// FeatureVector holds the audio characteristics of one track.
type FeatureVector struct {
	TrackID          string    `json:"track_id"`
	Danceability     float64   `json:"danceability"`
	Energy           float64   `json:"energy"`
	Valence          float64   `json:"valence"`
	Tempo            float64   `json:"tempo"`
	Acousticness     float64   `json:"acousticness"`
	Instrumentalness float64   `json:"instrumentalness"`
	Speechiness      float64   `json:"speechiness"`
	Liveness         float64   `json:"liveness"`
	Loudness         float64   `json:"loudness"`
	FetchedAt        time.Time `json:"fetched_at"`
}

// Service is the external per-track feature lookup contract.
// It accepts a bounded batch of track ids and returns vectors for the ids it
// knows; ids missing from the result were not found. A rate-limit rejection
// is reported as an error matching ErrRateLimited.
type Service interface {
	AudioFeatures(ctx context.Context, ids []string) (map[string]FeatureVector, error)
}

// Store persists feature vectors across runs, keyed strictly by track id.
type Store interface {
	GetFeatures(ctx context.Context, ids []string) (map[string]FeatureVector, error)
	UpsertFeatures(ctx context.Context, vectors []FeatureVector) error
}

// BatchError reports track ids whose lookup failed permanently, after retries
// were exhausted or because the service refused them.
type BatchError struct {
	IDs []string
	Err error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("feature lookup failed for %d tracks: %v", len(e.IDs), e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
