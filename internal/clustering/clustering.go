// Package clustering implements mood-based clustering using audio features.
package clustering

import (
	"github.com/justestif/go-spotify-wrapped/internal/features"
)

// Track represents a ranked track with its audio features.
type Track struct {
	ID       string                  `json:"track_id"`
	Name     string                  `json:"track_name"`
	Artist   string                  `json:"artist_name"`
	TotalMs  int64                   `json:"total_ms"`
	Features *features.FeatureVector `json:"-"` // nil if unavailable
}

// Centroid holds the average clustering features of a group of tracks.
type Centroid struct {
	Energy       float64 `json:"energy"`
	Valence      float64 `json:"valence"`
	Danceability float64 `json:"danceability"`
	Acousticness float64 `json:"acousticness"`
}
