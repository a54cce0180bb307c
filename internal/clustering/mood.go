package clustering

import (
	"cmp"
	"log/slog"
	"slices"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

// MoodConfig holds mood-based clustering parameters.
type MoodConfig struct {
	NumClusters    int // Number of clusters to create (default: 3)
	MinClusterSize int // Minimum tracks per mood (smaller clusters become outliers)
}

// DefaultMoodConfig returns the recommended default configuration.
func DefaultMoodConfig() MoodConfig {
	return MoodConfig{
		NumClusters:    3,
		MinClusterSize: 2,
	}
}

// MoodCluster represents a group of tracks with a similar mood.
type MoodCluster struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Centroid    Centroid `json:"centroid"`
	TotalMs     int64    `json:"total_ms"` // listening time across the cluster
	Tracks      []Track  `json:"tracks"`   // heaviest first
}

// trackObservation wraps a Track to implement clusters.Observation interface.
type trackObservation struct {
	track  *Track
	coords clusters.Coordinates
}

func (o trackObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o trackObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// DetectMoods groups tracks by audio feature similarity using k-means clustering.
// Returns mood clusters, heaviest listening first, and outlier tracks that
// don't fit into any cluster. Tracks missing audio features are outliers.
//
// k-means starts from random centers, so cluster boundaries may vary between
// calls on ambiguous input.
func DetectMoods(tracks []Track, cfg MoodConfig) ([]MoodCluster, []Track) {
	if len(tracks) == 0 {
		return nil, nil
	}

	if cfg.NumClusters <= 0 {
		cfg.NumClusters = DefaultMoodConfig().NumClusters
	}

	// Separate tracks with and without audio features
	var validTracks []*Track
	var missingFeatures []Track

	for i := range tracks {
		t := &tracks[i]
		if hasAudioFeatures(t) {
			validTracks = append(validTracks, t)
		} else {
			missingFeatures = append(missingFeatures, *t)
		}
	}

	// If fewer valid tracks than clusters, everything is an outlier
	if len(validTracks) < cfg.NumClusters {
		return nil, allOutliers(validTracks, missingFeatures)
	}

	var obs clusters.Observations
	for _, t := range validTracks {
		obs = append(obs, trackObservation{
			track:  t,
			coords: extractFeatures(t),
		})
	}

	km := kmeans.New()
	result, err := km.Partition(obs, cfg.NumClusters)
	if err != nil {
		slog.Default().Warn("k-means clustering failed", "tracks", len(validTracks), "err", err)
		return nil, allOutliers(validTracks, missingFeatures)
	}

	var moods []MoodCluster
	var outliers []Track

	for _, cluster := range result {
		var clusterTracks []Track
		for _, o := range cluster.Observations {
			if to, ok := o.(trackObservation); ok {
				clusterTracks = append(clusterTracks, *to.track)
			}
		}

		if len(clusterTracks) == 0 {
			continue
		}
		if len(clusterTracks) < cfg.MinClusterSize {
			outliers = append(outliers, clusterTracks...)
			continue
		}

		slices.SortFunc(clusterTracks, compareTracks)

		var total int64
		for _, t := range clusterTracks {
			total += t.TotalMs
		}

		centroid := centroidOf(clusterTracks)
		category := GetMoodCategory(centroid)
		moods = append(moods, MoodCluster{
			Name:        category.Name,
			Description: category.Description,
			Centroid:    centroid,
			TotalMs:     total,
			Tracks:      clusterTracks,
		})
	}

	outliers = append(outliers, missingFeatures...)

	slices.SortFunc(moods, func(a, b MoodCluster) int {
		if c := cmp.Compare(b.TotalMs, a.TotalMs); c != 0 {
			return c
		}
		return cmp.Compare(a.Tracks[0].ID, b.Tracks[0].ID)
	})

	return moods, outliers
}

// hasAudioFeatures checks if a track has the features needed for clustering.
func hasAudioFeatures(t *Track) bool {
	return t.Features != nil
}

// extractFeatures extracts the audio features used for clustering as a coordinate vector.
// Order: energy, valence, danceability, acousticness.
func extractFeatures(t *Track) clusters.Coordinates {
	f := t.Features
	return clusters.Coordinates{
		f.Energy,
		f.Valence,
		f.Danceability,
		f.Acousticness,
	}
}

// centroidOf averages the clustering features of tracks. k-means centers
// drift when clusters are reassigned, so the mean is recomputed from members.
func centroidOf(tracks []Track) Centroid {
	var c Centroid
	for _, t := range tracks {
		c.Energy += t.Features.Energy
		c.Valence += t.Features.Valence
		c.Danceability += t.Features.Danceability
		c.Acousticness += t.Features.Acousticness
	}
	n := float64(len(tracks))
	c.Energy /= n
	c.Valence /= n
	c.Danceability /= n
	c.Acousticness /= n
	return c
}

func compareTracks(a, b Track) int {
	if c := cmp.Compare(b.TotalMs, a.TotalMs); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func allOutliers(valid []*Track, missing []Track) []Track {
	outliers := make([]Track, 0, len(valid)+len(missing))
	for _, t := range valid {
		outliers = append(outliers, *t)
	}
	return append(outliers, missing...)
}
