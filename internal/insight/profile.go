package insight

import (
	"github.com/justestif/go-spotify-wrapped/internal/clustering"
	"github.com/justestif/go-spotify-wrapped/internal/features"
)

// Personality labels derived from the average audio features.
const (
	PersonalityPartyStarter     = "Party Starter"
	PersonalitySoulSearcher     = "Soul Searcher"
	PersonalityMoodLifter       = "Mood Lifter"
	PersonalityLyricLover       = "Lyric Lover"
	PersonalityEclecticExplorer = "Eclectic Explorer"
)

// FeatureProfile averages audio features over the top tracks that have data.
type FeatureProfile struct {
	TracksWithFeatures int                     `json:"tracks_with_features"`
	Danceability       float64                 `json:"danceability"`
	Energy             float64                 `json:"energy"`
	Valence            float64                 `json:"valence"`
	Tempo              float64                 `json:"tempo"`
	Acousticness       float64                 `json:"acousticness"`
	Instrumentalness   float64                 `json:"instrumentalness"`
	Speechiness        float64                 `json:"speechiness"`
	Liveness           float64                 `json:"liveness"`
	Loudness           float64                 `json:"loudness"`
	Personality        string                  `json:"personality"`
	Mood               clustering.MoodCategory `json:"mood"`
}

// featureProfile returns nil when no vector is available; averages over
// nothing are unknown, not zero.
func featureProfile(vectors []features.FeatureVector) *FeatureProfile {
	if len(vectors) == 0 {
		return nil
	}

	p := &FeatureProfile{TracksWithFeatures: len(vectors)}
	for _, v := range vectors {
		p.Danceability += v.Danceability
		p.Energy += v.Energy
		p.Valence += v.Valence
		p.Tempo += v.Tempo
		p.Acousticness += v.Acousticness
		p.Instrumentalness += v.Instrumentalness
		p.Speechiness += v.Speechiness
		p.Liveness += v.Liveness
		p.Loudness += v.Loudness
	}
	n := float64(len(vectors))
	p.Danceability /= n
	p.Energy /= n
	p.Valence /= n
	p.Tempo /= n
	p.Acousticness /= n
	p.Instrumentalness /= n
	p.Speechiness /= n
	p.Liveness /= n
	p.Loudness /= n

	p.Personality = Personality(p)
	p.Mood = clustering.GetMoodCategory(clustering.Centroid{
		Energy:       p.Energy,
		Valence:      p.Valence,
		Danceability: p.Danceability,
		Acousticness: p.Acousticness,
	})
	return p
}

// Personality labels a profile. The first matching rule wins.
func Personality(p *FeatureProfile) string {
	switch {
	case p.Energy > 0.7 && p.Danceability > 0.6:
		return PersonalityPartyStarter
	case p.Acousticness > 0.6 && p.Instrumentalness > 0.4:
		return PersonalitySoulSearcher
	case p.Valence > 0.6 && p.Energy > 0.5:
		return PersonalityMoodLifter
	case p.Speechiness > 0.4:
		return PersonalityLyricLover
	default:
		return PersonalityEclecticExplorer
	}
}
