// Package insight combines aggregates and enrichment results into the final
// listening summary handed to presentation layers. Everything here is pure.
package insight

import (
	"fmt"
	"time"

	"github.com/justestif/go-spotify-wrapped/internal/aggregate"
	"github.com/justestif/go-spotify-wrapped/internal/features"
	"github.com/justestif/go-spotify-wrapped/internal/history"
)

// DefaultTopN is the number of artists and tracks kept when Input.TopN is unset.
const DefaultTopN = 10

// InvariantError reports an internal consistency violation between pipeline
// stages. It indicates a bug, not bad input.
type InvariantError struct {
	Check string
	Want  int64
	Got   int64
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant %s violated: want %d, got %d", e.Check, e.Want, e.Got)
}

// Tag is a weighted genre label attached to an artist.
type Tag struct {
	Name  string
	Count int
}

// Input is everything Synthesize needs.
type Input struct {
	Events            history.EventSet
	Stats             history.Stats
	DuplicatesRemoved int
	Histogram         aggregate.Histogram
	Ranking           aggregate.Ranking
	// Features is keyed by track id; missing ids mean no data.
	Features map[string]features.FeatureVector
	// ArtistTags is keyed by artist key (aggregate.Entity.Key).
	ArtistTags map[string][]Tag
	TopN       int
}

// Totals summarizes the whole deduplicated event set.
type Totals struct {
	TotalMs           int64      `json:"total_ms"`
	TotalMinutes      int64      `json:"total_minutes"`
	PlayCount         int        `json:"play_count"`
	DistinctTracks    int        `json:"distinct_tracks"`
	DistinctArtists   int        `json:"distinct_artists"`
	DistinctDays      int        `json:"distinct_days"`
	FirstPlayedAt     *time.Time `json:"first_played_at"`
	LastPlayedAt      *time.Time `json:"last_played_at"`
	DroppedRecords    int        `json:"dropped_records"`
	DuplicatesRemoved int        `json:"duplicates_removed"`
}

// RankedArtist is one entry of the top artist list.
type RankedArtist struct {
	Rank int `json:"rank"`
	aggregate.Entity
}

// RankedTrack is one entry of the top track list. Features is nil when
// enrichment had no data for the track.
type RankedTrack struct {
	Rank int `json:"rank"`
	aggregate.Entity
	Features *features.FeatureVector `json:"features"`
}

// Summary is the year-in-review output.
type Summary struct {
	Totals           Totals              `json:"totals"`
	TopArtists       []RankedArtist      `json:"top_artists"`
	TopTracks        []RankedTrack       `json:"top_tracks"`
	Histogram        aggregate.Histogram `json:"histogram"`
	ListeningPattern ListeningPattern    `json:"listening_pattern"`
	FeatureProfile   *FeatureProfile     `json:"feature_profile"`
	TopGenres        []GenreShare        `json:"top_genres,omitempty"`
}

// Synthesize builds the Summary. It fails only when its inputs disagree with
// each other, which returns an *InvariantError.
func Synthesize(in Input) (Summary, error) {
	if got, want := in.Histogram.HourlyTotal(), in.Events.TotalMs(); got != want {
		return Summary{}, &InvariantError{Check: "hourly_total", Want: want, Got: got}
	}

	topN := in.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}

	artists := aggregate.Top(in.Ranking.Artists, topN)
	tracks := aggregate.Top(in.Ranking.Tracks, topN)

	summary := Summary{
		Totals:           totals(in),
		TopArtists:       make([]RankedArtist, 0, len(artists)),
		TopTracks:        make([]RankedTrack, 0, len(tracks)),
		Histogram:        in.Histogram,
		ListeningPattern: listeningPattern(in.Histogram),
		TopGenres:        topGenres(artists, in.ArtistTags),
	}

	for i, a := range artists {
		summary.TopArtists = append(summary.TopArtists, RankedArtist{Rank: i + 1, Entity: a})
	}

	var withData []features.FeatureVector
	for i, t := range tracks {
		ranked := RankedTrack{Rank: i + 1, Entity: t}
		if t.TrackID != "" {
			if fv, ok := in.Features[t.TrackID]; ok {
				ranked.Features = &fv
				withData = append(withData, fv)
			}
		}
		summary.TopTracks = append(summary.TopTracks, ranked)
	}
	summary.FeatureProfile = featureProfile(withData)

	return summary, nil
}

func totals(in Input) Totals {
	total := in.Events.TotalMs()
	t := Totals{
		TotalMs:           total,
		TotalMinutes:      total / int64(time.Minute/time.Millisecond),
		PlayCount:         in.Events.Len(),
		DistinctTracks:    len(in.Ranking.Tracks),
		DistinctArtists:   len(in.Ranking.Artists),
		DistinctDays:      len(in.Histogram.Daily),
		DroppedRecords:    in.Stats.Dropped,
		DuplicatesRemoved: in.DuplicatesRemoved,
	}
	if n := in.Events.Len(); n > 0 {
		first := in.Events.Events[0].PlayedAt
		last := in.Events.Events[n-1].PlayedAt
		t.FirstPlayedAt = &first
		t.LastPlayedAt = &last
	}
	return t
}
