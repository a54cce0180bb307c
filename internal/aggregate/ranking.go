package aggregate

import (
	"cmp"
	"slices"

	"github.com/justestif/go-spotify-wrapped/internal/history"
)

// Entity aggregates the plays of one artist or one track.
type Entity struct {
	Key            string `json:"key"`
	DisplayName    string `json:"display_name"`
	ArtistName     string `json:"artist_name,omitempty"` // tracks only
	TrackID        string `json:"track_id,omitempty"`    // tracks only, empty when unknown
	TotalMs        int64  `json:"total_ms"`
	PlayCount      int    `json:"play_count"`
	DistinctDays   int    `json:"distinct_days"`
	DistinctTracks int    `json:"distinct_tracks,omitempty"` // artists only
}

// Ranking holds the full ranked artist and track sequences.
type Ranking struct {
	Artists []Entity
	Tracks  []Entity
}

// accumulator collects one entity while scanning the event set.
type accumulator struct {
	entity Entity
	days   map[string]struct{}
	tracks map[string]struct{}
}

func newAccumulator(entity Entity) *accumulator {
	return &accumulator{
		entity: entity,
		days:   make(map[string]struct{}),
		tracks: make(map[string]struct{}),
	}
}

func (a *accumulator) add(e history.PlayEvent) {
	a.entity.TotalMs += e.DurationMs
	a.entity.PlayCount++
	a.days[e.PlayedAt.Format(dateFormat)] = struct{}{}
}

// Rank aggregates plays per artist and per track and orders both sequences.
// Display names come from the earliest play of each entity. Plays without an
// artist name count towards their track only.
func Rank(set history.EventSet) Ranking {
	artists := make(map[string]*accumulator)
	tracks := make(map[string]*accumulator)

	for _, e := range set.Events {
		key := e.Key()
		track, ok := tracks[key]
		if !ok {
			track = newAccumulator(Entity{
				Key:         key,
				DisplayName: e.TrackName,
				ArtistName:  e.ArtistName,
				TrackID:     e.TrackID,
			})
			tracks[key] = track
		}
		track.add(e)

		// Plays exported with a track id but no artist name have no artist.
		artistKey := e.ArtistKey()
		if artistKey == "" {
			continue
		}
		artist, ok := artists[artistKey]
		if !ok {
			artist = newAccumulator(Entity{
				Key:         artistKey,
				DisplayName: e.ArtistName,
			})
			artists[artistKey] = artist
		}
		artist.add(e)
		artist.tracks[key] = struct{}{}
	}

	return Ranking{
		Artists: finish(artists, true),
		Tracks:  finish(tracks, false),
	}
}

func finish(accs map[string]*accumulator, countTracks bool) []Entity {
	out := make([]Entity, 0, len(accs))
	for _, acc := range accs {
		e := acc.entity
		e.DistinctDays = len(acc.days)
		if countTracks {
			e.DistinctTracks = len(acc.tracks)
		}
		out = append(out, e)
	}
	slices.SortFunc(out, Compare)
	return out
}

// Compare orders entities by total time descending, then play count
// descending, then display name ascending. The key breaks any remaining tie.
func Compare(a, b Entity) int {
	if c := cmp.Compare(b.TotalMs, a.TotalMs); c != 0 {
		return c
	}
	if c := cmp.Compare(b.PlayCount, a.PlayCount); c != 0 {
		return c
	}
	if c := cmp.Compare(a.DisplayName, b.DisplayName); c != 0 {
		return c
	}
	return cmp.Compare(a.Key, b.Key)
}

// Top returns at most n leading entities. It never pads; n <= 0 returns all.
func Top(entities []Entity, n int) []Entity {
	if n <= 0 || n >= len(entities) {
		return slices.Clone(entities)
	}
	return slices.Clone(entities[:n])
}
