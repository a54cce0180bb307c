package insight

import (
	"cmp"
	"slices"
	"strings"

	"github.com/justestif/go-spotify-wrapped/internal/aggregate"
)

const maxGenres = 5

// GenreShare is a genre's weight across the top artists, in percent of the
// top artists' listening time.
type GenreShare struct {
	Name    string  `json:"name"`
	Percent float64 `json:"percent"`
}

// topGenres spreads each artist's share of listening time over its tags in
// proportion to tag counts. Artists without tags contribute nothing.
func topGenres(artists []aggregate.Entity, tags map[string][]Tag) []GenreShare {
	if len(tags) == 0 {
		return nil
	}

	var total int64
	for _, a := range artists {
		total += a.TotalMs
	}
	if total == 0 {
		return nil
	}

	weights := make(map[string]float64)
	for _, a := range artists {
		artistTags := tags[a.Key]
		if len(artistTags) == 0 {
			continue
		}

		var count int
		for _, t := range artistTags {
			count += max(t.Count, 0)
		}

		share := float64(a.TotalMs) / float64(total) * 100
		for _, t := range artistTags {
			name := strings.ToLower(strings.TrimSpace(t.Name))
			if name == "" {
				continue
			}
			if count == 0 {
				weights[name] += share / float64(len(artistTags))
				continue
			}
			weights[name] += share * float64(max(t.Count, 0)) / float64(count)
		}
	}

	genres := make([]GenreShare, 0, len(weights))
	for name, w := range weights {
		if w > 0 {
			genres = append(genres, GenreShare{Name: name, Percent: w})
		}
	}
	slices.SortFunc(genres, func(a, b GenreShare) int {
		if c := cmp.Compare(b.Percent, a.Percent); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if len(genres) > maxGenres {
		genres = genres[:maxGenres]
	}
	if len(genres) == 0 {
		return nil
	}
	return genres
}
