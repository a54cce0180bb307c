package spotify

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"
)

// ResolveTrackID searches Spotify for a track by artist and title and returns
// the id of the best match, or "" when nothing matches.
func (c *Client) ResolveTrackID(ctx context.Context, artist, track string) (string, error) {
	artist = strings.TrimSpace(artist)
	track = strings.TrimSpace(track)
	if artist == "" || track == "" {
		return "", nil
	}

	result, err := c.api.Search(ctx, searchQuery(artist, track), spotify.SearchTypeTrack, spotify.Limit(1))
	if err != nil {
		return "", classify(fmt.Sprintf("searching for %q by %q", track, artist), err)
	}
	if result.Tracks == nil || len(result.Tracks.Tracks) == 0 {
		return "", nil
	}
	return result.Tracks.Tracks[0].ID.String(), nil
}

// searchQuery builds a field-filtered search query. Quotes in names would end
// the filter early, so they are dropped.
func searchQuery(artist, track string) string {
	clean := strings.NewReplacer(`"`, "")
	return fmt.Sprintf("track:%s artist:%s", clean.Replace(track), clean.Replace(artist))
}
