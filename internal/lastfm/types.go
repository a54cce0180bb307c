package lastfm

import (
	"encoding/json"
	"strconv"
)

// Tag represents a Last.fm tag with its relative weight (0-100).
type Tag struct {
	Name  string `json:"name"`
	Count Count  `json:"count"`
	URL   string `json:"url"`
}

// Count is a tag weight. Last.fm sends it as a number or a numeric string.
type Count int

// UnmarshalJSON accepts both 100 and "100".
func (c *Count) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*c = Count(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*c = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*c = Count(n)
	return nil
}

// artistTagsResponse is the JSON response for artist.getTopTags.
type artistTagsResponse struct {
	TopTags struct {
		Tag  []Tag `json:"tag"`
		Attr struct {
			Artist string `json:"artist"`
		} `json:"@attr"`
	} `json:"toptags"`
}

// apiError represents a Last.fm API error response.
type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}
