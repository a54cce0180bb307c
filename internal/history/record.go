// Package history parses streaming-history exports into validated play events
// and removes the duplicates that overlapping exports introduce.
package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// RawRecord is one loosely-typed record from an export file.
// Every field is optional; nil means the export did not carry it.
type RawRecord struct {
	Timestamp  *string
	ArtistName *string
	TrackName  *string
	AlbumName  *string
	TrackURI   *string // spotify:track:<id> or a bare id
	MsPlayed   *int64
}

// Field aliases, in priority order. The first two blocks are the extended
// and account-data Spotify export schemas; the rest are tolerated variants.
var (
	timestampKeys = []string{"ts", "endTime", "timestamp", "played_at"}
	artistKeys    = []string{"master_metadata_album_artist_name", "artistName", "artist_name"}
	trackKeys     = []string{"master_metadata_track_name", "trackName", "track_name"}
	albumKeys     = []string{"master_metadata_album_album_name", "albumName", "album_name"}
	trackURIKeys  = []string{"spotify_track_uri", "track_id", "trackId"}
	msPlayedKeys  = []string{"ms_played", "msPlayed", "duration_ms"}
)

// UnmarshalJSON decodes a record from either export schema. Unknown fields are
// ignored and fields with an unexpected type are left unset so validation can
// count the record as malformed instead of failing the whole file.
func (r *RawRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}

	*r = RawRecord{
		Timestamp:  lookupText(fields, timestampKeys),
		ArtistName: lookupText(fields, artistKeys),
		TrackName:  lookupText(fields, trackKeys),
		AlbumName:  lookupText(fields, albumKeys),
		TrackURI:   lookupText(fields, trackURIKeys),
		MsPlayed:   lookupInt(fields, msPlayedKeys),
	}
	return nil
}

// ParsePayload decodes one export file, a JSON array of records.
func ParsePayload(r io.Reader) ([]RawRecord, error) {
	var records []json.RawMessage
	dec := json.NewDecoder(r)
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding export payload: %w", err)
	}

	out := make([]RawRecord, 0, len(records))
	for _, raw := range records {
		var rec RawRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			// Not an object: keep an empty record so it is counted as dropped.
			out = append(out, RawRecord{})
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// lookupText returns the first alias holding a string or number, as text.
func lookupText(fields map[string]json.RawMessage, keys []string) *string {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok || isNull(raw) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return &s
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			text := n.String()
			return &text
		}
	}
	return nil
}

// lookupInt returns the first alias holding an integral number or a numeric string.
func lookupInt(fields map[string]json.RawMessage, keys []string) *int64 {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok || isNull(raw) {
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				continue
			}
			n = json.Number(strings.TrimSpace(s))
		}
		if v, err := n.Int64(); err == nil {
			return &v
		}
		if f, err := strconv.ParseFloat(n.String(), 64); err == nil {
			v := int64(f)
			return &v
		}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
