package history

import (
	"strconv"
	"strings"
	"time"
)

// Reasons a raw record is dropped during normalization.
const (
	ReasonMissingTimestamp = "missing_timestamp"
	ReasonBadTimestamp     = "bad_timestamp"
	ReasonMissingDuration  = "missing_duration"
	ReasonNegativeDuration = "negative_duration"
	ReasonMissingIdentity  = "missing_identity"
)

// Offset-less layouts are interpreted as UTC, which is what Spotify exports use.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Stats counts what normalization accepted and dropped.
type Stats struct {
	Total           int
	Accepted        int
	Dropped         int
	DroppedByReason map[string]int
}

func (s *Stats) drop(reason string) {
	s.Dropped++
	s.DroppedByReason[reason]++
}

// Normalize validates the records of every payload and returns them as an
// EventSet. Invalid records are dropped and counted, never fatal.
// Payload order does not affect the result.
func Normalize(payloads ...[]RawRecord) (EventSet, Stats) {
	stats := Stats{DroppedByReason: make(map[string]int)}
	var events []PlayEvent

	for _, payload := range payloads {
		for _, rec := range payload {
			stats.Total++
			event, reason := validate(rec)
			if reason != "" {
				stats.drop(reason)
				continue
			}
			stats.Accepted++
			events = append(events, event)
		}
	}

	return NewEventSet(events), stats
}

// validate converts a raw record into a PlayEvent, or returns the drop reason.
func validate(rec RawRecord) (PlayEvent, string) {
	if rec.Timestamp == nil || strings.TrimSpace(*rec.Timestamp) == "" {
		return PlayEvent{}, ReasonMissingTimestamp
	}
	playedAt, ok := parseTimestamp(*rec.Timestamp)
	if !ok {
		return PlayEvent{}, ReasonBadTimestamp
	}
	if rec.MsPlayed == nil {
		return PlayEvent{}, ReasonMissingDuration
	}
	if *rec.MsPlayed < 0 {
		return PlayEvent{}, ReasonNegativeDuration
	}

	event := PlayEvent{
		ArtistName: strings.TrimSpace(deref(rec.ArtistName)),
		TrackName:  strings.TrimSpace(deref(rec.TrackName)),
		AlbumName:  strings.TrimSpace(deref(rec.AlbumName)),
		PlayedAt:   playedAt,
		DurationMs: *rec.MsPlayed,
	}
	if rec.TrackURI != nil {
		event.TrackID = trackIDFromURI(*rec.TrackURI)
	}
	if event.TrackID == "" && (event.ArtistName == "" || event.TrackName == "") {
		return PlayEvent{}, ReasonMissingIdentity
	}
	return event, ""
}

// parseTimestamp accepts the textual layouts above or unix seconds/milliseconds,
// and returns the instant in UTC rounded to the nearest second.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Round(time.Second), true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		// Anything past year 5138 in seconds is really milliseconds.
		if n > 1e11 {
			return time.UnixMilli(n).UTC().Round(time.Second), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
