package history

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

const (
	idKeyPrefix   = "id:"
	nameKeyPrefix = "name:"
	trackURIScope = "spotify:track:"
	keySeparator  = "\x1f"
)

// PlayEvent is one validated play of a track. Treat it as immutable.
type PlayEvent struct {
	TrackID    string // empty when the export carried no track id
	ArtistName string
	TrackName  string
	AlbumName  string
	PlayedAt   time.Time // UTC, whole seconds
	DurationMs int64
}

// Key returns the identity key grouping plays of the same logical track.
// The track id wins when present; otherwise the normalized artist/track pair is used.
func (e PlayEvent) Key() string {
	if e.TrackID != "" {
		return idKeyPrefix + e.TrackID
	}
	return nameKeyPrefix + normalizeName(e.ArtistName) + keySeparator + normalizeName(e.TrackName)
}

// ArtistKey returns the identity key of the event's artist.
func (e PlayEvent) ArtistKey() string {
	return normalizeName(e.ArtistName)
}

// EventSet is a time-ordered collection of play events.
type EventSet struct {
	Events []PlayEvent
}

// NewEventSet copies events into a set in canonical order.
func NewEventSet(events []PlayEvent) EventSet {
	sorted := slices.Clone(events)
	slices.SortFunc(sorted, compareEvents)
	return EventSet{Events: sorted}
}

// Len returns the number of events.
func (s EventSet) Len() int {
	return len(s.Events)
}

// TotalMs sums the played duration of every event.
func (s EventSet) TotalMs() int64 {
	var total int64
	for _, e := range s.Events {
		total += e.DurationMs
	}
	return total
}

// Equal reports whether both sets hold the same events in the same order.
func (s EventSet) Equal(other EventSet) bool {
	return slices.Equal(s.Events, other.Events)
}

// compareEvents orders by time, then identity, then longest duration first.
// The trailing name comparisons make the order total.
func compareEvents(a, b PlayEvent) int {
	if c := a.PlayedAt.Compare(b.PlayedAt); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Key(), b.Key()); c != 0 {
		return c
	}
	if c := cmp.Compare(b.DurationMs, a.DurationMs); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ArtistName, b.ArtistName); c != 0 {
		return c
	}
	if c := cmp.Compare(a.TrackName, b.TrackName); c != 0 {
		return c
	}
	return cmp.Compare(a.AlbumName, b.AlbumName)
}

// normalizeName lower-cases and collapses runs of whitespace.
func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// trackIDFromURI accepts "spotify:track:<id>" or a bare id.
func trackIDFromURI(uri string) string {
	uri = strings.TrimSpace(uri)
	if rest, ok := strings.CutPrefix(uri, trackURIScope); ok {
		return rest
	}
	if strings.Contains(uri, ":") {
		// Episodes and other non-track URIs carry no usable track id.
		return ""
	}
	return uri
}
