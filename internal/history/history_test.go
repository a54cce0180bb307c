package history

import (
	"strings"
	"testing"
	"time"
)

func ptr[T any](v T) *T {
	return &v
}

func rec(ts, artist, track, uri string, ms int64) RawRecord {
	r := RawRecord{
		Timestamp: ptr(ts),
		MsPlayed:  ptr(ms),
	}
	if artist != "" {
		r.ArtistName = ptr(artist)
	}
	if track != "" {
		r.TrackName = ptr(track)
	}
	if uri != "" {
		r.TrackURI = ptr(uri)
	}
	return r
}

func TestParsePayload_Schemas(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantTS     string
		wantArtist string
		wantTrack  string
		wantURI    string
		wantMs     int64
	}{
		{
			name: "extended history",
			payload: `[{"ts":"2024-01-01T09:10:00Z","ms_played":180000,
				"master_metadata_track_name":"Song A","master_metadata_album_artist_name":"Artist A",
				"spotify_track_uri":"spotify:track:abc","platform":"ios","shuffle":true}]`,
			wantTS:     "2024-01-01T09:10:00Z",
			wantArtist: "Artist A",
			wantTrack:  "Song A",
			wantURI:    "spotify:track:abc",
			wantMs:     180000,
		},
		{
			name:       "account data history",
			payload:    `[{"endTime":"2024-01-01 09:10","artistName":"Artist B","trackName":"Song B","msPlayed":"2500"}]`,
			wantTS:     "2024-01-01 09:10",
			wantArtist: "Artist B",
			wantTrack:  "Song B",
			wantMs:     2500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := ParsePayload(strings.NewReader(tt.payload))
			if err != nil {
				t.Fatalf("ParsePayload() error = %v", err)
			}
			if len(records) != 1 {
				t.Fatalf("got %d records, want 1", len(records))
			}
			r := records[0]
			if deref(r.Timestamp) != tt.wantTS {
				t.Errorf("Timestamp = %q, want %q", deref(r.Timestamp), tt.wantTS)
			}
			if deref(r.ArtistName) != tt.wantArtist {
				t.Errorf("ArtistName = %q, want %q", deref(r.ArtistName), tt.wantArtist)
			}
			if deref(r.TrackName) != tt.wantTrack {
				t.Errorf("TrackName = %q, want %q", deref(r.TrackName), tt.wantTrack)
			}
			if deref(r.TrackURI) != tt.wantURI {
				t.Errorf("TrackURI = %q, want %q", deref(r.TrackURI), tt.wantURI)
			}
			if r.MsPlayed == nil || *r.MsPlayed != tt.wantMs {
				t.Errorf("MsPlayed = %v, want %d", r.MsPlayed, tt.wantMs)
			}
		})
	}
}

func TestParsePayload_NotAnArray(t *testing.T) {
	_, err := ParsePayload(strings.NewReader(`{"ts":"2024-01-01T00:00:00Z"}`))
	if err == nil {
		t.Fatal("expected error for non-array payload")
	}
}

func TestParsePayload_NonObjectEntriesAreDropped(t *testing.T) {
	records, err := ParsePayload(strings.NewReader(`[42, "x", {"ts":"2024-01-01T00:00:00Z","ms_played":1,"spotify_track_uri":"spotify:track:a"}]`))
	if err != nil {
		t.Fatalf("ParsePayload() error = %v", err)
	}
	set, stats := Normalize(records)
	if set.Len() != 1 {
		t.Errorf("got %d events, want 1", set.Len())
	}
	if stats.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", stats.Dropped)
	}
}

func TestNormalize_Validation(t *testing.T) {
	records := []RawRecord{
		rec("2024-01-01T09:10:00Z", "A", "T", "", 1000),
		{MsPlayed: ptr(int64(10)), TrackURI: ptr("spotify:track:x")},
		rec("yesterday", "A", "T", "", 1000),
		{Timestamp: ptr("2024-01-01T09:10:00Z"), TrackURI: ptr("spotify:track:x")},
		rec("2024-01-01T09:10:00Z", "A", "T", "", -5),
		rec("2024-01-01T09:10:00Z", "", "", "spotify:episode:pod", 1000),
	}

	set, stats := Normalize(records)

	if set.Len() != 1 {
		t.Fatalf("got %d events, want 1", set.Len())
	}
	if stats.Total != 6 || stats.Accepted != 1 || stats.Dropped != 5 {
		t.Errorf("stats = %+v, want total 6 accepted 1 dropped 5", stats)
	}
	for _, reason := range []string{
		ReasonMissingTimestamp, ReasonBadTimestamp, ReasonMissingDuration,
		ReasonNegativeDuration, ReasonMissingIdentity,
	} {
		if stats.DroppedByReason[reason] != 1 {
			t.Errorf("DroppedByReason[%s] = %d, want 1", reason, stats.DroppedByReason[reason])
		}
	}
}

func TestNormalize_TimezonesConvertToUTC(t *testing.T) {
	set, _ := Normalize([]RawRecord{
		rec("2024-01-01T10:10:00.750+01:00", "", "", "spotify:track:a", 1),
		rec("2024-01-01 09:11", "", "", "spotify:track:b", 1),
		rec("1704100260", "", "", "spotify:track:c", 1),
		rec("2024-01-01T09:12:00.250Z", "", "", "spotify:track:d", 1),
		rec("1704100379600", "", "", "spotify:track:e", 1),
	})

	// Fractional seconds round to the nearest second.
	want := []time.Time{
		time.Date(2024, 1, 1, 9, 10, 1, 0, time.UTC),
		time.Date(2024, 1, 1, 9, 11, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 9, 11, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 9, 12, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 9, 13, 0, 0, time.UTC),
	}
	if set.Len() != len(want) {
		t.Fatalf("got %d events, want %d", set.Len(), len(want))
	}
	for i, e := range set.Events {
		if !e.PlayedAt.Equal(want[i]) || e.PlayedAt.Location() != time.UTC {
			t.Errorf("event %d PlayedAt = %v, want %v UTC", i, e.PlayedAt, want[i])
		}
	}
}

func TestPlayEvent_Key(t *testing.T) {
	tests := []struct {
		name  string
		event PlayEvent
		want  string
	}{
		{"track id wins", PlayEvent{TrackID: "abc", ArtistName: "A", TrackName: "T"}, "id:abc"},
		{"name pair normalized", PlayEvent{ArtistName: "  The   Band ", TrackName: "Hello\tWorld"}, "name:the band\x1fhello world"},
		{"case insensitive", PlayEvent{ArtistName: "THE BAND", TrackName: "HELLO WORLD"}, "name:the band\x1fhello world"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalize_OrderIndependence(t *testing.T) {
	fileA := []RawRecord{
		rec("2024-01-01T09:10:00Z", "A", "One", "spotify:track:1", 1000),
		rec("2024-01-02T09:10:00Z", "B", "Two", "", 2000),
	}
	fileB := []RawRecord{
		rec("2024-01-02T09:10:01Z", "b", "two", "", 2500),
		rec("2024-01-03T11:00:00Z", "C", "Three", "spotify:track:3", 3000),
	}
	fileC := []RawRecord{
		rec("2024-01-01T09:10:00Z", "A", "One", "spotify:track:1", 1000),
	}

	orders := [][][]RawRecord{
		{fileA, fileB, fileC},
		{fileC, fileB, fileA},
		{fileB, fileA, fileC},
	}

	var first EventSet
	for i, order := range orders {
		set, _ := Normalize(order...)
		set, _ = Dedupe(set, DefaultTolerance)
		if i == 0 {
			first = set
			continue
		}
		if !set.Equal(first) {
			t.Errorf("order %d produced %+v, want %+v", i, set.Events, first.Events)
		}
	}
	if first.Len() != 3 {
		t.Errorf("got %d events, want 3", first.Len())
	}
}

func TestDedupe_Scenario(t *testing.T) {
	set, _ := Normalize([]RawRecord{
		rec("2024-01-01T09:10:00Z", "Artist", "Track A", "spotify:track:A", 180000),
		rec("2024-01-01T09:10:01Z", "Artist", "Track A", "spotify:track:A", 181000),
		rec("2024-01-02T23:00:00Z", "Artist", "Track A", "spotify:track:A", 200000),
	})

	got, removed := Dedupe(set, DefaultTolerance)

	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if got.Len() != 2 {
		t.Fatalf("got %d events, want 2", got.Len())
	}
	if got.Events[0].DurationMs != 181000 {
		t.Errorf("first event duration = %d, want longer duplicate 181000", got.Events[0].DurationMs)
	}
	if got.Events[1].DurationMs != 200000 {
		t.Errorf("second event duration = %d, want 200000", got.Events[1].DurationMs)
	}
}

func TestDedupe_Idempotent(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var events []PlayEvent
	// A chain of near-duplicates, some far-apart plays and a second identity.
	for i, offset := range []int{0, 1, 2, 3, 10, 11, 30} {
		events = append(events, PlayEvent{
			TrackID:    "x",
			PlayedAt:   base.Add(time.Duration(offset) * time.Second),
			DurationMs: int64(1000 + i*10),
		})
	}
	events = append(events, PlayEvent{ArtistName: "Y", TrackName: "Z", PlayedAt: base, DurationMs: 5})

	once, _ := Dedupe(NewEventSet(events), DefaultTolerance)
	twice, removed := Dedupe(once, DefaultTolerance)

	if removed != 0 {
		t.Errorf("second pass removed %d events, want 0", removed)
	}
	if !once.Equal(twice) {
		t.Errorf("second pass changed the set: %+v vs %+v", once.Events, twice.Events)
	}
	if once.Len() != 4 {
		t.Errorf("got %d events, want 4", once.Len())
	}
}

func TestDedupe_DifferentKeysNeverMerge(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	set := NewEventSet([]PlayEvent{
		{TrackID: "a", PlayedAt: at, DurationMs: 1},
		{TrackID: "b", PlayedAt: at, DurationMs: 1},
	})
	got, removed := Dedupe(set, DefaultTolerance)
	if removed != 0 || got.Len() != 2 {
		t.Errorf("got %d events (%d removed), want 2 (0 removed)", got.Len(), removed)
	}
}

func TestDedupe_Empty(t *testing.T) {
	got, removed := Dedupe(EventSet{}, DefaultTolerance)
	if got.Len() != 0 || removed != 0 {
		t.Errorf("Dedupe(empty) = %d events, %d removed", got.Len(), removed)
	}
}
