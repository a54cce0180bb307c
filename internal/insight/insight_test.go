package insight

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/justestif/go-spotify-wrapped/internal/aggregate"
	"github.com/justestif/go-spotify-wrapped/internal/features"
	"github.com/justestif/go-spotify-wrapped/internal/history"
)

func play(id, artist, track, at string, ms int64) history.PlayEvent {
	ts, err := time.Parse(time.RFC3339, at)
	if err != nil {
		panic(err)
	}
	return history.PlayEvent{
		TrackID:    id,
		ArtistName: artist,
		TrackName:  track,
		PlayedAt:   ts.UTC(),
		DurationMs: ms,
	}
}

func inputFor(events ...history.PlayEvent) Input {
	set := history.NewEventSet(events)
	return Input{
		Events:    set,
		Histogram: aggregate.Temporal(set),
		Ranking:   aggregate.Rank(set),
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSynthesize_Totals(t *testing.T) {
	in := inputFor(
		play("a", "Artist 1", "Song A", "2024-01-01T09:10:00Z", 181000),
		play("a", "Artist 1", "Song A", "2024-01-02T23:00:00Z", 200000),
		play("b", "Artist 2", "Song B", "2024-01-02T10:00:00Z", 60000),
	)
	in.Stats = history.Stats{Dropped: 4}
	in.DuplicatesRemoved = 1

	got, err := Synthesize(in)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	totals := got.Totals
	if totals.TotalMs != 441000 {
		t.Errorf("TotalMs = %d, want 441000", totals.TotalMs)
	}
	if totals.TotalMinutes != 7 {
		t.Errorf("TotalMinutes = %d, want 7", totals.TotalMinutes)
	}
	if totals.PlayCount != 3 || totals.DistinctTracks != 2 || totals.DistinctArtists != 2 || totals.DistinctDays != 2 {
		t.Errorf("counts = %+v", totals)
	}
	if totals.DroppedRecords != 4 || totals.DuplicatesRemoved != 1 {
		t.Errorf("dropped/duplicates = %d/%d, want 4/1", totals.DroppedRecords, totals.DuplicatesRemoved)
	}
	if totals.FirstPlayedAt == nil || !totals.FirstPlayedAt.Equal(time.Date(2024, 1, 1, 9, 10, 0, 0, time.UTC)) {
		t.Errorf("FirstPlayedAt = %v", totals.FirstPlayedAt)
	}
	if totals.LastPlayedAt == nil || !totals.LastPlayedAt.Equal(time.Date(2024, 1, 2, 23, 0, 0, 0, time.UTC)) {
		t.Errorf("LastPlayedAt = %v", totals.LastPlayedAt)
	}

	if got.TopTracks[0].Rank != 1 || got.TopTracks[0].DisplayName != "Song A" || got.TopTracks[0].TotalMs != 381000 {
		t.Errorf("TopTracks[0] = %+v", got.TopTracks[0])
	}
	if got.TopArtists[1].Rank != 2 || got.TopArtists[1].DisplayName != "Artist 2" {
		t.Errorf("TopArtists[1] = %+v", got.TopArtists[1])
	}
}

func TestSynthesize_TopN(t *testing.T) {
	in := inputFor(
		play("a", "A", "1", "2024-01-01T09:00:00Z", 3000),
		play("b", "B", "2", "2024-01-01T10:00:00Z", 2000),
		play("c", "C", "3", "2024-01-01T11:00:00Z", 1000),
	)

	tests := []struct {
		name string
		topN int
		want int
	}{
		{"more than available is not padded", 5, 3},
		{"truncates", 2, 2},
		{"default", 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in.TopN = tt.topN
			got, err := Synthesize(in)
			if err != nil {
				t.Fatalf("Synthesize() error = %v", err)
			}
			if len(got.TopArtists) != tt.want || len(got.TopTracks) != tt.want {
				t.Errorf("got %d artists, %d tracks; want %d", len(got.TopArtists), len(got.TopTracks), tt.want)
			}
		})
	}
}

func TestSynthesize_FeatureProfile(t *testing.T) {
	in := inputFor(
		play("a", "A", "1", "2024-01-01T09:00:00Z", 3000),
		play("b", "B", "2", "2024-01-01T10:00:00Z", 2000),
		play("", "C", "3", "2024-01-01T11:00:00Z", 1000),
	)

	t.Run("no data is unavailable", func(t *testing.T) {
		got, err := Synthesize(in)
		if err != nil {
			t.Fatalf("Synthesize() error = %v", err)
		}
		if got.FeatureProfile != nil {
			t.Errorf("FeatureProfile = %+v, want nil", got.FeatureProfile)
		}
		for _, track := range got.TopTracks {
			if track.Features != nil {
				t.Errorf("track %s has features, want nil", track.Key)
			}
		}
	})

	t.Run("averages only tracks with data", func(t *testing.T) {
		in.Features = map[string]features.FeatureVector{
			"a": {TrackID: "a", Energy: 0.9, Danceability: 0.8, Valence: 0.7, Tempo: 120},
			"b": {TrackID: "b", Energy: 0.7, Danceability: 0.6, Valence: 0.5, Tempo: 100},
		}
		got, err := Synthesize(in)
		if err != nil {
			t.Fatalf("Synthesize() error = %v", err)
		}
		p := got.FeatureProfile
		if p == nil {
			t.Fatal("FeatureProfile = nil")
		}
		if p.TracksWithFeatures != 2 {
			t.Errorf("TracksWithFeatures = %d, want 2", p.TracksWithFeatures)
		}
		if !approx(p.Energy, 0.8) || !approx(p.Danceability, 0.7) || !approx(p.Tempo, 110) {
			t.Errorf("averages = %+v", p)
		}
		if p.Personality != PersonalityPartyStarter {
			t.Errorf("Personality = %q, want %q", p.Personality, PersonalityPartyStarter)
		}
		if p.Mood.Name != "Upbeat Party" {
			t.Errorf("Mood = %q, want Upbeat Party", p.Mood.Name)
		}
		if got.TopTracks[2].Features != nil {
			t.Error("track without id should have nil features")
		}
	})
}

func TestPersonality(t *testing.T) {
	tests := []struct {
		name    string
		profile FeatureProfile
		want    string
	}{
		{"party starter", FeatureProfile{Energy: 0.8, Danceability: 0.7}, PersonalityPartyStarter},
		{"soul searcher", FeatureProfile{Acousticness: 0.7, Instrumentalness: 0.5}, PersonalitySoulSearcher},
		{"mood lifter", FeatureProfile{Valence: 0.7, Energy: 0.6}, PersonalityMoodLifter},
		{"lyric lover", FeatureProfile{Speechiness: 0.5}, PersonalityLyricLover},
		{"eclectic explorer", FeatureProfile{Energy: 0.5, Valence: 0.5}, PersonalityEclecticExplorer},
		{"party starter wins over mood lifter", FeatureProfile{Energy: 0.8, Danceability: 0.7, Valence: 0.9}, PersonalityPartyStarter},
		{"boundary energy exactly 0.7", FeatureProfile{Energy: 0.7, Danceability: 0.7}, PersonalityEclecticExplorer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Personality(&tt.profile); got != tt.want {
				t.Errorf("Personality() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestListeningPattern(t *testing.T) {
	tests := []struct {
		name         string
		hourly       map[int]int64
		wantPeak     int
		wantDominant string
		wantBlockMs  map[string]int64
	}{
		{
			name:     "empty",
			wantPeak: -1,
		},
		{
			name:         "late night wraps midnight",
			hourly:       map[int]int64{23: 100, 2: 200, 10: 150},
			wantPeak:     2,
			wantDominant: BlockLateNight,
			wantBlockMs:  map[string]int64{BlockLateNight: 300, BlockWorkHours: 150},
		},
		{
			name:         "hour 8 is early morning",
			hourly:       map[int]int64{8: 500, 5: 1, 17: 400},
			wantPeak:     8,
			wantDominant: BlockEarlyMorning,
			wantBlockMs:  map[string]int64{BlockEarlyMorning: 501, BlockEvening: 400},
		},
		{
			name:         "block boundaries are half-open",
			hourly:       map[int]int64{9: 10, 16: 10, 21: 30, 22: 5},
			wantPeak:     21,
			wantDominant: BlockEvening,
			wantBlockMs:  map[string]int64{BlockWorkHours: 20, BlockEvening: 30, BlockLateNight: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h aggregate.Histogram
			for hour, ms := range tt.hourly {
				h.Hourly[hour] = ms
			}

			got := listeningPattern(h)
			if got.PeakHour != tt.wantPeak {
				t.Errorf("PeakHour = %d, want %d", got.PeakHour, tt.wantPeak)
			}
			if got.DominantBlock != tt.wantDominant {
				t.Errorf("DominantBlock = %q, want %q", got.DominantBlock, tt.wantDominant)
			}
			if len(got.TimeBlocks) != 4 {
				t.Fatalf("TimeBlocks = %d, want 4", len(got.TimeBlocks))
			}

			var percent float64
			for _, b := range got.TimeBlocks {
				if b.TotalMs != tt.wantBlockMs[b.Name] {
					t.Errorf("block %s = %d, want %d", b.Name, b.TotalMs, tt.wantBlockMs[b.Name])
				}
				percent += b.Percent
			}
			if h.HourlyTotal() > 0 && !approx(percent, 100) {
				t.Errorf("block percents sum to %v, want 100", percent)
			}
			if h.HourlyTotal() == 0 && percent != 0 {
				t.Errorf("block percents sum to %v, want 0", percent)
			}
		})
	}
}

func TestTopGenres(t *testing.T) {
	artists := []aggregate.Entity{
		{Key: "a", TotalMs: 750},
		{Key: "b", TotalMs: 250},
		{Key: "c", TotalMs: 0},
	}

	tests := []struct {
		name string
		tags map[string][]Tag
		want []GenreShare
	}{
		{
			name: "no tags",
			want: nil,
		},
		{
			name: "weighted by listening share and tag count",
			tags: map[string][]Tag{
				"a": {{Name: "Rock", Count: 75}, {Name: "indie", Count: 25}},
				"b": {{Name: "rock", Count: 10}},
			},
			want: []GenreShare{
				{Name: "rock", Percent: 81.25},
				{Name: "indie", Percent: 18.75},
			},
		},
		{
			name: "zero counts split evenly",
			tags: map[string][]Tag{
				"b": {{Name: "jazz"}, {Name: "soul"}},
			},
			want: []GenreShare{
				{Name: "jazz", Percent: 12.5},
				{Name: "soul", Percent: 12.5},
			},
		},
		{
			name: "capped at five",
			tags: map[string][]Tag{
				"a": {
					{Name: "t1", Count: 60}, {Name: "t2", Count: 50}, {Name: "t3", Count: 40},
					{Name: "t4", Count: 30}, {Name: "t5", Count: 20}, {Name: "t6", Count: 10},
				},
			},
			want: []GenreShare{
				{Name: "t1", Percent: 21.428571428571427},
				{Name: "t2", Percent: 17.857142857142858},
				{Name: "t3", Percent: 14.285714285714285},
				{Name: "t4", Percent: 10.714285714285714},
				{Name: "t5", Percent: 7.142857142857143},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := topGenres(artists, tt.tags)
			if len(got) != len(tt.want) {
				t.Fatalf("topGenres() = %+v, want %+v", got, tt.want)
			}
			for i := range got {
				if got[i].Name != tt.want[i].Name || math.Abs(got[i].Percent-tt.want[i].Percent) > 1e-6 {
					t.Errorf("topGenres()[%d] = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSynthesize_InvariantViolation(t *testing.T) {
	in := inputFor(play("a", "A", "1", "2024-01-01T09:00:00Z", 3000))
	in.Histogram.Hourly[9] = 1

	_, err := Synthesize(in)
	var invErr *InvariantError
	if !errors.As(err, &invErr) {
		t.Fatalf("Synthesize() error = %v, want *InvariantError", err)
	}
	if invErr.Want != 3000 || invErr.Got != 1 {
		t.Errorf("InvariantError = %+v", invErr)
	}
}

func TestSummary_JSONSchema(t *testing.T) {
	in := inputFor(play("a", "A", "1", "2024-01-01T09:00:00Z", 3000))
	got, err := Synthesize(in)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	data, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	s := string(data)

	for _, want := range []string{
		`"totals":`, `"total_ms":3000`, `"top_artists":`, `"top_tracks":`,
		`"rank":1`, `"features":null`, `"feature_profile":null`, `"hourly_ms":`,
		`"listening_pattern":`, `"peak_hour":9`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("JSON missing %s in %s", want, s)
		}
	}
	if strings.Contains(s, "top_genres") {
		t.Errorf("JSON should omit empty top_genres: %s", s)
	}
}
