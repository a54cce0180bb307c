package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/justestif/go-spotify-wrapped/internal/clustering"
	"github.com/justestif/go-spotify-wrapped/internal/features"
	"github.com/justestif/go-spotify-wrapped/internal/insight"
	"github.com/justestif/go-spotify-wrapped/internal/pipeline"
)

// summaryOutput is the JSON document printed by `summary --format json`.
type summaryOutput struct {
	RunID string `json:"run_id"`
	insight.Summary
	Enrichment features.Report           `json:"enrichment"`
	Moods      []clustering.MoodCluster `json:"moods,omitempty"`
}

func newSummaryOutput(r *pipeline.Result) summaryOutput {
	return summaryOutput{
		RunID:      r.RunID,
		Summary:    r.Summary,
		Enrichment: r.Report,
		Moods:      r.Moods,
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}

func writeSummaryTable(w io.Writer, r *pipeline.Result) error {
	s := r.Summary
	t := s.Totals

	fmt.Fprintf(w, "Listening time: %s minutes across %s plays\n",
		humanize.Comma(t.TotalMinutes), humanize.Comma(int64(t.PlayCount)))
	fmt.Fprintf(w, "Tracks: %s  Artists: %s  Days: %s\n",
		humanize.Comma(int64(t.DistinctTracks)),
		humanize.Comma(int64(t.DistinctArtists)),
		humanize.Comma(int64(t.DistinctDays)))
	if t.FirstPlayedAt != nil && t.LastPlayedAt != nil {
		fmt.Fprintf(w, "Period: %s to %s\n",
			t.FirstPlayedAt.Format(time.DateOnly), t.LastPlayedAt.Format(time.DateOnly))
	}
	if t.DroppedRecords > 0 || t.DuplicatesRemoved > 0 {
		fmt.Fprintf(w, "Skipped %s malformed records and %s duplicates\n",
			humanize.Comma(int64(t.DroppedRecords)), humanize.Comma(int64(t.DuplicatesRemoved)))
	}

	fmt.Fprintln(w, "\nTop artists")
	artists := tablewriter.NewWriter(w)
	artists.Header([]string{"#", "Artist", "Minutes", "Plays", "Tracks", "Days"})
	for _, a := range s.TopArtists {
		if err := artists.Append([]string{
			strconv.Itoa(a.Rank),
			a.DisplayName,
			minutes(a.TotalMs),
			humanize.Comma(int64(a.PlayCount)),
			strconv.Itoa(a.DistinctTracks),
			strconv.Itoa(a.DistinctDays),
		}); err != nil {
			return fmt.Errorf("rendering artists: %w", err)
		}
	}
	if err := artists.Render(); err != nil {
		return fmt.Errorf("rendering artists: %w", err)
	}

	fmt.Fprintln(w, "\nTop tracks")
	tracks := tablewriter.NewWriter(w)
	tracks.Header([]string{"#", "Track", "Artist", "Minutes", "Plays", "Energy", "Valence"})
	for _, tr := range s.TopTracks {
		energy, valence := "-", "-"
		if tr.Features != nil {
			energy = strconv.FormatFloat(tr.Features.Energy, 'f', 2, 64)
			valence = strconv.FormatFloat(tr.Features.Valence, 'f', 2, 64)
		}
		if err := tracks.Append([]string{
			strconv.Itoa(tr.Rank),
			tr.DisplayName,
			tr.ArtistName,
			minutes(tr.TotalMs),
			humanize.Comma(int64(tr.PlayCount)),
			energy,
			valence,
		}); err != nil {
			return fmt.Errorf("rendering tracks: %w", err)
		}
	}
	if err := tracks.Render(); err != nil {
		return fmt.Errorf("rendering tracks: %w", err)
	}

	fmt.Fprintln(w)
	writePattern(w, s.ListeningPattern)

	if p := s.FeatureProfile; p != nil {
		fmt.Fprintf(w, "Music personality: %s (%s), from %d tracks\n", p.Personality, p.Mood.Name, p.TracksWithFeatures)
	} else {
		fmt.Fprintln(w, "Music personality: unavailable (no audio features)")
	}

	if len(s.TopGenres) > 0 {
		names := make([]string, len(s.TopGenres))
		for i, g := range s.TopGenres {
			names[i] = fmt.Sprintf("%s %.0f%%", g.Name, g.Percent)
		}
		fmt.Fprintf(w, "Top genres: %s\n", strings.Join(names, ", "))
	}

	if r.Moods != nil || r.MoodOutliers != nil {
		fmt.Fprintln(w)
		fmt.Fprint(w, clustering.FormatMoodSummary(r.Moods, r.MoodOutliers))
	}
	return nil
}

func writePattern(w io.Writer, p insight.ListeningPattern) {
	if p.PeakHour < 0 {
		return
	}
	fmt.Fprintf(w, "Peak hour: %02d:00", p.PeakHour)
	if p.DominantBlock != "" {
		fmt.Fprintf(w, "  Mostly: %s", strings.ReplaceAll(p.DominantBlock, "_", " "))
	}
	fmt.Fprintln(w)
}

func minutes(ms int64) string {
	return humanize.Comma(ms / int64(time.Minute/time.Millisecond))
}
