package clustering

import (
	"fmt"
	"strings"
)

const sampleTrackCount = 3

// FormatMoodSummary returns a human-readable summary of detected moods.
// Shows track count and the first 3 tracks for each mood.
// Outliers are summarized by count only.
func FormatMoodSummary(moods []MoodCluster, outliers []Track) string {
	var sb strings.Builder

	totalTracks := len(outliers)
	for _, m := range moods {
		totalTracks += len(m.Tracks)
	}

	if len(moods) == 0 {
		sb.WriteString(fmt.Sprintf("No moods found from %d tracks", totalTracks))
		if len(outliers) > 0 {
			sb.WriteString(fmt.Sprintf(" (%d outliers skipped)", len(outliers)))
		}
		sb.WriteString("\n")
		return sb.String()
	}

	moodWord := "mood"
	if len(moods) > 1 {
		moodWord = "moods"
	}

	sb.WriteString(fmt.Sprintf("Found %d %s from %d tracks", len(moods), moodWord, totalTracks))
	if len(outliers) > 0 {
		sb.WriteString(fmt.Sprintf(" (%d outliers skipped)", len(outliers)))
	}
	sb.WriteString("\n")

	for i, m := range moods {
		sb.WriteString("\n")
		sb.WriteString(formatMood(i+1, m))
	}

	return sb.String()
}

// formatMood formats a single mood with its sample tracks.
func formatMood(num int, m MoodCluster) string {
	var sb strings.Builder

	trackWord := "track"
	if len(m.Tracks) > 1 {
		trackWord = "tracks"
	}

	sb.WriteString(fmt.Sprintf("Mood %d: %s (%d %s)\n", num, m.Name, len(m.Tracks), trackWord))

	sampleCount := min(sampleTrackCount, len(m.Tracks))
	for i := 0; i < sampleCount; i++ {
		track := m.Tracks[i]
		sb.WriteString(fmt.Sprintf("  • \"%s\" - %s\n", track.Name, track.Artist))
	}

	remaining := len(m.Tracks) - sampleTrackCount
	if remaining > 0 {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", remaining))
	}

	return sb.String()
}
