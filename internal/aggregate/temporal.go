// Package aggregate derives listening-time histograms and ranked artist and
// track aggregates from a deduplicated event set.
package aggregate

import (
	"github.com/justestif/go-spotify-wrapped/internal/history"
)

const dateFormat = "2006-01-02"

// DailyTotal is the listening time of one calendar day (UTC).
type DailyTotal struct {
	Date      string `json:"date"`
	TotalMs   int64  `json:"total_ms"`
	PlayCount int    `json:"play_count"`
}

// Histogram holds listening time by hour of day and day of week, plus a
// sparse per-day series. Weekday indexes follow time.Weekday (0 = Sunday).
type Histogram struct {
	Hourly  [24]int64    `json:"hourly_ms"`
	Weekday [7]int64     `json:"weekday_ms"`
	Daily   []DailyTotal `json:"daily"`
}

// HourlyTotal sums the hour buckets.
func (h Histogram) HourlyTotal() int64 {
	var total int64
	for _, ms := range h.Hourly {
		total += ms
	}
	return total
}

// PeakHour returns the hour with the most listening time; the earliest wins ties.
// It returns -1 when the histogram is empty.
func (h Histogram) PeakHour() int {
	peak := -1
	var best int64
	for hour, ms := range h.Hourly {
		if ms > best {
			peak, best = hour, ms
		}
	}
	return peak
}

// Temporal bins every event by the hour and weekday in which it started.
// Days without plays are left out of Daily rather than zero-filled.
func Temporal(set history.EventSet) Histogram {
	h := Histogram{Daily: []DailyTotal{}}

	// Events are time-ordered, so days arrive in order.
	for _, e := range set.Events {
		h.Hourly[e.PlayedAt.Hour()] += e.DurationMs
		h.Weekday[e.PlayedAt.Weekday()] += e.DurationMs

		date := e.PlayedAt.Format(dateFormat)
		if n := len(h.Daily); n > 0 && h.Daily[n-1].Date == date {
			h.Daily[n-1].TotalMs += e.DurationMs
			h.Daily[n-1].PlayCount++
			continue
		}
		h.Daily = append(h.Daily, DailyTotal{Date: date, TotalMs: e.DurationMs, PlayCount: 1})
	}

	return h
}
