package insight

import (
	"github.com/justestif/go-spotify-wrapped/internal/aggregate"
)

// Time block names.
const (
	BlockEarlyMorning = "early_morning"
	BlockWorkHours    = "work_hours"
	BlockEvening      = "evening"
	BlockLateNight    = "late_night"
)

// timeBlock covers the hours [start, end); end < start wraps past midnight.
type timeBlock struct {
	name       string
	start, end int
}

// Hours 0-4 belong to late_night, so every hour falls in exactly one block.
var timeBlocks = []timeBlock{
	{BlockEarlyMorning, 5, 9},
	{BlockWorkHours, 9, 17},
	{BlockEvening, 17, 22},
	{BlockLateNight, 22, 5},
}

// BlockShare is the listening time that fell inside one time block.
type BlockShare struct {
	Name    string  `json:"name"`
	TotalMs int64   `json:"total_ms"`
	Percent float64 `json:"percent"`
}

// ListeningPattern describes when during the day the user listens.
// PeakHour is -1 and DominantBlock is empty when nothing was played.
type ListeningPattern struct {
	PeakHour      int          `json:"peak_hour"`
	TimeBlocks    []BlockShare `json:"time_blocks"`
	DominantBlock string       `json:"dominant_block,omitempty"`
}

func (b timeBlock) contains(hour int) bool {
	if b.start < b.end {
		return hour >= b.start && hour < b.end
	}
	return hour >= b.start || hour < b.end
}

func listeningPattern(h aggregate.Histogram) ListeningPattern {
	total := h.HourlyTotal()
	p := ListeningPattern{
		PeakHour:   h.PeakHour(),
		TimeBlocks: make([]BlockShare, 0, len(timeBlocks)),
	}

	var best int64
	for _, b := range timeBlocks {
		share := BlockShare{Name: b.name}
		for hour, ms := range h.Hourly {
			if b.contains(hour) {
				share.TotalMs += ms
			}
		}
		if total > 0 {
			share.Percent = float64(share.TotalMs) / float64(total) * 100
		}
		if share.TotalMs > best {
			best = share.TotalMs
			p.DominantBlock = b.name
		}
		p.TimeBlocks = append(p.TimeBlocks, share)
	}
	return p
}
