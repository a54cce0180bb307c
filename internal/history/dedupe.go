package history

import (
	"cmp"
	"slices"
	"time"
)

// DefaultTolerance is the window within which two plays of the same track are
// treated as one. Overlapping exports rarely agree to the exact second.
const DefaultTolerance = 2 * time.Second

// Dedupe removes duplicate plays and returns the remaining set with the number
// of events removed.
//
// Plays of the same identity key form one cluster when each consecutive gap is
// below tolerance. Each cluster keeps its longest play, the earliest on ties.
// Because clusters are chained, survivors of one key are always at least
// tolerance apart, so running Dedupe on its own output changes nothing.
func Dedupe(set EventSet, tolerance time.Duration) (EventSet, int) {
	if set.Len() == 0 {
		return EventSet{}, 0
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	byKey := slices.Clone(set.Events)
	slices.SortFunc(byKey, func(a, b PlayEvent) int {
		if c := cmp.Compare(a.Key(), b.Key()); c != 0 {
			return c
		}
		return compareEvents(a, b)
	})

	kept := make([]PlayEvent, 0, len(byKey))
	best := byKey[0]
	prev := byKey[0]
	for _, e := range byKey[1:] {
		if e.Key() == prev.Key() && e.PlayedAt.Sub(prev.PlayedAt) < tolerance {
			if e.DurationMs > best.DurationMs {
				best = e
			}
			prev = e
			continue
		}
		kept = append(kept, best)
		best, prev = e, e
	}
	kept = append(kept, best)

	return NewEventSet(kept), set.Len() - len(kept)
}
